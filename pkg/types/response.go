package types

// ResponseEnvelope is the wire shape every payments/orders endpoint returns.
// Rejection verdicts keep success=false with a populated Data block so the
// caller can render an explanatory message, not just a generic failure.
type ResponseEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
