package cron

import (
	"context"
	"fmt"
)

// sessionExpirer flips pending payment sessions whose window has passed.
type sessionExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// PaymentExpiryJobParams configure the payment expiry sweep.
type PaymentExpiryJobParams struct {
	Payments sessionExpirer
}

// NewPaymentExpiryJob builds the cron job that expires stale payment
// sessions so their QR codes stop being honored.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &paymentExpiryJob{payments: params.Payments}, nil
}

type paymentExpiryJob struct {
	payments sessionExpirer
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	if _, err := j.payments.ExpireDue(ctx); err != nil {
		return fmt.Errorf("expire payment sessions: %w", err)
	}
	return nil
}
