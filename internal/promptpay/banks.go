package promptpay

import "fmt"

// bankNames maps the Bank of Thailand institution codes that appear on
// slip mini-QRs to display names.
var bankNames = map[string]string{
	"002": "Bangkok Bank",
	"004": "Kasikornbank",
	"006": "Krungthai Bank",
	"011": "TMBThanachart Bank",
	"014": "Siam Commercial Bank",
	"017": "Citibank",
	"020": "Standard Chartered",
	"022": "CIMB Thai",
	"024": "United Overseas Bank",
	"025": "Bank of Ayudhya",
	"030": "Government Savings Bank",
	"033": "Government Housing Bank",
	"034": "Bank for Agriculture and Agricultural Cooperatives",
	"066": "Islamic Bank of Thailand",
	"067": "Tisco Bank",
	"069": "Kiatnakin Phatra Bank",
	"070": "ICBC Thai",
	"071": "Thai Credit Bank",
	"073": "Land and Houses Bank",
}

// BankName resolves an institution code to its display name. Unknown codes
// are rendered as "unknown (code)" so slips from new institutions still
// produce a readable verdict.
func BankName(code string) string {
	if name, ok := bankNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown (%s)", code)
}
