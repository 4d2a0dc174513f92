package slip

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestExtractAmount(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{name: "plain", text: "จำนวนเงิน 150.00 บาท", want: "150.00", found: true},
		{name: "thousands", text: "Amount: 1,234.56 THB", want: "1234.56", found: true},
		{name: "millions", text: "ยอด 1,234,567.89", want: "1234567.89", found: true},
		{name: "first match wins", text: "150.00 THB fee 20.00", want: "150.00", found: true},
		{name: "no decimals", text: "amount 150 baht", found: false},
		{name: "zero is absent", text: "0.00 THB", found: false},
		{name: "zero fee line skipped", text: "ค่าธรรมเนียม 0.00 บาท จำนวนเงิน 1,250.00 บาท", want: "1250.00", found: true},
		{name: "no amount", text: "โอนเงินสำเร็จ", found: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount, found := ExtractAmount(tc.text)
			require.Equal(t, tc.found, found)
			if tc.found {
				require.True(t, amount.Equal(decimal.RequireFromString(tc.want)), "got %s", amount)
			}
		})
	}
}
