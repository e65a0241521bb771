package statements

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Renderer formats statements as plain text for mailing.
type Renderer struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewRenderer builds a Renderer for the given ISO currency code.
// Unknown codes fall back to USD.
func NewRenderer(code string) *Renderer {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}
	return &Renderer{
		printer: message.NewPrinter(language.English),
		unit:    unit,
	}
}

func (r *Renderer) money(amount decimal.Decimal) string {
	value, _ := amount.Float64()
	return r.printer.Sprintf("%v", currency.NarrowSymbol(r.unit.Amount(value)))
}

// Render produces the statement body.
func (r *Renderer) Render(s AccountStatement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ACCOUNT STATEMENT %s\n", s.Number)
	fmt.Fprintf(&b, "Period: %s to %s\n\n",
		s.PeriodStart.Format("2 Jan 2006"), s.PeriodEnd.Format("2 Jan 2006"))
	fmt.Fprintf(&b, "Opening balance:  %s\n", r.money(s.OpeningBalance))
	fmt.Fprintf(&b, "Charges:          %s\n", r.money(s.TotalCharges))
	fmt.Fprintf(&b, "Payments:         %s\n", r.money(s.TotalPayments))
	fmt.Fprintf(&b, "Closing balance:  %s\n\n", r.money(s.ClosingBalance))
	b.WriteString("Aging\n")
	fmt.Fprintf(&b, "  Current:        %s\n", r.money(s.AgingCurrent))
	fmt.Fprintf(&b, "  1-30 days:      %s\n", r.money(s.AgingDays30))
	fmt.Fprintf(&b, "  31-60 days:     %s\n", r.money(s.AgingDays60))
	fmt.Fprintf(&b, "  Over 60 days:   %s\n", r.money(s.AgingDays90))
	return b.String()
}
