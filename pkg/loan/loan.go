// Package loan computes car loan figures the way the loan calculator app shows them.
package loan

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Inputs are the seven values typed into the calculator.
type Inputs struct {
	Price        float64 `yaml:"price" json:"price"`               // Loan amount (vehicle price)
	InterestRate float64 `yaml:"interestRate" json:"interestRate"` // Annual percentage rate, e.g. 3.42
	SalesTax     float64 `yaml:"salesTax" json:"salesTax"`         // Percent, applied to price minus trade-in
	TermMonths   int     `yaml:"termMonths" json:"termMonths"`
	DownPayment  float64 `yaml:"downPayment" json:"downPayment"`
	TradeIn      float64 `yaml:"tradeIn" json:"tradeIn"`
	Fees         float64 `yaml:"fees" json:"fees"`
}

// Outputs are the four figures the calculator displays.
type Outputs struct {
	Principal      float64 `json:"principal"`
	MonthlyPayment float64 `json:"monthlyPayment"`
	LoanTotal      float64 `json:"loanTotal"`     // Sum of all payments
	TotalInterest  float64 `json:"totalInterest"` // LoanTotal - Principal
	TotalCost      float64 `json:"totalCost"`     // LoanTotal + down payment + trade-in
}

// ErrInvalidInputs is wrapped by every validation failure from Compute.
var ErrInvalidInputs = errors.New("invalid loan inputs")

// Validate reports the first problem with the inputs.
func (in Inputs) Validate() error {
	switch {
	case in.Price < 0, in.InterestRate < 0, in.SalesTax < 0,
		in.DownPayment < 0, in.TradeIn < 0, in.Fees < 0:
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidInputs)
	case in.TermMonths <= 0:
		return fmt.Errorf("%w: term must be at least one month", ErrInvalidInputs)
	}
	return nil
}

// Principal is the amount financed: price plus tax on (price - trade-in) plus
// fees, less down payment and trade-in.
func (in Inputs) Principal() float64 {
	taxable := math.Max(in.Price-in.TradeIn, 0)
	return in.Price + taxable*in.SalesTax/100 + in.Fees - in.DownPayment - in.TradeIn
}

// Compute amortizes the loan. Totals are derived from the unrounded monthly
// payment; rounding happens only when formatting.
func Compute(in Inputs) (Outputs, error) {
	if err := in.Validate(); err != nil {
		return Outputs{}, err
	}

	principal := in.Principal()
	if principal <= 0 {
		return Outputs{}, fmt.Errorf("%w: nothing to finance (principal %.2f)", ErrInvalidInputs, principal)
	}

	n := float64(in.TermMonths)
	r := in.InterestRate / 1200

	var payment float64
	if r == 0 {
		payment = principal / n
	} else {
		growth := math.Pow(1+r, n)
		payment = principal * r * growth / (growth - 1)
	}

	total := payment * n
	return Outputs{
		Principal:      principal,
		MonthlyPayment: payment,
		LoanTotal:      total,
		TotalInterest:  total - principal,
		TotalCost:      total + in.DownPayment + in.TradeIn,
	}, nil
}

// Formatted returns the outputs as the calculator renders them.
func (o Outputs) Formatted() map[string]string {
	return map[string]string{
		"monthlyPayment": FormatMoney(o.MonthlyPayment),
		"loanTotal":      FormatMoney(o.LoanTotal),
		"totalInterest":  FormatMoney(o.TotalInterest),
		"totalCost":      FormatMoney(o.TotalCost),
	}
}

// FormatMoney renders an amount with two decimals and comma thousands
// separators: 20370.965 -> "20,370.97".
func FormatMoney(amount float64) string {
	cents := int64(math.Round(math.Abs(amount) * 100))
	whole := strconv.FormatInt(cents/100, 10)
	frac := cents % 100

	var b strings.Builder
	if amount < 0 && cents != 0 {
		b.WriteByte('-')
	}
	for i, ch := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	fmt.Fprintf(&b, ".%02d", frac)
	return b.String()
}

// FormatInput renders an input the way it is typed into the app: no
// separators and no trailing zeros ("25000", "3.42").
func FormatInput(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
