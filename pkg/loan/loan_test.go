package loan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceInputs() Inputs {
	return Inputs{
		Price:        25000,
		InterestRate: 3.42,
		SalesTax:     8,
		TermMonths:   60,
		DownPayment:  500,
		TradeIn:      7500,
		Fees:         300,
	}
}

func TestCompute_ReferenceScenario(t *testing.T) {
	out, err := Compute(referenceInputs())
	require.NoError(t, err)

	assert.InDelta(t, 18700.0, out.Principal, 1e-9)
	assert.Equal(t, "339.52", FormatMoney(out.MonthlyPayment))
	assert.Equal(t, "20,370.97", FormatMoney(out.LoanTotal))
	assert.Equal(t, "1,670.97", FormatMoney(out.TotalInterest))
	assert.Equal(t, "28,370.97", FormatMoney(out.TotalCost))
}

func TestCompute_TotalsUseUnroundedPayment(t *testing.T) {
	out, err := Compute(referenceInputs())
	require.NoError(t, err)

	// 339.52 * 60 would be 20,371.20.
	assert.NotEqual(t, "20,371.20", FormatMoney(out.LoanTotal))
	assert.InDelta(t, out.LoanTotal, out.Principal+out.TotalInterest, 1e-9)
}

func TestCompute_ZeroInterest(t *testing.T) {
	out, err := Compute(Inputs{Price: 12000, TermMonths: 48})
	require.NoError(t, err)

	assert.Equal(t, "250.00", FormatMoney(out.MonthlyPayment))
	assert.Equal(t, "0.00", FormatMoney(out.TotalInterest))
	assert.Equal(t, "12,000.00", FormatMoney(out.TotalCost))
}

func TestCompute_TradeInAboveTaxBase(t *testing.T) {
	in := Inputs{Price: 5000, SalesTax: 10, TermMonths: 12, TradeIn: 6000, Fees: 2000}
	assert.InDelta(t, 1000.0, in.Principal(), 1e-9, "tax base must not go negative")
}

func TestCompute_InvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
	}{
		{"zero term", Inputs{Price: 1000}},
		{"negative price", Inputs{Price: -1, TermMonths: 12}},
		{"negative rate", Inputs{Price: 1000, InterestRate: -2, TermMonths: 12}},
		{"nothing financed", Inputs{Price: 1000, DownPayment: 1000, TermMonths: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.in)
			assert.ErrorIs(t, err, ErrInvalidInputs)
		})
	}
}

func TestFormatMoney(t *testing.T) {
	tests := map[float64]string{
		0:          "0.00",
		5:          "5.00",
		999.994:    "999.99",
		999.995:    "1,000.00",
		1234567.89: "1,234,567.89",
		-1670.97:   "-1,670.97",
		100000:     "100,000.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatMoney(in), "FormatMoney(%v)", in)
	}
}

func TestFormatInput(t *testing.T) {
	assert.Equal(t, "25000", FormatInput(25000))
	assert.Equal(t, "3.42", FormatInput(3.42))
	assert.Equal(t, "0", FormatInput(0))
}

func TestOutputs_Formatted(t *testing.T) {
	out, err := Compute(referenceInputs())
	require.NoError(t, err)

	f := out.Formatted()
	assert.Equal(t, "339.52", f["monthlyPayment"])
	assert.Equal(t, "28,370.97", f["totalCost"])
	assert.Len(t, f, 4)
}
