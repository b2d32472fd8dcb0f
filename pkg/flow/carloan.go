package flow

import (
	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/loan"
)

// LoanCalcAppID is the package of the loan calculator app.
const LoanCalcAppID = "io.billmeyer.loancalc"

// CarLoanInputs are the values the car loan scenario types in.
func CarLoanInputs() loan.Inputs {
	return loan.Inputs{
		Price:        25000,
		InterestRate: 3.42,
		SalesTax:     8,
		TermMonths:   60,
		DownPayment:  500,
		TradeIn:      7500,
		Fees:         300,
	}
}

func resourceID(name string) core.Locator {
	return core.ID(LoanCalcAppID + ":id/" + name)
}

// CarLoanFixture is the built-in calculateCarLoan scenario. Expected strings
// come from the loan calculator rather than being hard-coded.
func CarLoanFixture() *Fixture {
	in := CarLoanInputs()
	out, err := loan.Compute(in)
	if err != nil {
		// CarLoanInputs are constants; Compute cannot reject them.
		panic(err)
	}

	return &Fixture{
		Name:    "calculateCarLoan",
		AppID:   LoanCalcAppID,
		Timeout: 0,
		Loan:    &in,
		Inputs: []Field{
			{Name: "loanAmount", Locator: resourceID("etLoanAmount"), Value: loan.FormatInput(in.Price)},
			{Name: "interestRate", Locator: resourceID("etEditInterest"), Value: loan.FormatInput(in.InterestRate)},
			{Name: "salesTax", Locator: resourceID("etSalesTax"), Value: loan.FormatInput(in.SalesTax)},
			{Name: "term", Locator: resourceID("etTerm"), Value: loan.FormatInput(float64(in.TermMonths))},
			{Name: "downPayment", Locator: resourceID("etDownPayment"), Value: loan.FormatInput(in.DownPayment)},
			{Name: "tradeIn", Locator: resourceID("etTradeIn"), Value: loan.FormatInput(in.TradeIn)},
			{Name: "fees", Locator: resourceID("etFees"), Value: loan.FormatInput(in.Fees)},
		},
		Trigger: Field{Name: "calculate", Locator: resourceID("btnCalculate")},
		Expectations: []Expectation{
			{Name: "loanTotal", Locator: resourceID("tvLoanTotal"), Expected: loan.FormatMoney(out.LoanTotal)},
			{Name: "monthlyPayment", Locator: resourceID("tvMonthlyPaymentVal"), Expected: loan.FormatMoney(out.MonthlyPayment)},
			{Name: "totalInterest", Locator: resourceID("tvLoanInterestVal"), Expected: loan.FormatMoney(out.TotalInterest)},
			{Name: "totalCost", Locator: resourceID("tvLoanTotalCostVal"), Expected: loan.FormatMoney(out.TotalCost)},
		},
	}
}
