package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
	"github.com/devicelab-dev/loancalc-runner/pkg/loan"
)

var calcCommand = &cli.Command{
	Name:  "calc",
	Usage: "Compute the figures the calculator app should display",
	Description: `Defaults are the car loan the scenario enters:
price 25000, rate 3.42%, sales tax 8%, 60 months, 500 down, 7500 trade-in, 300 fees.`,
	Flags: calcFlags(flow.CarLoanInputs()),
	Action: func(c *cli.Context) error {
		in := loan.Inputs{
			Price:        c.Float64("price"),
			InterestRate: c.Float64("rate"),
			SalesTax:     c.Float64("sales-tax"),
			TermMonths:   c.Int("term"),
			DownPayment:  c.Float64("down"),
			TradeIn:      c.Float64("trade-in"),
			Fees:         c.Float64("fees"),
		}
		out, err := loan.Compute(in)
		if err != nil {
			return err
		}

		w := c.App.Writer
		if c.Bool("json") {
			return writeJSON(w, struct {
				Inputs    loan.Inputs       `json:"inputs"`
				Outputs   loan.Outputs      `json:"outputs"`
				Formatted map[string]string `json:"formatted"`
			}{in, out, out.Formatted()})
		}

		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %-18s %12s\n", "Principal", loan.FormatMoney(out.Principal))
		fmt.Fprintf(w, "  %-18s %12s\n", "Monthly payment", loan.FormatMoney(out.MonthlyPayment))
		fmt.Fprintf(w, "  %-18s %12s\n", "Total interest", loan.FormatMoney(out.TotalInterest))
		fmt.Fprintf(w, "  %-18s %12s\n", "Loan total", loan.FormatMoney(out.LoanTotal))
		fmt.Fprintf(w, "  %-18s %12s\n", "Total cost", loan.FormatMoney(out.TotalCost))
		fmt.Fprintln(w)
		return nil
	},
}

func calcFlags(def loan.Inputs) []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{Name: "price", Usage: "Loan amount", Value: def.Price},
		&cli.Float64Flag{Name: "rate", Usage: "Annual interest rate in percent", Value: def.InterestRate},
		&cli.Float64Flag{Name: "sales-tax", Usage: "Sales tax in percent", Value: def.SalesTax},
		&cli.IntFlag{Name: "term", Usage: "Term in months", Value: def.TermMonths},
		&cli.Float64Flag{Name: "down", Usage: "Down payment", Value: def.DownPayment},
		&cli.Float64Flag{Name: "trade-in", Usage: "Trade-in value", Value: def.TradeIn},
		&cli.Float64Flag{Name: "fees", Usage: "Fees", Value: def.Fees},
		&cli.BoolFlag{Name: "json", Usage: "Print inputs and outputs as JSON"},
	}
}
