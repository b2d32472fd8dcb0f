package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/loancalc-runner/pkg/flow"
	"github.com/devicelab-dev/loancalc-runner/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check fixture files without opening sessions",
	ArgsUsage: "[fixture file or folder...]",
	Description: `Parse each fixture, check its locators and compare the expected text
with the loan calculator. Without arguments the configured fixture, or the
built-in car loan fixture, is checked.`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Fixture variables (KEY=VALUE)",
		},
	},
	Action: validateFixtures,
}

func validateFixtures(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	vars := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		vars[k] = v
	}
	for k, v := range parseEnvVars(c.StringSlice("env")) {
		vars[k] = v
	}

	paths := c.Args().Slice()
	if len(paths) == 0 && cfg.Fixture != "" {
		paths = []string{cfg.Fixture}
	}

	w := c.App.Writer
	var errs []error

	if len(paths) == 0 {
		fx := flow.CarLoanFixture()
		errs = validator.CheckFixture(fx)
		if len(errs) == 0 {
			fmt.Fprintf(w, "  %s✓%s %s (built-in)\n", color(colorGreen), color(colorReset), fx.Name)
		}
	}

	v := validator.New(vars)
	for _, path := range paths {
		result := v.Validate(path)
		if result.IsValid() {
			for _, fx := range result.Fixtures {
				fmt.Fprintf(w, "  %s✓%s %s (%s)\n", color(colorGreen), color(colorReset), fx.Name, fx.SourcePath)
			}
		}
		errs = append(errs, result.Errors...)
	}

	if len(errs) == 0 {
		return nil
	}
	for _, e := range errs {
		fmt.Fprintf(w, "  %s✗%s %v\n", color(colorRed), color(colorReset), e)
	}
	return fmt.Errorf("%d validation error(s)", len(errs))
}
