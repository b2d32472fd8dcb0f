package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/loancalc-runner/pkg/config"
	"github.com/devicelab-dev/loancalc-runner/pkg/device"
	"github.com/devicelab-dev/loancalc-runner/pkg/sauce"
)

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "Print the device matrix a run fans out over",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "real-devices",
			Usage:   "Show the real-device matrix",
			EnvVars: []string{config.EnvRealDevices},
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print rows as JSON",
		},
		&cli.BoolFlag{
			Name:  "caps",
			Usage: "Print the capability set for each row",
		},
	},
	Action: listDevices,
}

func listDevices(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("real-devices") {
		cfg.RealDevices = c.Bool("real-devices")
	}

	specs, err := cfg.DeviceMatrix()
	if err != nil {
		return err
	}
	w := c.App.Writer

	if c.Bool("caps") {
		caps := make([]sauce.Capabilities, 0, len(specs))
		for _, spec := range specs {
			caps = append(caps, sauce.BuildCapabilities(spec, "<job name>", cfg.App))
		}
		return writeJSON(w, caps)
	}
	if c.Bool("json") {
		return writeJSON(w, device.Rows(specs))
	}

	kind := "virtual"
	if cfg.RealDevices {
		kind = "real"
	}
	if len(cfg.Devices) > 0 {
		kind = "config"
	}
	fmt.Fprintf(w, "\n  Device matrix (%s, %d rows)\n", kind, len(specs))
	fmt.Fprintln(w, "  "+strings.Repeat("─", 60))
	fmt.Fprintf(w, "  %-10s %-34s %s\n", "Platform", "Device", "Version")
	for _, row := range device.Rows(specs) {
		fmt.Fprintf(w, "  %-10s %-34s %s\n", row[0], row[1], row[2])
	}
	fmt.Fprintln(w)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
