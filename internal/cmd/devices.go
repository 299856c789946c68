package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rapidmidiex/miditip/internal/device"
)

func listDevices(cCtx *cli.Context) error {
	ports, err := device.List()
	if err != nil {
		return err
	}
	defer device.Close()

	if cCtx.Bool("json") {
		enc := json.NewEncoder(cCtx.App.Writer)
		enc.SetIndent("", "\t")
		return enc.Encode(ports)
	}

	w := cCtx.App.Writer
	fmt.Fprintln(w, "inputs:")
	for _, p := range ports.In {
		fmt.Fprintf(w, "  %d\t%s\n", p.Number, p.Name)
	}
	fmt.Fprintln(w, "outputs:")
	for _, p := range ports.Out {
		fmt.Fprintf(w, "  %d\t%s\n", p.Number, p.Name)
	}
	return nil
}
