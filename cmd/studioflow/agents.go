package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/registry"
)

var agentsJSON bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the built-in agents and their input fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.New(agent.Catalog(nil, nil)...)
		if err != nil {
			return err
		}

		caps := make([]agent.Capabilities, 0, reg.Len())
		for _, a := range reg.List() {
			caps = append(caps, a.Capabilities())
		}

		if agentsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(caps)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFIELDS\tDESCRIPTION")
		for _, c := range caps {
			fields := make([]string, 0, len(c.Fields))
			for _, f := range c.Fields {
				fields = append(fields, f.Name)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, strings.Join(fields, ","), c.Description)
		}
		return tw.Flush()
	},
}

func init() {
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "print capabilities as JSON")
}
