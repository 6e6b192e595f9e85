package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/studioflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and list enabled integrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		v := cfg.Validate()

		fmt.Printf("config: %s\n", config.Path())
		fmt.Printf("integrations: %s\n", orNone(v.Integrations))
		for _, w := range v.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		for _, e := range v.Errors {
			fmt.Printf("error: %s\n", e)
		}
		if !v.Valid {
			return fmt.Errorf("configuration has %d errors", len(v.Errors))
		}
		fmt.Println("configuration is valid")
		return nil
	},
}

var configDiffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Show which sections differ and whether a reload can apply them",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		old, err := config.LoadFile(args[0])
		if err != nil {
			return err
		}
		next, err := config.LoadFile(args[1])
		if err != nil {
			return err
		}
		d := config.Diff(old, next)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return err
		}
		if len(d.NonReloadable) > 0 {
			fmt.Fprintf(os.Stderr, "restart required for: %s\n", strings.Join(d.NonReloadable, ", "))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configDiffCmd)
}

func orNone(list []string) string {
	if len(list) == 0 {
		return "none"
	}
	return strings.Join(list, ", ")
}
