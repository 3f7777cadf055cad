package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aveeno350-ctrl/hook-script-studio/bootstrap"
	"github.com/aveeno350-ctrl/hook-script-studio/config"
	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the Hook Script Studio configuration.

Checks:
  - YAML syntax is valid (when a file is present)
  - Values are in range
  - Required secrets are present
  - Counter store is reachable (optional)

Examples:
  hookstudio validate
  hookstudio validate --check-store`,
	RunE: runValidate,
}

var validateCheckStore bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckStore, "check-store", false, "check that the counter store is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	source := cfgFile
	if _, err := os.Stat(cfgFile); err != nil {
		source = "environment"
	}
	fmt.Fprintf(out, "Validating %s...\n\n", source)

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Configuration loads\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Configuration loads\n", checkMark)

	problems := 0
	check := func(ok bool, msg string) {
		mark := checkMark
		if !ok {
			mark = crossMark
			problems++
		}
		fmt.Fprintf(out, "  %s %s\n", mark, msg)
	}

	check(cfg.Gate.Secret != "", "Gate secret is set")
	check(cfg.Provider.APIKey != "", "Provider API key is set")
	// An empty admin key only disables the dashboard.
	fmt.Fprintf(out, "  - Admin key set: %t\n", cfg.Admin.Key != "")
	fmt.Fprintf(out, "  - Counter backend: %s\n", cfg.Counters.Backend)

	if validateCheckStore {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		store, closer, err := bootstrap.NewCounterStore(ctx, cfg.Counters, zerolog.Nop())
		if err != nil {
			check(false, fmt.Sprintf("Counter store opens: %v", err))
		} else {
			defer closer()
			if p, ok := store.(ports.Pinger); ok {
				err = p.Ping(ctx)
			}
			check(err == nil, fmt.Sprintf("Counter store reachable (%s)", cfg.Counters.Backend))
		}
	}

	fmt.Fprintln(out)
	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Fprintln(out, "Configuration valid")
	return nil
}
