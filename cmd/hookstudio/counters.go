package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aveeno350-ctrl/hook-script-studio/bootstrap"
	"github.com/aveeno350-ctrl/hook-script-studio/config"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

var countersCmd = &cobra.Command{
	Use:   "counters",
	Short: "Inspect or bump analytics counters",
	Long: `Read or increment counters in the configured counter store.

Examples:
  hookstudio counters get                  # dashboard keys
  hookstudio counters get evt:_all runs
  hookstudio counters incr evt:generate_clicked
  hookstudio counters incr ms_total 250`,
}

var countersGetCmd = &cobra.Command{
	Use:   "get [key...]",
	Short: "Print counter values (dashboard keys when none given)",
	RunE:  runCountersGet,
}

var countersIncrCmd = &cobra.Command{
	Use:   "incr <key> [n]",
	Short: "Increment a counter by n (default 1)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCountersIncr,
}

func init() {
	rootCmd.AddCommand(countersCmd)
	countersCmd.AddCommand(countersGetCmd)
	countersCmd.AddCommand(countersIncrCmd)
}

// openStore loads configuration and opens its counter store.
func openStore(cmd *cobra.Command) (*config.Config, ports.CounterStore, func() error, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	store, closer, err := bootstrap.NewCounterStore(cmd.Context(), cfg.Counters, zerolog.Nop())
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, store, closer, nil
}

func runCountersGet(cmd *cobra.Command, args []string) error {
	cfg, store, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer()

	keys := args
	if len(keys) == 0 {
		keys = cfg.Metrics.DashboardKeys
		if len(keys) == 0 {
			keys = metric.DefaultDashboardKeys()
		}
	}

	values, err := store.GetMany(cmd.Context(), keys)
	if err != nil {
		return fmt.Errorf("read counters: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, c := range metric.Sorted(values) {
		fmt.Fprintf(out, "%-40s %d\n", c.Key, c.Value)
	}
	return nil
}

func runCountersIncr(cmd *cobra.Command, args []string) error {
	by := int64(1)
	if len(args) == 2 {
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		by = n
	}

	_, store, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer()

	if err := store.Increment(cmd.Context(), args[0], by); err != nil {
		return fmt.Errorf("increment %s: %w", args[0], err)
	}
	v, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", args[0], v)
	return nil
}
