package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aveeno350-ctrl/hook-script-studio/config"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/gate"
	"github.com/aveeno350-ctrl/hook-script-studio/domain/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Encode or decode usage tokens",
	Long: `Work with the signed usage cookie using the configured gate secret.

Examples:
  hookstudio token encode 2 1717000000000
  hookstudio token decode eyJydW5zIjoyLCJ0cyI6MTcxNzAwMDAwMDAwMH0.abc...`,
}

var tokenEncodeCmd = &cobra.Command{
	Use:   "encode <runs> <last-access-ms>",
	Short: "Print a signed token for a usage record",
	Args:  cobra.ExactArgs(2),
	RunE:  runTokenEncode,
}

var tokenDecodeCmd = &cobra.Command{
	Use:   "decode <token>",
	Short: "Verify a token and print its usage record",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenDecode,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenEncodeCmd)
	tokenCmd.AddCommand(tokenDecodeCmd)
}

func gateSecret() (string, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return "", err
	}
	if cfg.Gate.Secret == "" {
		return "", errors.New("gate secret is not configured")
	}
	return cfg.Gate.Secret, nil
}

func runTokenEncode(cmd *cobra.Command, args []string) error {
	runs, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || runs < 0 {
		return fmt.Errorf("invalid runs %q", args[0])
	}
	ts, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || ts < 0 {
		return fmt.Errorf("invalid timestamp %q", args[1])
	}

	secret, err := gateSecret()
	if err != nil {
		return err
	}

	tok, err := token.Encode(token.Usage{Runs: runs, LastAccessMs: ts}, secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func runTokenDecode(cmd *cobra.Command, args []string) error {
	secret, err := gateSecret()
	if err != nil {
		return err
	}

	u, ok := token.Decode(args[0], secret)
	if !ok {
		return errors.New("token is malformed or its signature does not match")
	}

	d := gate.Evaluate(&u, time.Now().UnixMilli())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "runs:        %d\n", u.Runs)
	fmt.Fprintf(out, "last access: %s\n", time.UnixMilli(u.LastAccessMs).UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "remaining:   %d\n", d.Remaining)
	if !d.Allowed {
		fmt.Fprintf(out, "blocked:     %s\n", d.Reason)
	}
	return nil
}
