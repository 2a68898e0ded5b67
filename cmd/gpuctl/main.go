// Command gpuctl is an operator CLI for the gpumand daemon's HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var addr string

func main() {
	root := &cobra.Command{
		Use:   "gpuctl",
		Short: "Operate a gpumand daemon over its HTTP API",
	}
	root.PersistentFlags().StringVar(&addr, "addr", envOr("GPUCTL_ADDR", "http://localhost:8080"), "Base URL of the gpumand daemon")

	root.AddCommand(
		newStatusCmd(),
		newPreparePhaseCmd(),
		newServiceCmd(),
		newReleaseAllCmd(),
		newLockReleaseCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
