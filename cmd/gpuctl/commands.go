package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gpumand/pkg/types"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show VRAM, service, and lock status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			var report types.StatusReport
			if err := doRequest(ctx, "GET", "/gpu/status", &report); err != nil {
				return err
			}
			b, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(b))
			return nil
		},
	}
}

func newPreparePhaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare-phase <n>",
		Short: "Prepare the GPU for pipeline phase n, stopping running services the phase does not need (lowest priority first) until its services fit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("phase must be an integer: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
			defer cancel()
			var resp types.PrepareResponse
			if err := doRequest(ctx, "POST", "/gpu/prepare-phase/"+args[0], &resp); err != nil {
				return err
			}
			fmt.Printf("phase %d prepared: %v\n", resp.Phase, resp.Success)
			return nil
		},
	}
}

func newServiceCmd() *cobra.Command {
	svcCmd := &cobra.Command{
		Use:   "service",
		Short: "Start or stop an individual service",
	}

	startCmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start a service directly, without preemption or lock acquisition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
			defer cancel()
			var resp types.ServiceActionResponse
			if err := doRequest(ctx, "POST", "/gpu/service/"+args[0]+"/start", &resp); err != nil {
				return err
			}
			fmt.Printf("%s started: %v\n", resp.Service, resp.Success)
			return nil
		},
	}

	var force bool
	stopCmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a service directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			path := "/gpu/service/" + args[0] + "/stop"
			if force {
				path += "?force=true"
			}
			var resp types.ServiceActionResponse
			if err := doRequest(ctx, "POST", path, &resp); err != nil {
				return err
			}
			fmt.Printf("%s stopped: %v\n", resp.Service, resp.Success)
			return nil
		},
	}
	stopCmd.Flags().BoolVar(&force, "force", false, "Use the harsher stop signal (container kill / SIGKILL); the graceful-eviction hook still runs first")

	svcCmd.AddCommand(startCmd, stopCmd)
	return svcCmd
}

func newReleaseAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release-all",
		Short: "Stop every currently-healthy service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			var resp types.ReleaseAllResponse
			if err := doRequest(ctx, "POST", "/gpu/release-all", &resp); err != nil {
				return err
			}
			fmt.Printf("release-all: %v\n", resp.Success)
			return nil
		},
	}
}

func newLockReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock-release",
		Short: "Force-release the distributed GPU lock regardless of holder (crash recovery)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			var resp types.LockReleaseResponse
			if err := doRequest(ctx, "POST", "/gpu/lock/release", &resp); err != nil {
				return err
			}
			fmt.Printf("lock released: %v\n", resp.Released)
			return nil
		},
	}
}
