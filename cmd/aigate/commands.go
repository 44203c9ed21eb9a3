package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/puntaiq/aigate"
	"github.com/puntaiq/aigate/internal/diag"
	"github.com/puntaiq/aigate/internal/logger"
	"github.com/puntaiq/aigate/pkg/client"
)

var version = "dev"

func newServeCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the worker, the health probe and the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := aigate.LoadConfig(gf.ConfigPath)
			if err != nil {
				return err
			}
			if gf.Debug {
				c.Debug = true
			}
			log := logger.NewConsole(c.Debug)

			gate, err := aigate.New(c, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return gate.Run(ctx)
		},
	}
}

func newStatusCmd(cf *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached worker health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := newClient(cf)
			ctx, cancel := context.WithTimeout(cmd.Context(), cf.APITimeout)
			defer cancel()

			st, err := cl.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("worker: %s\n", st.Status)
			fmt.Printf("message: %s\n", st.Message)
			if st.Uptime > 0 {
				fmt.Printf("uptime: %s\n", (time.Duration(st.Uptime) * time.Second).String())
			}
			if st.LastRestartAt != nil {
				fmt.Printf("last restart: %s\n", st.LastRestartAt.Format(time.RFC3339))
			}
			if !st.LastCheckedAt.IsZero() {
				fmt.Printf("last probe: %s\n", st.LastCheckedAt.Format(time.RFC3339))
			}
			for name, sub := range st.PerSubsystem {
				fmt.Printf("  %-20s %s (checked %s)\n", name, sub.State, sub.LastCheckedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newRestartCmd(cf *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Ask the running daemon to restart the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := newClient(cf)
			ctx, cancel := context.WithTimeout(cmd.Context(), cf.APITimeout)
			defer cancel()

			res, err := cl.Restart(ctx)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("restart failed: %s", res.Message)
			}
			fmt.Println(res.Message)
			return nil
		},
	}
}

func newDiagnoseCmd(cf *ClientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run the direct-vs-proxied connectivity check",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := newClient(cf)
			ctx, cancel := context.WithTimeout(cmd.Context(), cf.APITimeout)
			defer cancel()

			rep, err := cl.Diagnostics(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("verdict: %s\n", rep.Verdict)
			fmt.Printf("summary: %s\n", rep.Summary)
			printCheck("direct", rep.Direct)
			printCheck("proxied", rep.Proxied)
			for _, r := range rep.Remediation {
				fmt.Printf("  - %s\n", r)
			}
			return nil
		},
	}
}

func printCheck(label string, res diag.CheckResult) {
	status := "FAIL"
	if res.OK {
		status = string(res.State)
	}
	fmt.Printf("%-8s %-10s %s (%.0fms)\n", label, status, res.URL, float64(res.Elapsed)/float64(time.Millisecond))
	if res.Error != "" {
		fmt.Printf("         error: %s\n", res.Error)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the aigate version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aigate %s\n", version)
		},
	}
}

func newClient(cf *ClientFlags) *client.Client {
	return client.New(client.Config{
		BaseURL:  cf.APIUrl,
		Timeout:  cf.APITimeout,
		Insecure: cf.Insecure,
	})
}
