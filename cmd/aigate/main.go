package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	Debug      bool
}

// ClientFlags holds flags for commands talking to a running daemon.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
}

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	clientFlags := &ClientFlags{}

	root := &cobra.Command{
		Use:   "aigate",
		Short: "Supervisor and gateway for the PuntaIQ prediction worker",
		Long: "aigate runs the AI prediction worker as a supervised child process,\n" +
			"probes its health in the background, and proxies application traffic\n" +
			"to it with fail-fast behavior while it is starting, degraded, or down.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "path to TOML config file")
	root.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd(globalFlags))
	root.AddCommand(newStatusCmd(clientFlags))
	root.AddCommand(newRestartCmd(clientFlags))
	root.AddCommand(newDiagnoseCmd(clientFlags))
	root.AddCommand(newVersionCmd())

	for _, cmd := range root.Commands() {
		switch cmd.Name() {
		case "status", "restart", "diagnose":
			cmd.Flags().StringVar(&clientFlags.APIUrl, "api-url", "http://localhost:5000/api", "base URL of the running daemon's API")
			cmd.Flags().DurationVar(&clientFlags.APITimeout, "api-timeout", 10*time.Second, "timeout for API requests")
			cmd.Flags().BoolVar(&clientFlags.Insecure, "insecure", false, "skip TLS certificate verification")
		}
	}
	return root
}
