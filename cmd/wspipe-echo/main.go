// Command wspipe-echo is a small demonstration server built on wspipe: an
// echo route, a chat room backed by Subscribe/Publish, and a Prometheus
// metrics endpoint, wired together behind a chi mux.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "wspipe-echo",
		Short:         "Demo server for the wspipe RPC/pub-sub protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
