package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags during build.
var Version = "dev"

// startedRun flags whether runRun began executing, so main can tell a
// flag/argument error (exit 2) from a startup failure inside it (exit 1).
var startedRun bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if startedRun {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:     "aardvark-dns",
	Short:   "Authoritative DNS server for container networks",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("config", "/run/containers/aardvark-dns", "directory of per-network config files")
	rootCmd.PersistentFlags().Int("port", 53, "port to listen on for both UDP and TCP")
	rootCmd.AddCommand(runCmd)
}
