package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lodestoned",
		Short: "Lodestone ingestion engine",
		Long:  "Lodestone daemon for ingesting knowledge assets and keeping the relational, vector, and graph stores in sync",
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.SweepCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
