package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "none"
)

type rootOptions struct {
	envFile   string
	pipelines string
	output    string
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "etl",
		Short:         "Incremental bronze to silver ETL",
		Long:          "Stages source files to bronze, loads new or changed files into silver tables and records their versions.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return validateOutputFormat(opts.output)
		},
	}
	addGlobalFlags(rootCmd.PersistentFlags(), opts)

	rootCmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newScanCmd(opts),
		newLedgerCmd(opts),
		newPipelinesCmd(opts),
	)
	return rootCmd
}

func addGlobalFlags(fs *pflag.FlagSet, opts *rootOptions) {
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	fs.StringVar(&opts.pipelines, "pipelines", "", "pipeline file (overrides PIPELINES_FILE)")
	fs.StringVarP(&opts.output, "output", "o", "", "output format: table, csv or json (default table on a terminal, csv otherwise)")
}
