package main

import (
	"github.com/spf13/cobra"

	"duck-etl/internal/domain"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var fileName string
	cmd := &cobra.Command{
		Use:   "scan <pipeline> <model>",
		Short: "Print the rows of a silver table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			entry, err := rt.app.Service.Get(args[0])
			if err != nil {
				return err
			}
			var model *domain.TableModel
			for i := range entry.Definition.Models {
				if entry.Definition.Models[i].Name == args[1] {
					model = &entry.Definition.Models[i]
				}
			}
			if model == nil {
				return domain.ErrNotFound("pipeline %q has no model %q", args[0], args[1])
			}

			frame, err := rt.app.Tables.Scan(cmd.Context(), *model, fileName)
			if err != nil {
				return err
			}
			return printFrame(cmd.OutOrStdout(), opts.output, frame)
		},
	}
	cmd.Flags().StringVar(&fileName, "file", "", "only rows loaded from this bronze file")
	return cmd
}

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger <pipeline>",
		Short: "Print the processed-file ledger of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			files, err := rt.app.Service.Ledger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{f.FileName, formatValue(f.FileVersion), formatValue(f.ProcessedAt)})
			}
			return printRows(cmd.OutOrStdout(), opts.output, []string{"file_name", "file_version", "processed_at"}, rows)
		},
	}
}

func newPipelinesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List configured pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			entries := rt.app.Service.List()
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				models := make([]string, 0, len(e.Definition.Models))
				for _, m := range e.Definition.Models {
					models = append(models, m.Name)
				}
				rows = append(rows, []string{e.Name(), e.Schedule, formatValue(e.Paused), joinNames(models)})
			}
			return printRows(cmd.OutOrStdout(), opts.output, []string{"name", "schedule", "paused", "models"}, rows)
		},
	}
}
