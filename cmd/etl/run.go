package main

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"duck-etl/internal/domain"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var parallelism int
	cmd := &cobra.Command{
		Use:   "run [pipeline...]",
		Short: "Run pipelines once",
		Long:  "Runs the named pipelines, or every configured pipeline when none is named. Distinct pipelines run concurrently up to --parallel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if !cmd.Flags().Changed("parallel") {
				parallelism = rt.cfg.RunParallelism
			}

			results, runErr := rt.app.Service.RunAll(cmd.Context(), args, domain.TriggerTypeManual, parallelism)

			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(results))
			for _, name := range names {
				res := results[name]
				rows = append(rows, []string{
					name,
					strconv.Itoa(res.FilesSeen),
					strconv.Itoa(res.FilesProcessed),
					strconv.Itoa(res.FilesSkipped),
					res.RunID,
				})
			}
			if err := printRows(cmd.OutOrStdout(), opts.output,
				[]string{"pipeline", "files_seen", "files_processed", "files_skipped", "run_id"}, rows); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().IntVar(&parallelism, "parallel", 1, "pipelines run concurrently (default RUN_PARALLELISM)")
	return cmd
}
