package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"morphogen/pkg/morphogen"
)

func newRunsCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var (
		limit       int
		successOnly bool
		failedOnly  bool
		summary     bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded synthesis runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			if successOnly && failedOnly {
				return errors.New("use either --success or --failed")
			}

			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if summary {
				s, err := client.RunSummary(ctx)
				if err != nil {
					return err
				}
				if flags.jsonOut {
					return writeJSON(out, s)
				}
				fmt.Fprintf(out, "runs=%d success=%d success_rate=%.3f retried=%d avg_generations=%.2f std_generations=%.2f mean_final_best=%.6f\n",
					s.TotalRuns, s.SuccessRuns, s.SuccessRate, s.RetriedRuns, s.AvgGenerations, s.StdGenerations, s.MeanFinalBest)
				kinds := make([]string, 0, len(s.GapsByKind))
				for kind := range s.GapsByKind {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					fmt.Fprintf(out, "gap kind=%s runs=%d\n", kind, s.GapsByKind[kind])
				}
				return nil
			}

			req := morphogen.RunsRequest{Limit: limit}
			if successOnly || failedOnly {
				v := successOnly
				req.Success = &v
			}
			items, err := client.Runs(ctx, req)
			if err != nil {
				return err
			}
			if flags.jsonOut {
				return writeJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(out, "%s created=%s success=%t attempts=%d generations=%d best=%.6f",
					item.RunID, item.CreatedAtUTC, item.Success, item.Attempts, item.Generations, item.FinalBestFitness)
				if item.MorphismName != "" {
					fmt.Fprintf(out, " morphism=%s", item.MorphismName)
				}
				if item.Gap != "" {
					fmt.Fprintf(out, " gap=%s", item.Gap)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", 20, "max runs to list")
	f.BoolVar(&successOnly, "success", false, "only successful runs")
	f.BoolVar(&failedOnly, "failed", false, "only failed runs")
	f.BoolVar(&summary, "summary", false, "aggregate all runs and write run_summary.json")
	return cmd
}

type runRefFlags struct {
	runID  string
	latest bool
	limit  int
}

func (r *runRefFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.runID, "run-id", "", "run id")
	f.BoolVar(&r.latest, "latest", false, "use the most recent run")
	f.IntVar(&r.limit, "limit", 0, "max records (0 means all)")
}

func (r runRefFlags) ref() morphogen.RunRef {
	return morphogen.RunRef{RunID: r.runID, Latest: r.latest, Limit: r.limit}
}

func newLineageCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var ref runRefFlags
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Show the lineage records of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			lineage, err := client.Lineage(cmd.Context(), ref.ref())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				return writeJSON(out, lineage)
			}
			for _, rec := range lineage {
				fmt.Fprintf(out, "gen=%d id=%s op=%s parents=%v fold=%s\n",
					rec.Generation, rec.AlgebraID, rec.Operation, rec.ParentIDs, rec.Summary)
			}
			return nil
		},
	}
	ref.bind(cmd)
	return cmd
}

func newFitnessCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var ref runRefFlags
	cmd := &cobra.Command{
		Use:   "fitness",
		Short: "Show the best fitness per generation of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			history, err := client.FitnessHistory(cmd.Context(), ref.ref())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				return writeJSON(out, history)
			}
			for i, best := range history {
				fmt.Fprintf(out, "gen=%d best=%.6f\n", i, best)
			}
			return nil
		},
	}
	ref.bind(cmd)
	return cmd
}

func newDiagnosticsCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var ref runRefFlags
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show per-generation population diagnostics of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			diagnostics, err := client.Diagnostics(cmd.Context(), ref.ref())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				return writeJSON(out, diagnostics)
			}
			for _, d := range diagnostics {
				fmt.Fprintf(out, "gen=%d best=%.6f mean=%.6f min=%.6f diversity=%d gated=%d best_id=%s\n",
					d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.FingerprintDiversity, d.GatedCount, d.BestAlgebraID)
			}
			return nil
		},
	}
	ref.bind(cmd)
	return cmd
}

func newExportCmd(_ *globalFlags, open openFunc) *cobra.Command {
	var (
		ref    runRefFlags
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts into an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), morphogen.ExportRequest{
				RunID:  ref.runID,
				Latest: ref.latest,
				OutDir: outDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&ref.runID, "run-id", "", "run id")
	f.BoolVar(&ref.latest, "latest", false, "export the most recent run")
	f.StringVar(&outDir, "out", exportsDir, "export directory")
	return cmd
}
