package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"morphogen/internal/evo"
	"morphogen/internal/model"
	"morphogen/internal/resonance"
	"morphogen/pkg/morphogen"
)

func newCatalogCmd(flags *globalFlags, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List registered morphisms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			morphisms, err := client.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				return writeJSON(out, morphisms)
			}
			for _, m := range morphisms {
				fmt.Fprintf(out, "%s v%d kind=%s origin=%s signature=%q\n",
					m.Name, m.Version, m.Implementation.Kind, m.Provenance.Origin, m.Signature)
			}
			return nil
		},
	}
}

func newRegisterCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a morphism from a JSON descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("register requires --file")
			}
			var m model.Morphism
			if err := readJSONFile(file, &m); err != nil {
				return err
			}

			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Register(cmd.Context(), m); err != nil {
				return err
			}
			stored, _, err := client.Get(cmd.Context(), m.Name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				return writeJSON(out, stored)
			}
			p := stored.Properties
			fmt.Fprintf(out, "registered name=%s version=%d associative=%s commutative=%s identity=%s idempotent=%s\n",
				stored.Name, stored.Version, p.Associative, p.Commutative, p.HasIdentity, p.Idempotent)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "morphism descriptor JSON file")
	return cmd
}

func newReviseCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var (
		implFile    string
		description string
		signature   string
		keywords    []string
	)
	cmd := &cobra.Command{
		Use:   "revise <base> <new-name>",
		Short: "Register a new version of a morphism under a fresh name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := morphogen.Revision{
				Base:        args[0],
				Name:        args[1],
				Signature:   signature,
				Description: description,
				Keywords:    keywords,
			}
			if implFile != "" {
				var impl model.Implementation
				if err := readJSONFile(implFile, &impl); err != nil {
					return err
				}
				rev.Implementation = &impl
			}

			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			stored, err := client.Revise(cmd.Context(), rev)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				return writeJSON(out, stored)
			}
			fmt.Fprintf(out, "revised name=%s version=%d parent=%s\n",
				stored.Name, stored.Version, strings.Join(stored.Provenance.Parents, ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&implFile, "impl", "", "implementation JSON file; the base implementation is kept when empty")
	cmd.Flags().StringVar(&description, "description", "", "replacement description")
	cmd.Flags().StringVar(&signature, "signature", "", "replacement signature")
	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "replacement keywords (repeatable)")
	return cmd
}

func newMatchCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var minConfidence float64
	cmd := &cobra.Command{
		Use:   "match <intent>",
		Short: "Rank catalog morphisms against a free-text intent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Match(cmd.Context(), strings.Join(args, " "), minConfidence)
			if err != nil {
				return err
			}
			if flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printMatch(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "confidence threshold (configured default when 0)")
	return cmd
}

func printMatch(out io.Writer, result resonance.ResonanceResult) {
	for _, c := range result.Candidates {
		fmt.Fprintf(out, "candidate name=%s confidence=%.3f\n", c.Name, c.Confidence)
	}
	for _, c := range result.NearMisses {
		fmt.Fprintf(out, "near_miss name=%s confidence=%.3f\n", c.Name, c.Confidence)
	}
	if len(result.SuggestedPipeline) > 0 {
		fmt.Fprintf(out, "pipeline=%s\n", strings.Join(result.SuggestedPipeline, " -> "))
	}
	fmt.Fprintf(out, "gap=%t", result.GapDetected)
	if len(result.UnresolvedTerms) > 0 {
		fmt.Fprintf(out, " unresolved=%s", strings.Join(result.UnresolvedTerms, ","))
	}
	if len(result.MissingMorphisms) > 0 {
		fmt.Fprintf(out, " missing=%s", strings.Join(result.MissingMorphisms, ","))
	}
	fmt.Fprintln(out)
}

func newUsageCmd(_ *globalFlags, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <name> [name...]",
		Short: "Record a composition that was actually used",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.RecordUsage(cmd.Context(), args); err != nil {
				return err
			}
			registry := client.Registry()
			out := cmd.OutOrStdout()
			for _, name := range args {
				fmt.Fprintf(out, "usage name=%s count=%d\n", name, registry.Usage(name))
			}
			return nil
		},
	}
}

type synthesizeFlags struct {
	casesFile  string
	name       string
	intent     string
	seed       int64
	gens       int
	complexity int
	seeds      []string
	runID      string
	register   bool
}

func newSynthesizeCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var sf synthesizeFlags
	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Evolve a fold that reproduces example input/output pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases, err := readCases(sf.casesFile)
			if err != nil {
				return err
			}

			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			result, err := client.Synthesize(ctx, morphogen.SynthesizeRequest{
				Cases:           cases,
				Name:            sf.name,
				Intent:          sf.intent,
				Seed:            sf.seed,
				MaxGenerations:  sf.gens,
				ComplexityLimit: sf.complexity,
				Seeds:           sf.seeds,
				RunID:           sf.runID,
			})
			if err != nil {
				return err
			}
			if sf.register && result.Success {
				if err := client.Register(ctx, *result.Morphism); err != nil {
					return err
				}
			}
			if flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), synthesisView(result))
			}
			printSynthesis(cmd.OutOrStdout(), result)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&sf.casesFile, "cases", "", "JSON file with [{\"input\": [...], \"expected\": ...}] cases")
	f.StringVar(&sf.name, "name", "", "name for the synthesized morphism")
	f.StringVar(&sf.intent, "intent", "", "intent text stored as keywords")
	f.Int64Var(&sf.seed, "seed", 0, "random seed (configured when 0)")
	f.IntVar(&sf.gens, "gens", 0, "max generations (configured when 0)")
	f.IntVar(&sf.complexity, "complexity", 0, "accumulator field limit (configured when 0)")
	f.StringSliceVar(&sf.seeds, "seeds", nil, "seed accumulators, e.g. sum,count")
	f.StringVar(&sf.runID, "run-id", "", "explicit run id")
	f.BoolVar(&sf.register, "register", false, "register the morphism on success")
	return cmd
}

type resolveFlags struct {
	casesFile     string
	name          string
	seed          int64
	minConfidence float64
	register      bool
}

func newResolveCmd(flags *globalFlags, open openFunc) *cobra.Command {
	var rf resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve <intent>",
		Short: "Match an intent and synthesize a morphism when the catalog has a gap",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cases []model.TestCase
			if rf.casesFile != "" {
				var err error
				if cases, err = readCases(rf.casesFile); err != nil {
					return err
				}
			}

			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Resolve(cmd.Context(), morphogen.ResolveRequest{
				Intent:        strings.Join(args, " "),
				MinConfidence: rf.minConfidence,
				Cases:         cases,
				Name:          rf.name,
				Seed:          rf.seed,
				AutoRegister:  rf.register,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				view := map[string]any{"match": res.Match, "registered": res.Registered}
				if res.Synthesis != nil {
					view["synthesis"] = synthesisView(*res.Synthesis)
				}
				return writeJSON(out, view)
			}
			printMatch(out, res.Match)
			if res.Synthesis != nil {
				printSynthesis(out, *res.Synthesis)
			}
			if res.Registered != "" {
				fmt.Fprintf(out, "registered name=%s\n", res.Registered)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&rf.casesFile, "cases", "", "JSON cases used when the match reports a gap")
	f.StringVar(&rf.name, "name", "", "name for a synthesized morphism")
	f.Int64Var(&rf.seed, "seed", 0, "random seed (configured when 0)")
	f.Float64Var(&rf.minConfidence, "min-confidence", 0, "confidence threshold (configured default when 0)")
	f.BoolVar(&rf.register, "register", false, "register a synthesized morphism on success")
	return cmd
}

type synthesisJSON struct {
	RunID         string             `json:"run_id"`
	Success       bool               `json:"success"`
	Attempts      int                `json:"attempts"`
	Generations   int                `json:"generations"`
	Best          evo.ScoredAlgebra  `json:"best"`
	Morphism      *model.Morphism    `json:"morphism,omitempty"`
	FailureReport *evo.FailureReport `json:"failure_report,omitempty"`
	Gap           *evo.Gap           `json:"gap,omitempty"`
}

func synthesisView(r evo.SynthesisResult) synthesisJSON {
	return synthesisJSON{
		RunID:         r.RunID,
		Success:       r.Success,
		Attempts:      r.Attempts,
		Generations:   r.Generations(),
		Best:          r.Best,
		Morphism:      r.Morphism,
		FailureReport: r.FailureReport,
		Gap:           r.Gap,
	}
}

func printSynthesis(out io.Writer, r evo.SynthesisResult) {
	if r.Success {
		fmt.Fprintf(out, "synthesized name=%s run_id=%s attempts=%d generations=%d fold=%s\n",
			r.Morphism.Name, r.RunID, r.Attempts, r.Generations(), r.Best.Algebra.Summary())
		return
	}
	fmt.Fprintf(out, "synthesis failed run_id=%s attempts=%d best_fitness=%.6f best=%s\n",
		r.RunID, r.Attempts, r.Best.Fitness, r.Best.Algebra.Summary())
	if r.FailureReport != nil {
		gap := r.FailureReport.CharacterizedGap
		fmt.Fprintf(out, "gap kind=%s description=%q\n", gap.Kind, gap.Description)
	}
}

func readCases(path string) ([]model.TestCase, error) {
	if path == "" {
		return nil, errors.New("--cases is required")
	}
	var cases []model.TestCase
	if err := readJSONFile(path, &cases); err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no cases in %s", path)
	}
	return cases, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
