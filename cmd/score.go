package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/scorer"
)

var scoreEligible bool

var scoreCmd = &cobra.Command{
	Use:   "score <region> [region...]",
	Short: "Score candidate regions by carbon intensity",
	Long:  "Fetches current carbon data for each candidate region, scores them against each other, and prints the deterministic winner.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		candidates := make([]carbon.Region, 0, len(args))
		for _, arg := range args {
			candidates = append(candidates, carbon.Region(arg))
		}

		// Prime every candidate first so normalization sees the full set.
		eng.chain.WarmUp(ctx, candidates)

		results := make([]carbon.ScoreResult, 0, len(candidates))
		for _, region := range candidates {
			results = append(results, eng.scorer.Score(ctx, region, scoreEligible))
		}

		best, ok := scorer.PickBest(results)
		if !ok {
			return eris.New("no candidates scored")
		}

		formatScores(os.Stdout, results, best)
		return nil
	},
}

func formatScores(w io.Writer, results []carbon.ScoreResult, best carbon.ScoreResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tSCORE\tCONFIDENCE\tRATIONALE")
	for _, res := range results {
		fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\n",
			res.Region, res.Score, res.Confidence, res.Rationale)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nBest placement: %s (score %.1f)\n", best.Region, best.Score)
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreEligible, "eligible", true, "treat the workload as eligible for carbon-aware placement")
	rootCmd.AddCommand(scoreCmd)
}
