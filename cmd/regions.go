package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

var regionsJSON bool

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Show current carbon metrics for all known regions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		if len(eng.regions) == 0 {
			return eris.New("no regions configured; set aggregator.regions or a topology mapping table")
		}

		eng.chain.WarmUp(ctx, eng.regions)

		agg := sustain.New(eng.chain, eng.dir, eng.regions, eng.nodes,
			cfg.Footprint, cfg.Aggregator.Interval(), nil)
		snap := agg.BuildSnapshot()

		if regionsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		formatRegions(os.Stdout, snap)
		return nil
	},
}

func formatRegions(w io.Writer, snap *sustain.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tREGION\tINTENSITY\tRENEWABLE\tCONFIDENCE\tSOURCE")
	for _, rm := range snap.Regions {
		if !rm.HasData {
			fmt.Fprintf(tw, "-\t%s\t-\t-\t%s\t-\n", rm.Region, rm.Confidence)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%.0f g/kWh\t%.0f%%\t%s\t%s\n",
			rm.Rank, rm.Region, rm.IntensityGPerKWh, rm.RenewablePct, rm.Confidence, rm.Source)
	}
	tw.Flush()

	if snap.Totals.RegionsWithData > 0 {
		fmt.Fprintf(w, "\nAverage intensity: %.0f g/kWh, greenest: %s, dirtiest: %s\n",
			snap.Totals.AvgIntensityGPerKWh,
			snap.Totals.GreenestRegion,
			snap.Totals.DirtiestRegion,
		)
	}
}

func init() {
	regionsCmd.Flags().BoolVar(&regionsJSON, "json", false, "emit the full snapshot as JSON")
	rootCmd.AddCommand(regionsCmd)
}
