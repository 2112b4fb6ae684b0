package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/franz/crate-digger/internal/features"
	"github.com/franz/crate-digger/internal/util"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the fitted feature space of the stored catalog",
	Long: `Load the stored catalog, fit the feature space and print its layout:
the size of every block, the scaling bounds of the continuous attributes and
the year and popularity domains.

With --track, print the non-zero components of one track's vector.`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().String("track", "", "print the vector of this track id")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	snap, err := a.svc.Reload(cmd.Context(), a.db)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	m := snap.Matrix
	space := m.Space()

	if trackID, _ := cmd.Flags().GetString("track"); trackID != "" {
		return printTrackVector(m, trackID)
	}

	l := space.Layout()
	fmt.Printf("Feature space %s (%s tracks)\n\n", space.ID(), util.FormatCount(m.Len()))
	fmt.Println(renderTable(
		[]string{"Block", "Offset", "Width"},
		[][]string{
			{"genre tf-idf", strconv.Itoa(l.Text), strconv.Itoa(l.Year - l.Text)},
			{"release year", strconv.Itoa(l.Year), strconv.Itoa(l.Popularity - l.Year)},
			{"popularity bucket", strconv.Itoa(l.Popularity), strconv.Itoa(l.Continuous - l.Popularity)},
			{"continuous", strconv.Itoa(l.Continuous), strconv.Itoa(l.Dim - l.Continuous)},
			{"total", "", strconv.Itoa(l.Dim)},
		},
		[]columnAlignment{alignLeft, alignRight, alignRight},
	))

	bounds := space.Bounds()
	rows := make([][]string, len(bounds))
	for i, b := range bounds {
		rows[i] = []string{b.Name, formatScore(b.Min), formatScore(b.Max)}
	}
	fmt.Println()
	fmt.Println(renderTable([]string{"Attribute", "Min", "Max"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))

	years := space.Years()
	if len(years) > 0 {
		fmt.Printf("\nYears: %d..%d (%d distinct)\n", years[0], years[len(years)-1], len(years))
	}
	fmt.Printf("Popularity buckets: %v\n", space.PopularityBuckets())
	fmt.Printf("Genre vocabulary: %s tokens\n", util.FormatCount(len(space.Vocabulary())))
	return nil
}

func printTrackVector(m *features.Matrix, trackID string) error {
	i, ok := m.Lookup(trackID)
	if !ok {
		return fmt.Errorf("track %s: %w", trackID, util.ErrNotFound)
	}
	t := m.Track(i)
	names := m.Space().FeatureNames()

	var rows [][]string
	for j, v := range m.Vector(i) {
		if v != 0 {
			rows = append(rows, []string{strconv.Itoa(j), names[j], formatScore(v)})
		}
	}

	fmt.Printf("%s - %s (%s)\n\n", t.PrimaryArtist(), t.Name, t.ID)
	fmt.Println(renderTable([]string{"Index", "Feature", "Value"}, rows, []columnAlignment{alignRight, alignLeft, alignRight}))
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
