package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/reference"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// --- Reference Command (fair-market-rent table) ---

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Inspect and convert the fair-market-rent reference table",
}

var referenceStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reference table statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := reference.NewMatcher(reference.NewFileSource(cfg.Financial.Rental.HUDDataPath, logger), logger)
		st, err := m.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Reference table: %s\n", cfg.Financial.Rental.HUDDataPath)
		fmt.Fprintf(out, "  Records:    %d\n", st.TotalRecords)
		fmt.Fprintf(out, "  Zip codes:  %d\n", st.UniqueZipCodes)
		fmt.Fprintf(out, "  Bedrooms:   %d-%d\n", st.BedroomRange.Min, st.BedroomRange.Max)
		fmt.Fprintf(out, "  Years:      %d-%d\n", st.YearRange.Min, st.YearRange.Max)
		fmt.Fprintf(out, "  Avg rent:   %s\n", utils.FormatUSD(st.AverageRent))
		return nil
	},
}

var referenceSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search reference records",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := reference.NewMatcher(reference.NewFileSource(cfg.Financial.Rental.HUDDataPath, logger), logger)
		q := reference.Query{}
		q.ZipCode, _ = cmd.Flags().GetString("zip")
		if cmd.Flags().Changed("bedrooms") {
			beds, _ := cmd.Flags().GetInt("bedrooms")
			q.Bedrooms = &beds
		}
		q.MinRent, _ = cmd.Flags().GetFloat64("min-rent")
		q.MaxRent, _ = cmd.Flags().GetFloat64("max-rent")
		q.Year, _ = cmd.Flags().GetInt("year")

		records, err := m.Search(cmd.Context(), q)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	},
}

var referenceConvertCmd = &cobra.Command{
	Use:   "convert <input.csv|input.html> <output.json>",
	Short: "Convert a published rent table (CSV or saved HTML page) to reference JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, outPath := args[0], args[1]
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()

		year, _ := cmd.Flags().GetInt("year")
		if year == 0 {
			year = time.Now().Year()
		}
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(in)), ".")
		}

		var res reference.ImportResult
		switch format {
		case "csv":
			res, err = reference.ImportCSV(f, year)
		case "html", "htm":
			res, err = reference.ImportHTML(f, year)
		default:
			return fmt.Errorf("unknown input format %q (use --format csv|html)", format)
		}
		if err != nil {
			return err
		}
		for _, rej := range res.Rejected {
			logger.Warn("row rejected", "row", rej.String())
		}
		if err := reference.WriteJSON(outPath, res.Records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records (%s layout, %d rejected) to %s\n",
			len(res.Records), res.Layout, len(res.Rejected), outPath)
		return nil
	},
}

func init() {
	referenceSearchCmd.Flags().String("zip", "", "zip code")
	referenceSearchCmd.Flags().Int("bedrooms", 0, "bedroom count")
	referenceSearchCmd.Flags().Float64("min-rent", 0, "minimum fair market rent")
	referenceSearchCmd.Flags().Float64("max-rent", 0, "maximum fair market rent")
	referenceSearchCmd.Flags().Int("year", 0, "table year")

	referenceConvertCmd.Flags().Int("year", 0, "year for tables without a year column (default: current year)")
	referenceConvertCmd.Flags().String("format", "", "input format: csv or html (default: from extension)")

	referenceCmd.AddCommand(referenceStatsCmd, referenceSearchCmd, referenceConvertCmd)
}
