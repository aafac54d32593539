package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/config"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/report"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [properties.json]",
	Short: "Analyze listings from a JSON file or from stored snapshots",
	Long: `Analyze a JSON file of listings (an array, or an object with a
"properties" array), or the stored snapshot for a zip code.

Examples:
  dealflow analyze listings.json
  dealflow analyze --zip 78701 --date latest --save
  dealflow analyze listings.json --financial financial.json --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		zip, _ := cmd.Flags().GetString("zip")
		if len(args) == 0 && zip == "" {
			return errors.New("provide a properties file or --zip")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fin := a.Financial()
		if path, _ := cmd.Flags().GetString("financial"); path != "" {
			if fin, err = config.LoadFinancialFile(path); err != nil {
				return err
			}
		}

		buybox, _ := cmd.Flags().GetString("buybox")
		var props []models.Property
		if len(args) == 1 {
			if props, err = readPropertiesFile(args[0]); err != nil {
				return err
			}
		} else {
			d, _ := cmd.Flags().GetString("date")
			if props, err = a.Files.LoadProperties(cmd.Context(), zip, d, buybox); err != nil {
				return err
			}
			var quality models.PropertyQualityReport
			props, _, quality = models.ValidateProperties(props)
			logger.Info("loaded stored listings", "zip", zip, "valid", quality.Valid, "invalid", quality.Invalid)
		}

		batch, err := a.Analyzer.AnalyzeBatch(cmd.Context(), props, fin, analysis.WithBuyboxName(buybox))
		if err != nil {
			return err
		}
		if save, _ := cmd.Flags().GetBool("save"); save {
			if err := a.Results.SaveBatch(cmd.Context(), batch); err != nil {
				return fmt.Errorf("save batch: %w", err)
			}
			logger.Info("batch saved", "id", batch.ID, "results", len(batch.Results))
		}

		output, _ := cmd.Flags().GetString("output")
		top, _ := cmd.Flags().GetInt("top")
		detail, _ := cmd.Flags().GetBool("detail")
		return writeBatch(cmd.OutOrStdout(), &batch, output, top, detail)
	},
}

func init() {
	analyzeCmd.Flags().String("zip", "", "analyze the stored snapshot for this zip code")
	analyzeCmd.Flags().String("date", storage.DateLatest, "snapshot date (YYYY-MM-DD or latest)")
	analyzeCmd.Flags().String("buybox", "", "buybox name (snapshot filter and batch label)")
	analyzeCmd.Flags().String("financial", "", "financial assumptions JSON file (default: configured)")
	analyzeCmd.Flags().StringP("output", "o", "text", "output format (text, json)")
	analyzeCmd.Flags().Int("top", 10, "properties shown in the text report (0 = all)")
	analyzeCmd.Flags().Bool("detail", false, "print the full breakdown of every property")
	analyzeCmd.Flags().Bool("save", false, "store the batch results")
}

// writeBatch renders a batch as JSON or as the text report.
func writeBatch(w io.Writer, batch *models.BatchAnalysisResult, output string, top int, detail bool) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	case "text", "":
		rc := report.DefaultReportConfig()
		rc.TopN = top
		if loc := cfg.Scheduler.Timezone; loc != "" {
			rc.Location = loadLocation(loc)
		}
		text, err := report.GenerateText(batch, rc)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		if detail {
			for _, r := range batch.Results {
				if _, err := io.WriteString(w, report.PropertyText(r)); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown output format %q", models.ErrValidation, output)
	}
}

// readPropertiesFile accepts a JSON array of listings or an object with a
// "properties" array (the stored snapshot format).
func readPropertiesFile(path string) ([]models.Property, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return decodeProperties(data)
}

func decodeProperties(data []byte) ([]models.Property, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var props []models.Property
		if err := json.Unmarshal(data, &props); err != nil {
			return nil, fmt.Errorf("%w: decode properties: %v", models.ErrValidation, err)
		}
		return props, nil
	}
	var wrapped struct {
		Properties []models.Property `json:"properties"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: decode properties: %v", models.ErrValidation, err)
	}
	if wrapped.Properties == nil {
		return nil, fmt.Errorf("%w: no properties array", models.ErrValidation)
	}
	return wrapped.Properties, nil
}
