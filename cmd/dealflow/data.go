package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/collector"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/config"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// --- Fetch Command ---

var fetchCmd = &cobra.Command{
	Use:   "fetch [zip...]",
	Short: "Collect listings for the configured buybox or for given zip codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var res collector.Result
		if len(args) > 0 {
			req := collector.AdhocRequest{ZipCodes: utils.NormalizeZipCodes(args)}
			if v, _ := cmd.Flags().GetFloat64("min-price"); cmd.Flags().Changed("min-price") {
				req.MinPrice = &v
			}
			if v, _ := cmd.Flags().GetFloat64("max-price"); cmd.Flags().Changed("max-price") {
				req.MaxPrice = &v
			}
			res, err = a.Collector.Adhoc(cmd.Context(), req)
		} else {
			b := a.Buybox()
			if path, _ := cmd.Flags().GetString("buybox"); path != "" {
				if b, err = config.LoadBuyboxFile(path); err != nil {
					return err
				}
			}
			res, err = a.Collector.Collect(cmd.Context(), b)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Collected %d properties across %d zip codes in %s\n",
			res.Stats.TotalProperties, res.Stats.ZipCodesProcessed, utils.FormatDuration(res.Duration))
		fmt.Fprintf(out, "  API requests used: %d | remaining: %d\n", res.Stats.APIRequestsUsed, res.Stats.RemainingRequests)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  [%s] %s\n", e.ErrorType, e.ErrorMessage)
		}
		if res.Analysis != nil {
			fmt.Fprintf(out, "  Analyzed %d of %d | avg cash flow %s/yr\n",
				res.Analysis.SuccessfulAnalyses, res.Analysis.TotalProperties,
				utils.FormatUSD(res.Analysis.Summary.AverageCashFlow))
		}
		return err
	},
}

func init() {
	fetchCmd.Flags().String("buybox", "", "buybox JSON file (default: configured)")
	fetchCmd.Flags().Float64("min-price", 0, "minimum price for ad-hoc zip codes")
	fetchCmd.Flags().Float64("max-price", 0, "maximum price for ad-hoc zip codes")
}

// --- Export Command ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored data as CSV",
}

var exportAnalysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Export stored analysis results",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		f := storage.Filter{}
		f.ZipCodes, _ = cmd.Flags().GetStringSlice("zip")
		f.StartDate, _ = cmd.Flags().GetString("start-date")
		f.EndDate, _ = cmd.Flags().GetString("end-date")
		f.BuyboxName, _ = cmd.Flags().GetString("buybox")
		if err := f.Validate(); err != nil {
			return err
		}
		results, err := a.Results.QueryResults(cmd.Context(), f)
		if err != nil {
			return err
		}
		columns, _ := cmd.Flags().GetStringSlice("columns")
		return withOutput(cmd, func(w io.Writer) error {
			return storage.WriteAnalysisCSV(w, results, columns)
		})
	},
}

var exportPropertiesCmd = &cobra.Command{
	Use:   "properties",
	Short: "Export stored listing snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		zips, _ := cmd.Flags().GetStringSlice("zip")
		if len(zips) == 0 {
			if zips, err = a.Files.PropertyZipCodes(cmd.Context()); err != nil {
				return err
			}
		}
		d, _ := cmd.Flags().GetString("date")
		buybox, _ := cmd.Flags().GetString("buybox")

		var rows []storage.ZipProperty
		for _, zip := range zips {
			props, err := a.Files.LoadProperties(cmd.Context(), zip, d, buybox)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			for _, p := range props {
				rows = append(rows, storage.ZipProperty{ZipCode: zip, Property: p})
			}
		}
		return withOutput(cmd, func(w io.Writer) error {
			return storage.WritePropertiesCSV(w, rows, time.Now())
		})
	},
}

func init() {
	exportCmd.PersistentFlags().StringP("out", "o", "", "output file (default: stdout)")
	exportCmd.PersistentFlags().StringSlice("zip", nil, "zip codes (default: all)")
	exportCmd.PersistentFlags().String("buybox", "", "buybox name")

	exportAnalysisCmd.Flags().String("start-date", "", "first analysis date (YYYY-MM-DD)")
	exportAnalysisCmd.Flags().String("end-date", "", "last analysis date (YYYY-MM-DD)")
	exportAnalysisCmd.Flags().StringSlice("columns", nil, "column subset (see GET /api/v1/analysis/columns)")
	exportPropertiesCmd.Flags().String("date", storage.DateLatest, "snapshot date (YYYY-MM-DD or latest)")

	exportCmd.AddCommand(exportAnalysisCmd, exportPropertiesCmd)
}

// withOutput runs write against the --out file, or stdout when unset.
func withOutput(cmd *cobra.Command, write func(io.Writer) error) error {
	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("export written", "path", path)
	return nil
}

// --- Cleanup Command ---

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stored snapshots older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		days := cfg.Storage.RetentionDays
		if cmd.Flags().Changed("days") {
			days, _ = cmd.Flags().GetInt("days")
		}
		res, err := a.Files.Cleanup(cmd.Context(), days)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d snapshot directories older than %s\n", len(res.Removed), res.Cutoff)
		for _, dir := range res.Removed {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", dir)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Int("days", 0, "days to keep (default: storage.retention_days)")
}

// --- Migrate Command ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the postgres result store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: storage.database_url is not set", models.ErrConfiguration)
		}
		db, err := storage.OpenPostgres(cmd.Context(), cfg.Storage.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		loc := loadLocation(cfg.Scheduler.Timezone)
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintln(out, "  dealflow: System Status")
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
		fmt.Fprintf(out, "  Time:          %s\n", utils.FormatDateTime(time.Now(), loc))
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Configuration:")
		fmt.Fprintf(out, "    Storage:       %s (%s)\n", storageDriver(), cfg.Storage.DataPath)
		fmt.Fprintf(out, "    Reference:     %s\n", cfg.Financial.Rental.HUDDataPath)
		fmt.Fprintf(out, "    Buybox:        %s %v\n", cfg.Buybox.Name, cfg.Buybox.ZipCodes)
		fmt.Fprintf(out, "    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		sched := a.Scheduler.Status()
		fmt.Fprintf(out, "    Scheduler:     enabled=%t cron=%q tz=%s\n", sched.Enabled, sched.CronSchedule, sched.Timezone)
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Fprintf(out, "    %-25s %s\n", k.Name+":", status)
		}
		quota := a.Listing.Stats()
		fmt.Fprintf(out, "    %-25s %d used, %d remaining\n", "Listing API quota:", quota.RequestCount, quota.RemainingRequests)
		fmt.Fprintln(out)

		st, err := a.Files.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "  Stored Data:")
		fmt.Fprintf(out, "    Listing zip codes:   %d (%d snapshots)\n", st.PropertyZipCodes, st.PropertySnapshots)
		fmt.Fprintf(out, "    Analysis zip codes:  %d (%d snapshots)\n", st.AnalysisZipCodes, st.AnalysisSnapshots)
		fmt.Fprintf(out, "    Batch runs:          %d\n", st.BatchRuns)
		fmt.Fprintf(out, "    Error records:       %d\n", st.ErrorRecords)
		if st.LatestDate != "" {
			fmt.Fprintf(out, "    Latest snapshot:     %s\n", st.LatestDate)
		}
		fmt.Fprintln(out, "═══════════════════════════════════════")
		return nil
	},
}

func storageDriver() string {
	if cfg.Storage.Driver == "" {
		return "file"
	}
	return cfg.Storage.Driver
}

// loadLocation resolves an IANA zone name, falling back to UTC.
func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", name)
		return time.UTC
	}
	return loc
}
