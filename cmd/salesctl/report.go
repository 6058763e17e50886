package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/erp/salesrecon/internal/application/report"
	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/infrastructure/cache"
	"github.com/erp/salesrecon/internal/interfaces/http/dto"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Load the sales report and print its totals",
	Example: `  # All shops, every supplier type
  salesctl report

  # Gold sales of shop 7 in March
  salesctl report --ps 7 --type gold --from 2026-03-01 --to 2026-03-31

  # Machine-readable output
  salesctl report --ps 7 --json`,
	RunE: runReport,
}

var posCmd = &cobra.Command{
	Use:   "pos",
	Short: "List the points of sale",
	RunE:  runPointsOfSale,
}

func init() {
	rootCmd.AddCommand(reportCmd, posCmd)

	reportCmd.Flags().String("ps", report.AllPointsOfSale, "Point of sale ID, or all")
	reportCmd.Flags().String("usr", "", "Seller filter (default: upstream.default_user)")
	reportCmd.Flags().StringSlice("type", nil, "Supplier types to include: gold, diamond, watch (repeatable)")
	reportCmd.Flags().String("from", "", "First invoice date (YYYY-MM-DD)")
	reportCmd.Flags().String("to", "", "Last invoice date (YYYY-MM-DD)")
	reportCmd.Flags().Bool("json", false, "Print the summary as JSON")

	posCmd.Flags().Bool("json", false, "Print the list as JSON")
}

// reportSummary is what report prints
type reportSummary struct {
	PointOfSale string                `json:"ps"`
	LoadedAt    time.Time             `json:"loaded_at"`
	Summary     sales.Summary         `json:"summary"`
	Failures    []report.FetchFailure `json:"failures,omitempty"`
}

func runReport(cmd *cobra.Command, _ []string) error {
	ps, _ := cmd.Flags().GetString("ps")
	usr, _ := cmd.Flags().GetString("usr")
	types, _ := cmd.Flags().GetStringSlice("type")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	asJSON, _ := cmd.Flags().GetBool("json")

	req := dto.SalesReportRequest{Types: types, From: from, To: to}
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dto.DateLayout, d); err != nil {
			return fmt.Errorf("invalid date %q, use YYYY-MM-DD", d)
		}
	}
	for _, t := range types {
		if !sales.SupplierType(t).IsValid() {
			return fmt.Errorf("invalid supplier type %q", t)
		}
	}

	watches := cache.NewInMemoryWatchDetailCache(cfg.Report.WatchCacheTTL)
	defer watches.Close()

	svc := report.NewService(client, watches,
		report.WithLogger(log),
		report.WithMaxConcurrency(cfg.Report.MaxConcurrency),
		report.WithDefaultSeller(cfg.Upstream.DefaultUser),
	)
	res, err := svc.Load(cmd.Context(), report.Query{
		PointOfSale: ps,
		Seller:      usr,
		Filter:      req.Filter(),
	})
	if err != nil {
		return err
	}

	out := reportSummary{
		PointOfSale: res.PointOfSale,
		LoadedAt:    res.LoadedAt,
		Summary:     res.Summary,
		Failures:    res.Failures,
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	printSummary(cmd.OutOrStdout(), out)
	return nil
}

func printSummary(w io.Writer, r reportSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	s := r.Summary
	fmt.Fprintf(tw, "Point of sale\t%s\n", r.PointOfSale)
	fmt.Fprintf(tw, "Invoices\t%d\n", s.InvoiceCount)
	fmt.Fprintf(tw, "Items\t%d\n", s.ItemCount)
	fmt.Fprintf(tw, "Weight (g)\t%s\n", s.TotalWeight.StringFixed(2))
	fmt.Fprintf(tw, "Gold\t%s\n", s.TotalGold.StringFixed(2))
	fmt.Fprintf(tw, "Diamond\t%s\n", s.TotalDiamond.StringFixed(2))
	fmt.Fprintf(tw, "Watch\t%s\n", s.TotalWatch.StringFixed(2))
	fmt.Fprintf(tw, "Rest LYD\t%s\n", s.TotalRestLYD.StringFixed(2))
	fmt.Fprintf(tw, "Rest USD\t%s\n", s.TotalRestUSD.StringFixed(2))
	fmt.Fprintf(tw, "Rest EUR\t%s\n", s.TotalRestEUR.StringFixed(2))
	fmt.Fprintf(tw, "LYD due\t%s\n", s.TotalLYDDue.StringFixed(0))
	_ = tw.Flush()

	if len(r.Failures) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d request(s) failed, totals are partial:\n", len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  ps=%s type=%s: %s\n", f.PointOfSale, f.SupplierType, f.Error)
	}
}

func runPointsOfSale(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	shops, err := client.ListPointsOfSale(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), shops)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tNAME")
	for _, s := range shops {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Code, s.Name)
	}
	return tw.Flush()
}
