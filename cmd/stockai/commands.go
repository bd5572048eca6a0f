package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/stockai/internal/config"
	"github.com/kalambet/stockai/internal/export"
	"github.com/kalambet/stockai/internal/ingest"
	"github.com/kalambet/stockai/internal/reorder"
	"github.com/kalambet/stockai/internal/storage"
)

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process every pending invoice PDF",
	Long: `Process every PDF in the pending directory: read its text, extract the
invoice with the language model, normalize names, store the lines in the
customer's database and move the file to the processed directory.

A failing file is reported and left in place; the batch continues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.withIngest(cmd.Context()); err != nil {
			return err
		}

		report, err := a.pipeline.Run(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		printReport(cmd.OutOrStdout(), report)
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d invoices failed", report.Failed, len(report.Outcomes))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().Bool("json", false, "print the run report as JSON")
}

func printReport(w io.Writer, r *ingest.Report) {
	if len(r.Outcomes) == 0 {
		fmt.Fprintln(w, r.Text())
		return
	}
	for _, o := range r.Outcomes {
		switch {
		case o.State == ingest.StateFailed:
			fmt.Fprintln(w, colorize(colorRed, "✗ "+o.Line()))
		case o.Disposition == ingest.DispositionDuplicate:
			fmt.Fprintln(w, colorize(colorYellow, "⚠ "+o.Line()))
		default:
			fmt.Fprintln(w, colorize(colorGreen, "✓ "+o.Line()))
		}
	}
	if r.Remaining > 0 {
		fmt.Fprintf(w, "%d invoices left pending.\n", r.Remaining)
	}
	fmt.Fprintf(w, "%s stored, %s duplicates, %s failed\n",
		colorize(colorBold, strconv.Itoa(r.Stored)),
		colorize(colorBold, strconv.Itoa(r.Duplicates)),
		colorize(colorBold, strconv.Itoa(r.Failed)))
}

// --- pending ---

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List invoice PDFs waiting to be processed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := ingest.ListPending(a.cfg.Storage.PendingDir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ingest.NoPendingMessage)
			return nil
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

// --- entities ---

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the businesses with stored invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entities, err := a.stores.Entities()
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No entities found.")
			return nil
		}
		for _, e := range entities {
			fmt.Fprintln(cmd.OutOrStdout(), e)
		}
		return nil
	},
}

// --- lines ---

var linesCmd = &cobra.Command{
	Use:   "lines <entity>",
	Short: "Show the stored invoice lines of a business",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		lines, err := a.stores.Query(args[0], f)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), lines)
		}
		printLines(cmd.OutOrStdout(), lines)
		return nil
	},
}

func init() {
	linesCmd.Flags().String("product", "", "only lines of this normalized product name")
	linesCmd.Flags().String("invoice", "", "only lines of this invoice number")
	linesCmd.Flags().String("from", "", "earliest issue date (YYYY-MM-DD or DD/MM/YYYY)")
	linesCmd.Flags().String("to", "", "latest issue date (YYYY-MM-DD or DD/MM/YYYY)")
	linesCmd.Flags().Bool("json", false, "print JSON")
}

func filterFromFlags(cmd *cobra.Command) (storage.Filter, error) {
	var f storage.Filter
	f.Product, _ = cmd.Flags().GetString("product")
	f.Invoice, _ = cmd.Flags().GetString("invoice")

	for _, d := range []struct {
		flag string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw, _ := cmd.Flags().GetString(d.flag)
		if raw == "" {
			continue
		}
		t, ok := storage.ParseDate(raw)
		if !ok {
			return f, fmt.Errorf("invalid --%s date %q", d.flag, raw)
		}
		*d.dst = t
	}
	return f, nil
}

func printLines(w io.Writer, lines []storage.Line) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "No invoice lines found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tINVOICE\tDATE\tPRODUCT\tQTY\tUNIT\tTOTAL")
	for _, l := range lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%g\t%.2f\t%.2f\n",
			l.ID, l.InvoiceNumber, l.IssueDate, l.ProductName, l.Quantity, l.UnitPrice, l.LineTotal)
	}
	tw.Flush()
}

// --- reorder ---

var reorderCmd = &cobra.Command{
	Use:   "reorder <entity>",
	Short: "Show daily demand, safety stock and reorder point per product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.analyzer.Compute(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), recs)
		}
		printRecommendations(cmd.OutOrStdout(), recs)
		return nil
	},
}

func init() {
	reorderCmd.Flags().Bool("json", false, "print JSON")
}

func printRecommendations(w io.Writer, recs []reorder.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "Not enough purchase history to compute reorder points.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tDAILY DEMAND\tSAFETY STOCK\tREORDER POINT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%d\n", r.Product, r.DailyDemand, r.SafetyStock, r.ReorderPoint)
	}
	tw.Flush()
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <entity> <line-id>",
	Short: "Delete one stored invoice line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid line id %q", args[1])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.stores.Delete(args[0], id)
		if err != nil {
			return err
		}
		if n == 0 {
			printWarning("No line %d in %s", id, args[0])
			return nil
		}
		printSuccess("Deleted line %d from %s", id, args[0])
		return nil
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <entity>",
	Short: "Write invoice lines and reorder points to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity := args[0]
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = entity + ".xlsx"
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := exportWorkbook(cmd.Context(), a, entity, out); err != nil {
			return err
		}
		printSuccess("Exported %s to %s", entity, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "output file (default: <entity>.xlsx)")
}

func exportWorkbook(ctx context.Context, a *app, entity, out string) error {
	lines, err := a.stores.ReadAll(entity)
	if err != nil {
		return err
	}
	recs, err := a.analyzer.Compute(ctx, entity)
	if err != nil {
		return err
	}
	b, err := export.Workbook(lines, recs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", colorize(colorCyan, config.FilePath()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		if err := cfg.Validate(); err != nil {
			printWarning("%v", err)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
