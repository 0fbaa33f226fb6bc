package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"propdash/internal/domain"
	"propdash/internal/service/ingestion"
	"propdash/internal/service/query"
)

// inspectReport is what `inspect` prints for one file.
type inspectReport struct {
	File     string                 `json:"file" yaml:"file"`
	Metadata domain.SessionMetadata `json:"metadata" yaml:"metadata"`
	Filters  domain.Bounds          `json:"filters" yaml:"filters"`
	Metrics  domain.Metrics         `json:"metrics" yaml:"metrics"`
	Warnings []string               `json:"warnings" yaml:"warnings"`
	Preview  []previewRow           `json:"preview" yaml:"preview"`
}

type previewRow struct {
	PropertyID     string  `json:"property_id" yaml:"property_id"`
	Address        string  `json:"address" yaml:"address"`
	PurchasePrice  float64 `json:"purchase_price" yaml:"purchase_price"`
	ContractDate   string  `json:"contract_date" yaml:"contract_date"`
	PrimaryPurpose *string `json:"primary_purpose" yaml:"primary_purpose"`
}

// inspectOptions are the flags of `inspect`.
type inspectOptions struct {
	maxSizeMB   int
	rows        int
	repeatSales bool
	verbose     bool
}

func (o *inspectOptions) register(fs *pflag.FlagSet) {
	fs.IntVar(&o.maxSizeMB, "max-size", 500, "Maximum file size in MB")
	fs.IntVarP(&o.rows, "rows", "n", domain.PageSize, "Number of preview rows")
	fs.BoolVar(&o.repeatSales, "repeat-sales", false, "Only summarize properties sold more than once")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "Log pipeline decisions to stderr")
}

func newInspectCmd() *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Run the upload pipeline over a local file and report the result",
		Long: "Decodes, validates and cleans a property-sale CSV exactly as the server would on upload, " +
			"then prints the detected encoding, column mapping warnings, filter bounds, summary metrics and a row preview.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.rows < 0 {
				return fmt.Errorf("--rows must not be negative")
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			report, err := inspect(raw, filepath.Base(args[0]), int64(opts.maxSizeMB)*1024*1024, opts.rows, opts.repeatSales, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch getOutputFormat(cmd) {
			case outputJSON:
				return printJSON(out, report)
			case outputYAML:
				return printYAML(out, report)
			default:
				renderReport(out, report)
				return nil
			}
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

func inspect(raw []byte, name string, maxBytes int64, rows int, repeatSales bool, logger *slog.Logger) (*inspectReport, error) {
	res, err := ingestion.New(maxBytes, logger).Process(raw, name)
	if err != nil {
		return nil, err
	}

	spec := domain.FilterSpec{RepeatSalesOnly: repeatSales}
	engine := query.NewEngine(logger)
	sorted, warnings := engine.Sorted(res.Table, spec)

	report := &inspectReport{
		File:     name,
		Metadata: res.Metadata,
		Filters:  res.Bounds,
		Metrics:  query.ComputeMetrics(sorted),
		Warnings: append(append([]string{}, res.Warnings...), warnings...),
		Preview:  []previewRow{},
	}
	for _, s := range sorted[:min(rows, len(sorted))] {
		report.Preview = append(report.Preview, previewRow{
			PropertyID:     s.PropertyID,
			Address:        s.Address(),
			PurchasePrice:  s.PurchasePrice,
			ContractDate:   s.ContractDate.Format(domain.DateLayout),
			PrimaryPurpose: s.PrimaryPurpose,
		})
	}
	return report, nil
}

func renderReport(w io.Writer, r *inspectReport) {
	m := r.Metadata
	printTable(w, r.File, []any{"Property", "Value"}, [][]any{
		{"Encoding", m.DetectedEncoding},
		{"Delimiter", m.Delimiter},
		{"File size", m.FileSize},
		{"Rows (original)", m.OriginalRows},
		{"Rows (clean)", m.RowCount},
		{"Columns", fmt.Sprintf("%d of %d", m.ColumnCount, m.OriginalColumns)},
		{"Suburbs", len(r.Filters.Localities)},
		{"Price range", fmt.Sprintf("%s - %s", formatPrice(r.Filters.PriceRange[0]), formatPrice(r.Filters.PriceRange[1]))},
		{"Date range", fmt.Sprintf("%s - %s", r.Filters.DateRange[0], r.Filters.DateRange[1])},
		{"Total sales", formatPrice(r.Metrics.Sum)},
		{"Mean price", formatPrice(r.Metrics.Mean)},
		{"Median price", formatPrice(r.Metrics.Median)},
	})

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "Warning: %s\n", warning)
		}
	}

	if len(r.Preview) > 0 {
		fmt.Fprintln(w)
		rows := make([][]any, 0, len(r.Preview))
		for _, p := range r.Preview {
			var purpose any
			if p.PrimaryPurpose != nil {
				purpose = *p.PrimaryPurpose
			}
			rows = append(rows, []any{p.PropertyID, p.Address, formatPrice(p.PurchasePrice), p.ContractDate, purpose})
		}
		printTable(w, "", []any{"Property ID", "Address", "Purchase price", "Contract date", "Primary purpose"}, rows)
	}
}

func formatPrice(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 0, 64)
}
