package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Format selects a report renderer
type Format string

const (
	FormatAuto       Format = "auto"
	FormatTable      Format = "table"
	FormatText       Format = "text"
	FormatJSON       Format = "json"
	FormatYAML       Format = "yaml"
	FormatPrometheus Format = "prometheus"
)

// Formats lists the accepted --format values
var Formats = []Format{FormatAuto, FormatTable, FormatText, FormatJSON, FormatYAML, FormatPrometheus}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if s == "" {
		return FormatAuto, nil
	}
	if !lo.Contains(Formats, f) {
		return "", fmt.Errorf("unknown format %q (valid: %v)", s, Formats)
	}
	return f, nil
}

// NotAvailable is printed for rates and durations that cannot be computed
const NotAvailable = "N/A"

// Render writes r to w in the given format
func Render(w io.Writer, r *MetricsReport, format Format) error {
	switch format {
	case FormatAuto, "":
		if isTerminal(w) {
			return renderTable(w, r)
		}
		return renderText(w, r)
	case FormatTable:
		return renderTable(w, r)
	case FormatText:
		return renderText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatPrometheus:
		return WritePrometheus(w, r)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// FormatRate renders a rate as a two-decimal percentage
func FormatRate(rate Rate) string {
	if rate.Value == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f%%", *rate.Value*100)
}

// FormatDuration renders an optional duration
func FormatDuration(d *time.Duration) string {
	if d == nil {
		return NotAvailable
	}
	return d.Round(time.Second).String()
}

// rows flattens the report into label/value pairs shared by table and text
func rows(r *MetricsReport) [][2]string {
	out := [][2]string{
		{"Lines scanned", strconv.Itoa(r.Lines)},
		{"Duration", FormatDuration(r.Duration)},
	}
	for _, c := range Classes() {
		out = append(out, [2]string{string(c), strconv.Itoa(r.Counts[c])})
	}

	numeric := lo.FilterMap(Vocabulary, func(m Marker, _ int) (MarkerClass, bool) {
		return m.Class, m.Numeric
	})
	for _, c := range numeric {
		agg, ok := r.Aggregates[c]
		if !ok {
			continue
		}
		out = append(out,
			[2]string{string(c) + " sum", agg.Sum.String()},
			[2]string{string(c) + " min", agg.Min.String()},
			[2]string{string(c) + " max", agg.Max.String()},
			[2]string{string(c) + " mean", agg.Mean.StringFixed(6)},
			[2]string{string(c) + " n", strconv.Itoa(agg.N)},
		)
	}
	for _, c := range numeric {
		if n := r.Malformed[c]; n > 0 {
			out = append(out, [2]string{string(c) + " malformed", strconv.Itoa(n)})
		}
	}

	out = append(out, lo.Map(r.Rates, func(rate Rate, _ int) [2]string {
		return [2]string{rate.Name, FormatRate(rate)}
	})...)
	return out
}

func renderTable(w io.Writer, r *MetricsReport) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	for _, row := range rows(r) {
		table.Append(row[0], row[1])
	}
	return table.Render()
}

func renderText(w io.Writer, r *MetricsReport) error {
	if r.LogPath != "" {
		if _, err := fmt.Fprintf(w, "Session log: %s\n", r.LogPath); err != nil {
			return err
		}
	}
	for _, row := range rows(r) {
		if _, err := fmt.Fprintf(w, "  %-40s %s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return nil
}
