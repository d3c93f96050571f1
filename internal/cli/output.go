package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/biter777/countries"

	"github.com/Patil2099/posthog/internal/funnel"
	"github.com/Patil2099/posthog/internal/models"
)

const countryBreakdown = "$geoip_country_code"

// resolveFormat validates format; an empty one means table on a terminal and
// json otherwise.
func resolveFormat(format string) (string, error) {
	switch format {
	case "":
		if isTerminal() {
			return "table", nil
		}
		return "json", nil
	case "table", "json", "csv":
		return format, nil
	default:
		return "", fmt.Errorf("invalid format %q (use table, json or csv)", format)
	}
}

// funnelReport is what calculate and open-url print
type funnelReport struct {
	Steps             []stepRow                `json:"steps"`
	ConversionMetrics models.ConversionMetrics `json:"conversion_metrics"`
	Histogram         []models.HistogramBar    `json:"histogram,omitempty"`
	LastRefresh       *time.Time               `json:"last_refresh,omitempty"`
}

type stepRow struct {
	Order                 int          `json:"order"`
	Name                  string       `json:"name"`
	Count                 int          `json:"count"`
	ConversionRate        float64      `json:"conversion_rate"`
	AverageConversionTime *float64     `json:"average_conversion_time,omitempty"`
	Breakdown             []segmentRow `json:"breakdown,omitempty"`
}

type segmentRow struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func buildReport(logic *funnel.Logic) funnelReport {
	steps := logic.StepsWithCount()
	reference := logic.StepReference()
	breakdown := logic.Filters().Breakdown

	rows := make([]stepRow, 0, len(steps))
	for i, step := range steps {
		row := stepRow{
			Order:                 step.Order,
			Name:                  stepName(step),
			Count:                 step.CountValue(),
			ConversionRate:        funnel.ConversionRate(steps, reference, i),
			AverageConversionTime: step.AverageConversionTime,
		}
		for _, segment := range step.NestedBreakdown {
			row.Breakdown = append(row.Breakdown, segmentRow{
				Label: breakdownLabel(breakdown, segment.Breakdown),
				Count: segment.CountValue(),
			})
		}
		rows = append(rows, row)
	}

	return funnelReport{
		Steps:             rows,
		ConversionMetrics: logic.ConversionMetrics(),
		Histogram:         logic.HistogramGraphData(),
		LastRefresh:       logic.RawResults().LastRefresh,
	}
}

func stepName(step models.FunnelStep) string {
	if step.Name != "" {
		return step.Name
	}
	if step.ActionID != nil {
		return fmt.Sprint(step.ActionID)
	}
	return fmt.Sprintf("Step %d", step.Order+1)
}

// breakdownLabel renders a segment value; country codes get their name
func breakdownLabel(breakdown string, value any) string {
	if value == nil {
		return "(none)"
	}
	label := fmt.Sprint(value)
	if breakdown != countryBreakdown || label == "" {
		return label
	}
	country := countries.ByName(label)
	if country == countries.Unknown {
		return label
	}
	return fmt.Sprintf("%s (%s)", country.String(), country.Alpha2())
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printReport(report funnelReport, format string) error {
	switch format {
	case "json":
		return printJSON(report)
	case "csv":
		w := csv.NewWriter(os.Stdout)
		_ = w.Write([]string{"order", "name", "count", "conversion_rate", "average_conversion_time", "breakdown"})
		for _, row := range report.Steps {
			_ = w.Write([]string{
				strconv.Itoa(row.Order),
				row.Name,
				strconv.Itoa(row.Count),
				strconv.FormatFloat(row.ConversionRate, 'f', 2, 64),
				formatSeconds(row.AverageConversionTime, ""),
				"",
			})
			for _, segment := range row.Breakdown {
				_ = w.Write([]string{strconv.Itoa(row.Order), row.Name, strconv.Itoa(segment.Count), "", "", segment.Label})
			}
		}
		w.Flush()
		return w.Error()
	}

	if len(report.Steps) == 0 {
		fmt.Println("No funnel results")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STEP\tNAME\tCOUNT\tCONVERSION\tAVG TIME")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t----------\t--------")
	for _, row := range report.Steps {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%.2f%%\t%s\n",
			row.Order+1,
			row.Name,
			row.Count,
			row.ConversionRate,
			formatSeconds(row.AverageConversionTime, "-"),
		)
		for _, segment := range row.Breakdown {
			_, _ = fmt.Fprintf(w, "\t  %s\t%d\t\t\n", segment.Label, segment.Count)
		}
	}
	_ = w.Flush()

	metrics := report.ConversionMetrics
	fmt.Println()
	fmt.Printf("Total conversion: %.2f%%\n", metrics.TotalRate)
	fmt.Printf("Step conversion:  %.2f%%\n", metrics.StepRate)
	if metrics.AverageTime > 0 {
		fmt.Printf("Average time:     %s\n", time.Duration(metrics.AverageTime*float64(time.Second)).Round(time.Second))
	}

	if len(report.Histogram) > 0 {
		fmt.Println()
		fmt.Println("Time to convert")
		for _, bar := range report.Histogram {
			fmt.Printf("  %8s - %-8s %s %d\n",
				time.Duration(bar.Bin0*float64(time.Second)).Round(time.Second),
				time.Duration(bar.Bin1*float64(time.Second)).Round(time.Second),
				strings.Repeat("#", min(bar.Count, 40)),
				bar.Count)
		}
	}
	return nil
}

func formatSeconds(seconds *float64, empty string) string {
	if seconds == nil {
		return empty
	}
	return strconv.FormatFloat(*seconds, 'f', 0, 64) + "s"
}

// personRow is one line of the people listing
type personRow struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	DistinctIDs []string `json:"distinct_ids"`
}

func printPeople(people []models.Person, format string) error {
	rows := make([]personRow, 0, len(people))
	for _, p := range people {
		rows = append(rows, personRow{UUID: p.UUID, Name: p.DisplayName(), DistinctIDs: p.DistinctIDs})
	}

	switch format {
	case "json":
		return printJSON(rows)
	case "csv":
		w := csv.NewWriter(os.Stdout)
		_ = w.Write([]string{"uuid", "name", "distinct_ids"})
		for _, row := range rows {
			_ = w.Write([]string{row.UUID, row.Name, strings.Join(row.DistinctIDs, ";")})
		}
		w.Flush()
		return w.Error()
	}

	if len(rows) == 0 {
		fmt.Println("No people in this funnel")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "UUID\tNAME\tDISTINCT IDS")
	_, _ = fmt.Fprintln(w, "----\t----\t------------")
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", row.UUID, row.Name, strings.Join(row.DistinctIDs, ", "))
	}
	_ = w.Flush()
	return nil
}
