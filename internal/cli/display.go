package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/agrisense/cropagent/internal/model"
)

var (
	headingColor = color.New(color.Bold)
	dimColor     = color.New(color.Faint)
	okColor      = color.New(color.FgHiGreen)
	failColor    = color.New(color.FgRed)
)

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityCritical:
		return color.New(color.FgHiRed, color.Bold)
	case model.SeverityHigh:
		return color.New(color.FgRed)
	case model.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlue)
	}
}

func severityLabel(s model.Severity) string {
	return severityColor(s).Sprint(strings.ToUpper(string(s)))
}

func displayRun(w io.Writer, res model.RunResult) {
	headingColor.Fprintf(w, "%s in %s", res.Context.Crop, res.Context.Region)
	dimColor.Fprintf(w, "  (%s, %.0f ms)\n", res.ID, res.Timing.TotalMS)

	if !res.Success {
		failColor.Fprintf(w, "assessment failed: %s\n", res.Error)
		return
	}
	if len(res.Degraded) > 0 {
		color.New(color.FgYellow).Fprintf(w, "degraded: %s unavailable\n", strings.Join(res.Degraded, ", "))
	}

	if res.Response != nil {
		fmt.Fprintln(w, res.Response.Summary.Text)
	}

	if p := res.Prediction; p != nil {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Yield\t%.2f %s (%.2f-%.2f)\n", p.PredictedYield, p.Unit, p.Interval.Lower, p.Interval.Upper)
		fmt.Fprintf(tw, "vs average\t%+.1f%%\n", p.ComparisonToAverage)
		fmt.Fprintf(tw, "Risk\t%.1f (%s)\n", p.RiskScore, p.RiskLevel)
		fmt.Fprintf(tw, "Confidence\t%d%% (%s)\n", p.Confidence, p.ConfidenceLevel)
		fmt.Fprintf(tw, "Outlook\t%s\n", p.Outlook)
		_ = tw.Flush()
	}

	if a := res.Alerts; a != nil {
		fmt.Fprintln(w)
		headingColor.Fprintf(w, "Alerts: %s\n", severityLabel(a.Summary.Overall))
		displayAlerts(w, a.Active, "")
		displayAlerts(w, a.Advance, "advance ")
	}

	if res.Response != nil && len(res.Response.Recommendations) > 0 {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "Recommendations")
		for _, r := range res.Response.Recommendations {
			fmt.Fprintf(w, "  [%s] %s\n", r.Priority, r.Action)
		}
	}
}

func displayAlerts(w io.Writer, batch model.AlertBatch, prefix string) {
	for _, a := range batch {
		fmt.Fprintf(w, "  %s %s%s: %s\n", severityLabel(a.Severity), prefix, a.Title, a.RecommendedAction)
	}
}

func displayWeather(w io.Writer, snap model.WeatherSnapshot) {
	c := snap.Current
	headingColor.Fprintf(w, "%s, %.1f°C", c.Description, c.TemperatureC)
	dimColor.Fprintf(w, "  [%s]\n", snap.DataSource)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Humidity\t%.0f%%\n", c.HumidityPct)
	fmt.Fprintf(tw, "Wind\t%.1f m/s\n", c.WindSpeedMS)
	fmt.Fprintf(tw, "Rain 24h\t%.1f mm\n", snap.Rainfall.Last24h)
	_ = tw.Flush()

	if len(snap.Forecast) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTEMP\tRAIN%\tSKY")
	for _, d := range snap.Forecast {
		fmt.Fprintf(tw, "%s\t%.1f\t%.0f\t%s\n", d.Date.Format("2006-01-02"), d.TemperatureC, d.RainProbability, d.Description)
	}
	_ = tw.Flush()
}

func displaySoil(w io.Writer, snap model.SoilSnapshot) {
	headingColor.Fprintf(w, "%s soil, health %d/100", snap.SoilType, snap.HealthScore)
	dimColor.Fprintf(w, "  [%s]\n", snap.DataSource)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Moisture\t%.1f%%\t%s\n", snap.Moisture.Current, snap.Moisture.Status)
	fmt.Fprintf(tw, "pH\t%.1f\t%s\n", snap.PH.Current, snap.PH.Status)
	fmt.Fprintf(tw, "N / P / K\t%.0f / %.0f / %.0f kg/ha\t\n",
		snap.NPK.Nitrogen.Current, snap.NPK.Phosphorus.Current, snap.NPK.Potassium.Current)
	_ = tw.Flush()

	for _, r := range snap.Recommendations {
		fmt.Fprintf(w, "  [%s] %s\n", r.Priority, r.Action)
	}
}

func displayStatus(w io.Writer, health model.HealthResponse, agents []model.AgentStatus) {
	status := okColor.Sprint(health.Status)
	if health.Status != "healthy" {
		status = failColor.Sprint(health.Status)
	}
	fmt.Fprintf(w, "Server %s  version %s  store %s  up %ds\n", status, health.Version, health.Store, health.Uptime)
	fmt.Fprintf(w, "History buffer %d (%s)  SSE clients %d\n\n", health.BufferDepth, health.BufferStatus, health.SSEClients)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tRUNS\tLAST RUN")
	for _, a := range agents {
		last := "-"
		if a.LastExecutionTime != nil {
			last = a.LastExecutionTime.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", a.Name, a.ExecutionCount, last)
	}
	_ = tw.Flush()
}

func displayHistory(w io.Writer, preds []model.PredictionRun) {
	if len(preds) == 0 {
		dimColor.Fprintln(w, "no predictions recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATE\tCROP\tYIELD\tRISK\tCONF\tID")
	for _, p := range preds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.1f\t%d%%\t%s\n",
			p.CreatedAt.Format("2006-01-02 15:04"), p.Region, p.Crop, p.PredictedYield, p.RiskScore, p.Confidence, p.ID)
	}
	_ = tw.Flush()
}

func displayStats(w io.Writer, stats model.StatsResponse) {
	q := stats.Queries
	headingColor.Fprintf(w, "%d queries\n", q.TotalQueries)
	displayCounts(w, "Languages", q.ByLanguage)
	displayCounts(w, "Top states", q.TopRegions)
	displayCounts(w, "Top crops", q.TopCrops)

	if len(stats.Performance) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tRUNS\tAVG MS\tOK\tFAILED\tSUCCESS")
	for _, p := range stats.Performance {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%d\t%d\t%.1f%%\n", p.Agent, p.Executions, p.AvgMS, p.Successful, p.Failed, p.SuccessRate)
	}
	_ = tw.Flush()
}

func displayCounts(w io.Writer, label string, counts []model.NameCount) {
	if len(counts) == 0 {
		return
	}
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s %d", c.Name, c.Count)
	}
	fmt.Fprintf(w, "%s: %s\n", label, strings.Join(parts, ", "))
}
