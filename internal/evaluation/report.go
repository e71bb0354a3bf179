package evaluation

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const Disclaimer = "This report is an automated planning estimate built from benchmark tables and heuristics. It is not a protocol budget, a statistical analysis plan or a commercial forecast, and must be reviewed by the study team before any decision."

// BuildMarkdown renders one evaluation as a markdown report.
func BuildMarkdown(e Evaluation) string {
	f := e.Feasibility
	o := e.Commercial()
	n := e.Concept
	var b strings.Builder

	title := n.Title
	if title == "" {
		title = n.ID
	}
	fmt.Fprintf(&b, "# Study Concept Evaluation: %s\n\n", sanitize(title))
	fmt.Fprintf(&b, "- Concept ID: %s\n", n.ID)
	fmt.Fprintf(&b, "- Evaluation ID: %s\n", e.ID)
	fmt.Fprintf(&b, "- Evaluated: %s\n", e.EvaluatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Phase: %s\n", n.Phase)
	if n.Indication != "" {
		fmt.Fprintf(&b, "- Indication: %s\n", sanitize(n.Indication))
	}
	fmt.Fprintf(&b, "- Therapeutic area: %s\n\n", f.TherapeuticArea)
	fmt.Fprintf(&b, "%s\n\n", Disclaimer)

	rec := e.Score.Recommendation
	fmt.Fprintf(&b, "## Recommendation\n\n")
	fmt.Fprintf(&b, "- Level: `%s`\n", rec.Level)
	fmt.Fprintf(&b, "- Confidence: `%s`\n", rec.Confidence)
	fmt.Fprintf(&b, "- Rationale: %s\n", sanitize(rec.Rationale))
	for _, bl := range rec.Blockers {
		fmt.Fprintf(&b, "- [blocker] %s\n", sanitize(bl))
	}
	for _, a := range e.Score.Alerts {
		fmt.Fprintf(&b, "- [!] %s\n", sanitize(a))
	}
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "## MCDA Score\n\n")
	fmt.Fprintf(&b, "| Dimension | Score | Weight |\n|-----------|-------|--------|\n")
	w := e.Score.Weights
	fmt.Fprintf(&b, "| Scientific validity | %.2f | %.2f |\n", e.Score.Scientific, w.Scientific)
	fmt.Fprintf(&b, "| Clinical impact | %.2f | %.2f |\n", e.Score.Clinical, w.Clinical)
	fmt.Fprintf(&b, "| Commercial value | %.2f | %.2f |\n", e.Score.Commercial, w.Commercial)
	fmt.Fprintf(&b, "| Feasibility | %.2f | %.2f |\n", e.Score.Feasibility, w.Feasibility)
	fmt.Fprintf(&b, "| **Overall** | **%.2f** | |\n\n", e.Score.Overall)

	ss := f.SampleSize
	fmt.Fprintf(&b, "## Sample Size\n\n")
	fmt.Fprintf(&b, "- Patients: %d (source: `%s`)\n", f.Patients, ss.Source)
	fmt.Fprintf(&b, "- Primary endpoint: %s\n", ss.Endpoint.Type)
	fmt.Fprintf(&b, "- Power: %.0f%%, alpha %.2f, dropout %.0f%%\n", ss.Parameters.Power*100, ss.Parameters.Alpha, f.DropoutRate*100)
	fmt.Fprintf(&b, "- Justification: %s\n", sanitize(ss.Justification))
	for _, adj := range ss.Adjustments {
		fmt.Fprintf(&b, "- Adjustment: %s\n", sanitize(adj))
	}
	fmt.Fprintf(&b, "\n%s\n\n", sanitize(ss.PowerAnalysis))

	fmt.Fprintf(&b, "## Feasibility\n\n")
	fmt.Fprintf(&b, "- Sites: %d across %d countries\n", f.Sites, f.Countries)
	fmt.Fprintf(&b, "- Estimated cost: $%s", fmtUSDf(f.EstimatedCostUSD))
	if f.BudgetExceeded {
		fmt.Fprintf(&b, " (nominal $%s, clamped to budget)", fmtUSDf(f.NominalCostUSD))
	}
	fmt.Fprintf(&b, "\n- Timeline: %.1f months\n", f.TimelineMonths)
	fmt.Fprintf(&b, "- Recruitment rate: %.0f%%, completion risk: %.0f%%, complexity: %.2f\n", f.RecruitmentRate*100, f.CompletionRisk*100, f.ComplexityFactor)
	fmt.Fprintf(&b, "- Impact category: `%s`\n\n", f.ImpactCategory)

	fmt.Fprintf(&b, "| Cost component | USD |\n|----------------|-----|\n")
	c := f.Costs
	for _, row := range []struct {
		name string
		v    float64
	}{
		{"Site", c.SiteUSD}, {"Personnel", c.PersonnelUSD}, {"Material", c.MaterialUSD},
		{"Monitoring", c.MonitoringUSD}, {"Data", c.DataUSD}, {"Regulatory", c.RegulatoryUSD},
		{"Vendors", c.VendorUSD},
	} {
		fmt.Fprintf(&b, "| %s | $%s |\n", row.name, fmtUSDf(row.v))
	}
	fmt.Fprintf(&b, "\n")

	tl := f.Timeline
	fmt.Fprintf(&b, "| Timeline component | Months |\n|--------------------|--------|\n")
	fmt.Fprintf(&b, "| Recruitment | %.1f |\n| Follow-up | %.1f |\n| Analysis | %.1f |\n", tl.RecruitmentMonths, tl.FollowUpMonths, tl.AnalysisMonths)
	fmt.Fprintf(&b, "| Start-up lag | %.1f |\n| Coordination | %.1f |\n| Comparators | %.1f |\n", tl.StartupLagMonths, tl.CoordinationMonths, tl.ComparatorMonths)
	if tl.BudgetDelayMonths > 0 {
		fmt.Fprintf(&b, "| Budget delay | %.1f |\n", tl.BudgetDelayMonths)
	}
	fmt.Fprintf(&b, "\n")

	if len(f.Regions) > 0 {
		fmt.Fprintf(&b, "### Regional Breakdown\n\n")
		fmt.Fprintf(&b, "| Region | Weight | Patients | Sites | Total (USD) | Total (local) | Per patient |\n")
		fmt.Fprintf(&b, "|--------|--------|----------|-------|-------------|---------------|-------------|\n")
		for _, r := range f.Regions {
			fmt.Fprintf(&b, "| %s | %.0f%% | %.0f | %d | $%s | %s %s | $%s |\n",
				sanitizeCell(r.RegionID), r.Weight*100, r.Patients, r.Sites, fmtUSDf(r.TotalUSD), fmtUSDf(r.TotalLocal), r.Currency, fmtUSDf(r.CostPerPatientUSD))
		}
		fmt.Fprintf(&b, "\n")
	}

	loe := f.LOE
	fmt.Fprintf(&b, "### Exclusivity\n\n")
	fmt.Fprintf(&b, "- First patient in: %s%s\n", loe.FPIDate.Format("2006-01-02"), overridden(loe.FPIOverridden))
	fmt.Fprintf(&b, "- Readout: %s\n", loe.ReadoutDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Loss of exclusivity: %s%s\n", loe.LOEDate.Format("2006-01-02"), overridden(loe.LOEOverridden))
	fmt.Fprintf(&b, "- Months from readout to LOE: %.1f\n", loe.MonthsReadoutToLOE)
	fmt.Fprintf(&b, "- Post-LOE value retained: %.0f%%\n\n", loe.PostLOEValueRetained*100)

	fmt.Fprintf(&b, "## Commercial Outlook\n\n")
	fmt.Fprintf(&b, "- Incremental annual sales: $%s (%s %s in %s)\n", fmtUSDf(o.IncrementalSalesUSD), fmtUSDf(o.IncrementalSalesLocal), o.LocalCurrency, o.PrimaryRegion)
	fmt.Fprintf(&b, "- eNPV: $%s, risk-adjusted: $%s (factor %.2f)\n", fmtUSDf(o.ENPVUSD), fmtUSDf(o.RiskAdjustedENPVUSD), o.RiskFactor)
	fmt.Fprintf(&b, "- Projected ROI: %.2fx\n", o.ProjectedROI)
	fmt.Fprintf(&b, "- Time to impact: %.1f years\n", o.TimeToImpactYears)
	fmt.Fprintf(&b, "- Assumptions source: `%s`\n\n", o.Assumptions.Source)

	fmt.Fprintf(&b, "| Scenario | Cost | Timeline | ROI | Revenue | Risk-adj. NPV |\n")
	fmt.Fprintf(&b, "|----------|------|----------|-----|---------|---------------|\n")
	for _, s := range f.Scenarios {
		fmt.Fprintf(&b, "| %s | $%s | %.1f mo | %.2fx | $%s | $%s |\n",
			s.Name, fmtUSDf(s.CostUSD), s.TimelineMonths, s.ROI, fmtUSDf(s.RevenueUSD), fmtUSDf(s.NPVUSD))
	}
	fmt.Fprintf(&b, "\n")

	if len(f.Warnings) > 0 {
		fmt.Fprintf(&b, "## Warnings\n\n")
		for _, wng := range f.Warnings {
			fmt.Fprintf(&b, "- %s\n", sanitize(wng))
		}
		fmt.Fprintf(&b, "\n")
	}
	return b.String()
}

// BuildBatchMarkdown renders a ranking table for a batch.
func BuildBatchMarkdown(evs []Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Study Concept Ranking\n\n")
	fmt.Fprintf(&b, "| Rank | Concept | Title | Overall | Recommendation | Cost | ROI |\n")
	fmt.Fprintf(&b, "|------|---------|-------|---------|----------------|------|-----|\n")
	for _, e := range evs {
		fmt.Fprintf(&b, "| %d | %s | %s | %.2f | %s | $%s | %.2fx |\n",
			e.Rank, sanitizeCell(e.ConceptID), sanitizeCell(e.Title), e.Score.Overall, e.Score.Recommendation.Level,
			fmtUSDf(e.Feasibility.EstimatedCostUSD), e.Commercial().ProjectedROI)
	}
	fmt.Fprintf(&b, "\n%s\n", Disclaimer)
	return b.String()
}

// RenderHTML converts report markdown to a standalone HTML page.
func RenderHTML(markdown string) (string, error) {
	var content bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Study Concept Evaluation</title>" +
		"<style>body{font-family:sans-serif;max-width:1000px;margin:0 auto;padding:1rem;} table{border-collapse:collapse;} th,td{border:1px solid #ccc;padding:0.25rem 0.5rem;text-align:left;}</style>" +
		"</head><body>" + content.String() + "</body></html>", nil
}

func overridden(v bool) string {
	if v {
		return ""
	}
	return " (default)"
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// sanitizeCell also escapes pipes so table columns stay intact.
func sanitizeCell(s string) string {
	return strings.ReplaceAll(sanitize(s), "|", "\\|")
}

// fmtUSD formats a whole-dollar amount with comma separators.
func fmtUSD(n int64) string {
	if n < 0 {
		return "-" + fmtUSD(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	rem := len(s) % 3
	if rem > 0 {
		b.WriteString(s[:rem])
	}
	for i := rem; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func fmtUSDf(n float64) string {
	return fmtUSD(int64(n))
}
