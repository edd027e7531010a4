package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/recorder"
)

// FormatScanReport formats a completed run into a Telegram message.
func FormatScanReport(run *model.ScanRun) string {
	var b strings.Builder
	windows, valid := run.Totals()

	b.WriteString(fmt.Sprintf("☕ <b>PatternSentinel scan</b> | %s\n", run.FinishedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("source: %s | windows: %d | valid: %d\n\n", html.EscapeString(run.Source), windows, valid))

	for _, res := range run.Results {
		b.WriteString(fmt.Sprintf("<b>%s</b> (%d bars): %d/%d valid\n",
			html.EscapeString(res.Symbol), res.Bars, res.ValidCount(), len(res.Patterns)))
		if reasons := topReasons(res.Patterns, 3); reasons != "" {
			b.WriteString("  rejected: " + reasons + "\n")
		}
	}
	if valid > 0 {
		b.WriteString("\n")
		b.WriteString(FormatValidPatterns(run, 5))
	}
	return b.String()
}

// FormatValidPatterns lists up to limit rule-valid patterns of run.
func FormatValidPatterns(run *model.ScanRun, limit int) string {
	if run == nil {
		return "No scan has completed yet."
	}
	var b strings.Builder
	b.WriteString("✅ <b>Valid patterns</b>\n")
	shown, total := 0, 0
	for _, res := range run.Results {
		for _, p := range res.Patterns {
			if !p.Valid {
				continue
			}
			total++
			if shown >= limit {
				continue
			}
			shown++
			b.WriteString(fmt.Sprintf("#%d %s cup %d-%d handle %d-%d breakout %d",
				p.ID, html.EscapeString(p.Symbol), p.CupStart, p.CupEnd, p.HandleStart, p.HandleEnd, p.Breakout))
			if p.CupDepth != nil && p.R2 != nil {
				b.WriteString(fmt.Sprintf(" | depth %.2f R² %.3f", *p.CupDepth, *p.R2))
			}
			if p.ML != nil {
				b.WriteString(fmt.Sprintf(" | ML %v (%.0f%%)", p.ML.Valid, p.ML.Confidence*100))
			}
			b.WriteString("\n")
		}
	}
	if total == 0 {
		return "No valid cup & handle patterns in the latest scan."
	}
	if total > shown {
		b.WriteString(fmt.Sprintf("… and %d more\n", total-shown))
	}
	return b.String()
}

// FormatHistory formats recent run summaries, newest first.
func FormatHistory(runs []recorder.RunSummary) string {
	if len(runs) == 0 {
		return "No recorded scans."
	}
	var b strings.Builder
	b.WriteString("📜 <b>Recent scans</b>\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("%s %s: %d/%d valid\n",
			r.StartedAt.Format("01-02 15:04"), html.EscapeString(r.Source), r.Valid, r.Windows))
	}
	return b.String()
}

// topReasons returns the n most frequent rejection reasons as "reason ×count" pairs.
func topReasons(patterns []model.ScoredPattern, n int) string {
	counts := map[string]int{}
	for _, p := range patterns {
		if !p.Valid && p.InvalidReason != "" {
			counts[p.InvalidReason]++
		}
	}
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	if len(reasons) > n {
		reasons = reasons[:n]
	}
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = fmt.Sprintf("%s ×%d", html.EscapeString(r), counts[r])
	}
	return strings.Join(parts, ", ")
}
