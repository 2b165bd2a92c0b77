package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"aepaudit/pkg/model"
)

const bannerWidth = 70

// Aggregate 汇总各校验器结论。纯归并，保持输入顺序，不改写任何结论。
func Aggregate(results []model.StageResult) model.Summary {
	s := model.Summary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Verdict.Valid {
			s.Passed++
		}
	}
	s.Valid = s.Passed == s.Total
	return s
}

// Render 输出全部结论与汇总段落，返回汇总
func Render(w io.Writer, results []model.StageResult, verbose bool) model.Summary {
	for _, r := range results {
		RenderResult(w, r, verbose)
	}
	s := Aggregate(results)
	RenderSummary(w, s)
	return s
}

// RenderResult 输出单个校验器的人类可读结论。
// 缺陷明细总是展示，verbose 额外展示通过项与逐事件信息。
func RenderResult(w io.Writer, r model.StageResult, verbose bool) {
	banner(w, r.Name)
	fmt.Fprintln(w, r.Verdict.Message)

	if len(r.Verdict.Counts) > 0 {
		keys := make([]string, 0, len(r.Verdict.Counts))
		for k := range r.Verdict.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %d\n", k, r.Verdict.Counts[k])
		}
	}
	if r.Verdict.Stats != nil {
		fmt.Fprintf(w, "  payload bytes: min=%d max=%d avg=%.1f\n",
			r.Verdict.Stats.MinBytes, r.Verdict.Stats.MaxBytes, r.Verdict.Stats.AvgBytes)
	}

	for _, p := range r.Verdict.Pages {
		if p.Status == "ok" && !verbose {
			continue
		}
		fmt.Fprintf(w, "  - [%s] %s page_view_events=%d\n", p.Status, p.PageURL, p.Counts["page_view_events"])
		if verbose {
			for _, ev := range p.Events {
				fmt.Fprintf(w, "      %.3f %s\n", ev.Timestamp, ev.RequestURL)
			}
		}
	}

	for _, g := range r.Verdict.Groups {
		fmt.Fprintf(w, "  - %dx %s within %.3fs (hash %s)\n", g.Count, g.EventType, g.TimeSpan, shortHash(g.PayloadHash))
		if verbose {
			for _, ev := range g.Events {
				fmt.Fprintf(w, "      %.3f [%s] %s\n", ev.Timestamp, ev.PageURL, ev.RequestURL)
			}
		}
	}

	for _, ev := range r.Verdict.Events {
		offender := len(ev.MissingFields) > 0 || ev.SizeBytes > 0
		if !offender && !verbose {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "  - [%s] %s", ev.PageURL, ev.RequestURL)
		if len(ev.MissingFields) > 0 {
			fmt.Fprintf(&b, " missing=[%s]", strings.Join(ev.MissingFields, ","))
		}
		if ev.SizeBytes > 0 {
			fmt.Fprintf(&b, " size=%dB over_by=%dB", ev.SizeBytes, ev.OverBy)
		}
		if ev.ECID != "" {
			fmt.Fprintf(&b, " ecid=%s source=%s", ev.ECID, ev.Source)
		}
		if ev.ParseError {
			b.WriteString(" (unparseable payload)")
		}
		fmt.Fprintln(w, b.String())
	}

	fmt.Fprintln(w)
}

// RenderSummary 输出整套校验的汇总段落
func RenderSummary(w io.Writer, s model.Summary) {
	banner(w, "VALIDATION SUMMARY")
	for _, r := range s.Results {
		mark := "✗ FAIL"
		if r.Verdict.Valid {
			mark = "✓ PASS"
		}
		fmt.Fprintf(w, "  %s  %s\n", mark, r.Name)
	}
	fmt.Fprintf(w, "\nTests Passed: %d/%d\n", s.Passed, s.Total)
}

func banner(w io.Writer, title string) {
	line := strings.Repeat("=", bannerWidth)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, line)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
