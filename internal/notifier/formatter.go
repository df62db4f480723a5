package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"PreBurstSentinel/internal/model"
)

const (
	timeLayout   = "2006-01-02 15:04 MST"
	detectLayout = "2006-01-02 15:04:05 MST"
)

// FormatCreated formats a newly opened opportunity.
func FormatCreated(ev model.Event) string {
	var b strings.Builder
	o := ev.Opportunity
	b.WriteString(fmt.Sprintf("🚀 <b>Pre-burst setup</b> | %s\n\n", ev.Pair))
	// prices keep exchange precision; sub-cent pairs would round to zero
	b.WriteString(fmt.Sprintf("Price: %s\n", o.Price.String()))
	b.WriteString(fmt.Sprintf("CCI: %.2f | RSI: %.2f\n", o.CCI, o.RSI))
	b.WriteString(fmt.Sprintf("Band span: %.2f%%\n", o.BandSpan*100))
	b.WriteString(fmt.Sprintf("Slope sum: %.2f\n", o.SlopeSum))
	if ev.Signal != nil {
		b.WriteString(fmt.Sprintf("Bands: %.2f / %.2f (close %.2f)\n", ev.Signal.Lower, ev.Signal.Upper, ev.Signal.Close))
	}
	b.WriteString(fmt.Sprintf("Detected: %s\n", o.DetectedAt.UTC().Format(detectLayout)))
	b.WriteString(fmt.Sprintf("Bar boundary: %s\n", o.Boundary.UTC().Format(timeLayout)))
	return b.String()
}

// FormatClosed formats an opportunity closed by the oscillator crossing back.
func FormatClosed(ev model.Event) string {
	var b strings.Builder
	o := ev.Opportunity
	b.WriteString(fmt.Sprintf("✅ <b>Setup closed</b> | %s\n\n", ev.Pair))
	b.WriteString(fmt.Sprintf("CCI: %.2f → %.2f\n", o.CCI, ev.ExitCCI))
	b.WriteString(fmt.Sprintf("Opened: %s\n", o.DetectedAt.UTC().Format(timeLayout)))
	b.WriteString(fmt.Sprintf("Open for: %s\n", ev.At.Sub(o.DetectedAt).Round(time.Minute)))
	return b.String()
}

// FormatEvent dispatches on the event kind.
func FormatEvent(ev model.Event) string {
	switch ev.Kind {
	case model.EventCreated:
		return FormatCreated(ev)
	case model.EventClosed:
		return FormatClosed(ev)
	default:
		return fmt.Sprintf("%s %s", ev.Kind, ev.Pair)
	}
}

// FormatUniverse lists the tracked instruments.
func FormatUniverse(universe []string) string {
	if len(universe) == 0 {
		return "Universe is empty"
	}
	return "🌐 <b>Universe</b>\n\n" + strings.Join(universe, "\n")
}

// FormatOpportunities lists the open records ordered by pair.
func FormatOpportunities(active []model.Opportunity) string {
	if len(active) == 0 {
		return "No open setups"
	}
	sorted := append([]model.Opportunity(nil), active...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pair < sorted[j].Pair })

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Open setups</b> (%d)\n\n", len(sorted)))
	for _, o := range sorted {
		b.WriteString(fmt.Sprintf("%s  price %s  CCI %.2f  since %s\n",
			o.Pair, o.Price.String(), o.CCI, o.DetectedAt.UTC().Format(timeLayout)))
	}
	return b.String()
}

// FormatStatus formats the synchronizer state.
func FormatStatus(wm *model.Watermark, degraded bool) string {
	var b strings.Builder
	b.WriteString("⏱ <b>Scanner status</b>\n\n")
	b.WriteString(fmt.Sprintf("State: %s\n", wm.RunState))
	if wm.RunOwner != "" {
		b.WriteString(fmt.Sprintf("Owner: %s\n", wm.RunOwner))
	}
	b.WriteString(fmt.Sprintf("Next boundary: %s\n", wm.NextBoundary.UTC().Format(timeLayout)))
	b.WriteString(fmt.Sprintf("Open setups: %d\n", len(wm.Opportunities)))
	if degraded {
		b.WriteString("Clock: local fallback ⚠️\n")
	}
	return b.String()
}

// HelpText lists the supported commands.
func HelpText() string {
	return "PreBurst Sentinel commands:\n" +
		"/init_scans - start the scan loop\n" +
		"/display_universe - list tracked instruments\n" +
		"/opportunities - list open setups\n" +
		"/status - show scanner state\n" +
		"/help - show this message"
}
