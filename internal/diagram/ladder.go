package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/vsm/internal/timeline"
)

// Rail characters.
const (
	ladderHigh = '─'
	ladderGap  = ' '
)

// RenderLadder draws the lead-time ladder: waits on the upper rail, process
// times on the lower rail, totals underneath.
//
//	Cut       WIP       Weld
//	        ┌─────────┐
//	────────┘         └────────
//	40s       2d        60s
func RenderLadder(l timeline.Ladder) string {
	if len(l.Segments) == 0 {
		return "(no process or inventory nodes)\n"
	}

	widths := make([]int, len(l.Segments))
	values := make([]string, len(l.Segments))
	for i, seg := range l.Segments {
		if seg.Kind == timeline.SegmentVA {
			values[i] = trimFloat(seg.Seconds) + "s"
		} else {
			values[i] = trimFloat(seg.Days) + "d"
		}
		widths[i] = max(len([]rune(seg.Label)), len(values[i])) + 2
	}

	var labels, upper, lower, figures strings.Builder
	for i, seg := range l.Segments {
		high := seg.Kind == timeline.SegmentNVA
		labels.WriteString(pad(seg.Label, widths[i]))
		figures.WriteString(pad(values[i], widths[i]))
		if high {
			upper.WriteString(strings.Repeat(string(ladderHigh), widths[i]))
			lower.WriteString(strings.Repeat(string(ladderGap), widths[i]))
		} else {
			upper.WriteString(strings.Repeat(string(ladderGap), widths[i]))
			lower.WriteString(strings.Repeat(string(ladderHigh), widths[i]))
		}

		if i == len(l.Segments)-1 {
			break
		}
		// Joint column between this segment and the next.
		nextHigh := l.Segments[i+1].Kind == timeline.SegmentNVA
		labels.WriteByte(' ')
		figures.WriteByte(' ')
		switch {
		case high == nextHigh && high:
			upper.WriteRune(ladderHigh)
			lower.WriteRune(ladderGap)
		case high == nextHigh:
			upper.WriteRune(ladderGap)
			lower.WriteRune(ladderHigh)
		case high:
			upper.WriteRune('┐')
			lower.WriteRune('└')
		default:
			upper.WriteRune('┌')
			lower.WriteRune('┘')
		}
	}

	var b strings.Builder
	for _, row := range []string{labels.String(), upper.String(), lower.String(), figures.String()} {
		b.WriteString(strings.TrimRight(row, " "))
		b.WriteByte('\n')
	}
	b.WriteString(fmt.Sprintf("Lead time %sd | Value added %ss | PCE %s%%\n",
		trimFloat(l.TotalLeadTimeDays), trimFloat(l.TotalValueAddedSeconds), trimFloat(l.EfficiencyPercent)))
	return b.String()
}

func pad(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
