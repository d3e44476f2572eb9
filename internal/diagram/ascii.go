package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/vsm/pkg/schema"
)

// flagTag returns a short ASCII indicator for a process's state.
func flagTag(v *NodeView) string {
	switch {
	case v.IsBottleneck && v.OverTakt:
		return "[BOTTLENECK > TAKT]"
	case v.IsBottleneck:
		return "[BOTTLENECK]"
	case v.OverTakt:
		return "[> TAKT]"
	default:
		return ""
	}
}

// RenderASCII renders the material flow of a payload as boxes read left to
// right, followed by the information flows and the timeline ladder.
func RenderASCII(p *Payload) string {
	var b strings.Builder

	if p.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", p.Title))
	}

	var boxes []asciiBox
	for _, v := range byX(p.Nodes) {
		if v.Kind == schema.KindProductionControl {
			continue
		}
		boxes = append(boxes, makeBox(&v))
	}
	renderBoxRow(&b, boxes)

	var info []EdgeView
	for _, e := range p.Edges {
		if e.FlowType != schema.FlowMaterial {
			info = append(info, e)
		}
	}
	if len(info) > 0 {
		b.WriteString("\n--- information flow ---\n")
		for _, e := range info {
			arrow := "─→"
			if e.FlowType == schema.FlowInformationElectronic {
				arrow = "↯→"
			}
			b.WriteString(fmt.Sprintf("  %s %s %s\n", nodeLabel(p.Nodes, e.Source), arrow, nodeLabel(p.Nodes, e.Target)))
		}
	}

	if len(p.Ladder.Segments) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderLadder(p.Ladder))
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(v *NodeView) asciiBox {
	contentLines := []string{v.Label}
	if c := caption(v); c != "" {
		contentLines = append(contentLines, c)
	}
	if tag := flagTag(v); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	if v.Kind == schema.KindInventory {
		top = "┌" + strings.Repeat("╌", width-2) + "┐"
		bot = "└" + strings.Repeat("╌", width-2) + "┘"
	}

	lines := []string{top}
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side joined by material arrows on
// their label row.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				if row == 1 {
					b.WriteString(" → ")
				} else {
					b.WriteString("   ")
				}
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

func nodeLabel(nodes []NodeView, id string) string {
	if v := findNode(nodes, id); v != nil {
		return v.Label
	}
	return id
}
