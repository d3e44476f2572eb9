package diagram

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rendis/vsm/pkg/schema"
)

// RenderASCIIAuto tries to render the flow through the mermaid-ascii CLI
// binary if available, falling back to the hand-rolled RenderASCII renderer.
// The timeline ladder is appended either way.
func RenderASCIIAuto(p *Payload, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			result, err := RenderASCIIViaCLI(p, binPath)
			if err == nil {
				if len(p.Ladder.Segments) > 0 {
					result += "\n" + RenderLadder(p.Ladder)
				}
				return result
			}
		}
	}
	return RenderASCII(p)
}

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(p *Payload, binPath string) (string, error) {
	mermaid := RenderMermaidForCLI(p)

	cmd := exec.Command(binPath)
	cmd.Stdin = strings.NewReader(mermaid)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI generates simplified Mermaid syntax compatible with the
// mermaid-ascii CLI tool. It avoids ["label"] node declarations, which
// mermaid-ascii cannot parse, and uses the display label as the node id.
// Information edges carry their flow as an edge label.
func RenderMermaidForCLI(p *Payload) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	displayID := make(map[string]string, len(p.Nodes))
	for i := range p.Nodes {
		displayID[p.Nodes[i].ID] = cliNodeID(&p.Nodes[i])
	}
	resolve := func(id string) string {
		if d, ok := displayID[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	for _, e := range p.Edges {
		label := ""
		switch e.FlowType {
		case schema.FlowInformationManual:
			label = "|info|"
		case schema.FlowInformationElectronic:
			label = "|e-info|"
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n", resolve(e.Source), label, resolve(e.Target)))
	}

	return b.String()
}

// cliNodeID builds a display ID for the mermaid-ascii CLI, with the cycle
// time of processes and a bottleneck marker embedded.
func cliNodeID(v *NodeView) string {
	id := v.Label
	if id == "" {
		id = v.ID
	}
	if v.Kind == schema.KindProcess {
		if ct, ok := v.Data[schema.FieldCycleTime].(float64); ok {
			id += "-" + trimFloat(ct) + "s"
		}
		if v.IsBottleneck {
			id += "-BN"
		}
	}
	return strings.ReplaceAll(id, " ", "-")
}
