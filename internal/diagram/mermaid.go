package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/vsm/pkg/schema"
)

// RenderMermaid renders a payload as a left-to-right Mermaid flowchart.
// Material flow draws thick, manual information thin and electronic
// information dotted.
func RenderMermaid(p *Payload) string {
	var b strings.Builder

	b.WriteString("graph LR\n")

	if p.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", p.Title))
	}

	for i := range p.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(&p.Nodes[i])))
	}

	for _, e := range p.Edges {
		src, dst := mermaidSafeID(e.Source), mermaidSafeID(e.Target)
		switch e.FlowType {
		case schema.FlowInformationElectronic:
			b.WriteString(fmt.Sprintf("    %s -. electronic .-> %s\n", src, dst))
		case schema.FlowInformationManual:
			b.WriteString(fmt.Sprintf("    %s --> %s\n", src, dst))
		default:
			b.WriteString(fmt.Sprintf("    %s ==> %s\n", src, dst))
		}
	}

	b.WriteString("\n")
	b.WriteString("    classDef process fill:#eef2ff,stroke:#1f2937\n")
	b.WriteString("    classDef inventory fill:#fef3c7,stroke:#b45309\n")
	b.WriteString("    classDef control fill:#ecfeff,stroke:#0e7490\n")
	b.WriteString("    classDef bottleneck fill:#fee2e2,stroke:#b91c1c,stroke-width:3px\n")
	b.WriteString("    classDef overTakt stroke:#b91c1c,stroke-dasharray:5 5\n")

	for i := range p.Nodes {
		if cls := mermaidClass(&p.Nodes[i]); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(p.Nodes[i].ID), cls))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition shaped by node kind.
func mermaidNodeDef(v *NodeView) string {
	id := mermaidSafeID(v.ID)
	label := mermaidEscapeLabel(v.Label)
	if c := caption(v); c != "" {
		label += "<br/>" + mermaidEscapeLabel(c)
	}

	switch v.Kind {
	case schema.KindInventory:
		return fmt.Sprintf("%s[/%q\\]", id, label)
	case schema.KindProductionControl:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case schema.KindGeneric:
		if v.SymbolType == schema.SymbolSupplier || v.SymbolType == schema.SymbolCustomer {
			return fmt.Sprintf("%s{{%q}}", id, label)
		}
		return fmt.Sprintf("%s([%q])", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

func mermaidClass(v *NodeView) string {
	switch {
	case v.IsBottleneck:
		return "bottleneck"
	case v.OverTakt:
		return "overTakt"
	}
	switch v.Kind {
	case schema.KindProcess:
		return "process"
	case schema.KindInventory:
		return "inventory"
	case schema.KindProductionControl:
		return "control"
	}
	return ""
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel drops characters that end a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	return strings.NewReplacer(`"`, "'", "\n", " ").Replace(s)
}
