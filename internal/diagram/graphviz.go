package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/vsm/pkg/schema"
)

// Format selects the Graphviz output.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// RenderImage renders a payload as a PNG image using graphviz.
func RenderImage(p *Payload) ([]byte, error) {
	return Render(context.Background(), p, FormatPNG)
}

// Render lays p out left to right with dot and encodes it as format.
func Render(ctx context.Context, p *Payload, format Format) ([]byte, error) {
	var gvFormat graphviz.Format
	switch format {
	case FormatPNG:
		gvFormat = graphviz.PNG
	case FormatSVG:
		gvFormat = graphviz.SVG
	default:
		return nil, fmt.Errorf("diagram: unsupported format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	if p.Title != "" {
		graph.SetLabel(p.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(p.Nodes))
	for _, v := range byX(p.Nodes) {
		gvNode, nErr := graph.CreateNodeByName(v.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", v.ID, nErr)
		}
		label := v.Label
		if c := caption(&v); c != "" {
			label += "\n" + c
		}
		gvNode.SetLabel(label)
		applyNodeStyle(gvNode, &v)
		gvNodes[v.ID] = gvNode
	}

	for _, e := range p.Edges {
		fromGV, toGV := gvNodes[e.Source], gvNodes[e.Target]
		if fromGV == nil || toGV == nil {
			continue
		}
		gvEdge, eErr := graph.CreateEdgeByName(e.ID, fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s: %w", e.ID, eErr)
		}
		applyEdgeStyle(gvEdge, e)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on symbol and metrics.
func applyNodeStyle(gvNode *cgraph.Node, v *NodeView) {
	switch v.Kind {
	case schema.KindProcess:
		gvNode.SetShape(cgraph.BoxShape)
	case schema.KindInventory:
		gvNode.SetShape(cgraph.TriangleShape)
	case schema.KindProductionControl:
		gvNode.SetShape(cgraph.ComponentShape)
	default:
		if v.SymbolType == schema.SymbolSupplier || v.SymbolType == schema.SymbolCustomer {
			gvNode.SetShape(cgraph.HouseShape)
		} else {
			gvNode.SetShape(cgraph.EllipseShape)
		}
	}

	switch {
	case v.IsBottleneck:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#fee2e2")
		gvNode.SetColor("#b91c1c")
	case v.OverTakt:
		gvNode.SetStyle(cgraph.DashedNodeStyle)
		gvNode.SetColor("#b91c1c")
	case v.Kind == schema.KindInventory:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#fef3c7")
	}
}

func applyEdgeStyle(gvEdge *cgraph.Edge, e EdgeView) {
	gvEdge.SetColor(e.Style.Stroke)
	gvEdge.SetPenWidth(float64(e.Style.StrokeWidth))
	if e.Style.Dashed {
		gvEdge.SetStyle(cgraph.DashedEdgeStyle)
	}
	if e.FlowType != schema.FlowMaterial {
		gvEdge.SetConstraint(false)
	}
}
