package model

import (
	"fmt"
	"strings"
)

// Render draws a group's structure as a human-readable outline, one child
// per line, nested children indented under their parent.  Variables are
// annotated with their shape, and with their element type when verbose is
// set.  The output is deterministic for an unmutated tree; an empty group
// renders as the bare root marker.
//
//	+
//	|____seconds_of_day (5,)
//	|____position
//	     |____x (3, 4)
func Render(g *Group, verbose bool) string {
	var sb strings.Builder
	sb.WriteString("+\n")
	renderInto(&sb, g, "", verbose)
	return sb.String()
}

func renderInto(sb *strings.Builder, g *Group, indent string, verbose bool) {
	for name, node := range g.Children() {
		sb.WriteString(indent)
		sb.WriteString("|____")
		sb.WriteString(name)
		switch n := node.(type) {
		case *Variable:
			sb.WriteString(" ")
			sb.WriteString(FormatShape(n.Shape()))
			if verbose {
				sb.WriteString(" ")
				sb.WriteString(n.Type().String())
			}
			sb.WriteString("\n")
		case *Group:
			sb.WriteString("\n")
			renderInto(sb, n, indent+"     ", verbose)
		}
	}
}

// FormatShape renders extents tuple-style: "()", "(5,)", "(3, 4)".
func FormatShape(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", shape[0])
	}
	parts := make([]string, len(shape))
	for i, dim := range shape {
		parts[i] = fmt.Sprint(dim)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
