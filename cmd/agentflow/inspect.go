package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
)

func newInspectCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the nodes and transitions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, g, err := load(args[0], loggerFrom(cmd.Context()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				printText(out, g)
			case "mermaid":
				printMermaid(out, g)
			case "yaml":
				data, err := config.Encode(g)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			default:
				return fmt.Errorf("unknown format %q (want text, mermaid or yaml)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, mermaid or yaml")
	return cmd
}

func printText(w io.Writer, g *agentflow.Graph) {
	fmt.Fprintf(w, "start: %s\n", g.Start())

	kinds := g.Kinds()
	keys := make([]agentflow.NodeKind, 0, len(kinds))
	for k := range kinds {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, kinds[k]))
	}
	fmt.Fprintf(w, "kinds: %s\n\n", strings.Join(parts, " "))

	for _, n := range g.Nodes() {
		fmt.Fprintf(w, "%-20s %s\n", n.Name(), n.Kind())
		for _, to := range g.Successors(n.Name()) {
			if kind, ok := guarded(g, n, to); ok {
				fmt.Fprintf(w, "  -> %s [%s]\n", to, kind)
			} else {
				fmt.Fprintf(w, "  -> %s\n", to)
			}
		}
	}
}

// guarded reports whether the edge from n to to carries a condition, and
// of which kind.
func guarded(g *agentflow.Graph, n agentflow.Node, to string) (agentflow.ConditionKind, bool) {
	switch n := n.(type) {
	case *agentflow.DecisionNode:
		for _, br := range n.Branches {
			if br.Target == to && !br.Condition.IsAlways() {
				return br.Condition.Kind, true
			}
		}
	case *agentflow.LoopNode:
		if to == n.Entry && !n.Condition.IsAlways() {
			return n.Condition.Kind, true
		}
	}
	for _, t := range g.Transitions(n.Name()) {
		if t.To == to && !t.Condition.IsAlways() {
			return t.Condition.Kind, true
		}
	}
	return "", false
}

func printMermaid(w io.Writer, g *agentflow.Graph) {
	fmt.Fprintln(w, "graph TD")
	for _, n := range g.Nodes() {
		fmt.Fprintf(w, "    %s%s\n", mermaidID(n.Name()), mermaidShape(n))
	}
	for _, n := range g.Nodes() {
		for _, to := range g.Successors(n.Name()) {
			arrow := "-->"
			if _, ok := guarded(g, n, to); ok {
				arrow = "-.->"
			}
			fmt.Fprintf(w, "    %s %s %s\n", mermaidID(n.Name()), arrow, mermaidID(to))
		}
	}
}

func mermaidShape(n agentflow.Node) string {
	switch n.Kind() {
	case agentflow.KindDecision:
		return fmt.Sprintf("{%q}", n.Name())
	case agentflow.KindTerminal:
		return fmt.Sprintf("([%q])", n.Name())
	case agentflow.KindJoin:
		return fmt.Sprintf("[[%q]]", n.Name())
	default:
		return fmt.Sprintf("[%q]", n.Name())
	}
}

func mermaidID(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' || r == ' ' {
			return '_'
		}
		return r
	}, name)
}
