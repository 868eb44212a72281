package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
)

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "agentflow",
		Short:         "Validate and inspect agentflow workflow files",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(withLogger(cmd.Context(), logger))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newValidateCmd(), newInspectCmd())
	return root
}

// load reads a workflow and builds its graph. Custom joins get a
// placeholder aggregator since their Go implementation is not available
// to the CLI.
func load(path string, logger *slog.Logger) (*config.Workflow, *agentflow.Graph, error) {
	wf, err := config.FromFile(path)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("workflow decoded", "path", path, "nodes", len(wf.Flow.Nodes), "transitions", len(wf.Flow.Transitions))

	var opts []config.GraphOption
	for _, nd := range wf.Flow.Nodes {
		if nd.Kind == "join" && nd.Strategy == "custom" {
			name := nd.Aggregator
			if name == "" {
				name = nd.ID
			}
			opts = append(opts, config.WithAggregator(name, placeholderAggregator{}))
		}
	}
	g, err := wf.Graph(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, g, nil
}

type placeholderAggregator struct{}

func (placeholderAggregator) Ready([]agentflow.Arrival) bool { return false }

func (placeholderAggregator) Aggregate(string, []agentflow.Arrival) (*message.Message, error) {
	return nil, nil
}
