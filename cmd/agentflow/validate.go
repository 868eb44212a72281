package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/agentflow/pkg/agentflow/resource"
	"github.com/randalmurphal/agentflow/pkg/agentflow/schema"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check workflow files for structural errors",
		Long: `Builds the graph of each workflow file and checks its pipelines,
resources and payload schemas. Exits non-zero when any file is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFrom(cmd.Context())
			var errs []error
			for _, path := range args {
				if err := validateFile(path, logger); err != nil {
					logger.Error("invalid workflow", "path", path, "error", err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			return errors.Join(errs...)
		},
	}
}

func validateFile(path string, logger *slog.Logger) error {
	wf, g, err := load(path, logger)
	if err != nil {
		return err
	}
	pipelines, err := wf.ToolPipelines()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := wf.ApplyResources(resource.NewManager()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := wf.RegisterSchemas(schema.NewRegistry()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("workflow valid",
		"path", path,
		"start", g.Start(),
		"nodes", len(g.NodeNames()),
		"transitions", len(g.AllTransitions()),
		"pipelines", len(pipelines),
		"schemas", len(wf.Schemas),
	)
	return nil
}
