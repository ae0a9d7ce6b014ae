package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"callqa/internal/api"
	"callqa/internal/daemonrun"
)

var errNotReady = errors.New("one or more dependencies are not ready")

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe every pipeline dependency without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			results := daemonrun.CheckDependencies(cmd.Context(), cfg, ctx.cliLogger(cmd))
			deps := api.FromProbeResults(results)
			ready := len(deps) > 0
			for _, dep := range deps {
				ready = ready && dep.Ready
			}

			if asJSON {
				if err := writeJSON(cmd, map[string]any{"ready": ready, "dependencies": deps}); err != nil {
					return err
				}
			} else {
				stdout := cmd.OutOrStdout()
				printSection(stdout, "Dependencies", shouldColorize(stdout), dependencyLines(deps, shouldColorize(stdout)))
			}
			if !ready {
				return errNotReady
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "All dependencies ready")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print probe results as JSON")
	return cmd
}
