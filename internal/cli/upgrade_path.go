package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// UpgradeStep is one transition in command output.
type UpgradeStep struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// NewUpgradePathCommand creates the upgrade-path command.
func NewUpgradePathCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade-path <document-type> <from> <to>",
		Short: "Show the upgrade transitions between two model versions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid from version", err)
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid to version", err)
			}

			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg.Models.Dir)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load models", err)
			}

			path, err := reg.ComputeUpgradePath(args[0], from, to)
			if err != nil {
				return WrapExitError(ExitFailure, "no upgrade path", err)
			}
			steps := make([]UpgradeStep, 0, len(path))
			parts := make([]string, 0, len(path))
			for _, t := range path {
				steps = append(steps, UpgradeStep{From: t.From, To: t.To})
				parts = append(parts, fmt.Sprintf("v%d -> v%d", t.From, t.To))
			}
			text := "already at target version"
			if len(parts) > 0 {
				text = strings.Join(parts, "\n")
			}
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Success(steps, text)
		},
	}
}
