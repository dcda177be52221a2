package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/modelspec"
)

// ModelInfo describes one model in command output.
type ModelInfo struct {
	DocumentType string   `json:"document_type"`
	Version      int      `json:"version"`
	Scopes       []string `json:"scopes"`
	Actions      []string `json:"actions,omitempty"`
	Upgradable   bool     `json:"upgradable,omitempty"`
}

// NewModelsCommand creates the models command group.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect document models",
	}
	cmd.AddCommand(newModelsListCommand(rootOpts))
	cmd.AddCommand(newModelsValidateCommand(rootOpts))
	return cmd
}

func newModelsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg.Models.Dir)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load models", err)
			}

			var infos []ModelInfo
			for _, m := range reg.Modules() {
				infos = append(infos, ModelInfo{
					DocumentType: m.DocumentType,
					Version:      m.Version,
					Scopes:       m.Scopes,
					Upgradable:   m.UpgradeManifest != nil,
				})
			}
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Success(infos, formatModels(infos))
		},
	}
}

func newModelsValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file-or-dir>",
		Short: "Check CUE model definitions",
		Long: `Compile CUE model definitions and report the models they declare.

Examples:
  reactor models validate ./models
  reactor models validate list.cue --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			set, err := compileModels(args[0])
			if err != nil {
				_ = formatter.Error("E_INVALID_MODEL", err.Error())
				return WrapExitError(ExitFailure, "validation failed", err)
			}

			var infos []ModelInfo
			for _, m := range set.Models() {
				infos = append(infos, ModelInfo{
					DocumentType: m.DocumentType,
					Version:      m.Version,
					Scopes:       m.Scopes,
					Actions:      m.ActionNames(),
				})
			}
			return formatter.Success(infos, formatModels(infos))
		},
	}
}

func compileModels(path string) (*modelspec.Set, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return modelspec.LoadDir(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return modelspec.Compile(path, src)
}

func formatModels(infos []ModelInfo) string {
	if len(infos) == 0 {
		return "no models"
	}
	var b strings.Builder
	for i, m := range infos {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s v%d  scopes=%s", m.DocumentType, m.Version, strings.Join(m.Scopes, ","))
		if len(m.Actions) > 0 {
			fmt.Fprintf(&b, "  actions=%s", strings.Join(m.Actions, ","))
		}
		if m.Upgradable {
			b.WriteString("  (upgrade)")
		}
	}
	return b.String()
}
