package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Scopes []string
	Branch string
	After  int64
	Limit  int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <document-id>",
		Short: "Print the operations of a document",
		Long: `Print the stored operations of a document in index order, one log per
scope and branch.

Examples:
  reactor log 0f9c... --db replica.db
  reactor log 0f9c... --scope global --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.Scopes, "scope", nil, "scopes to print (default all)")
	cmd.Flags().StringVar(&opts.Branch, "branch", ir.BranchMain, "branch to print")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "print entries after this ordinal")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries to print (0 for the default page size)")

	return cmd
}

func runLog(cmd *cobra.Command, opts *LogOptions, documentID string) error {
	cfg, err := loadConfig(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if _, err := st.GetDocument(ctx, documentID); err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return NewExitError(ExitFailure, fmt.Sprintf("document %s not found", documentID))
		}
		return WrapExitError(ExitCommandError, "failed to read document", err)
	}

	page, err := st.Operations(ctx,
		store.OperationQuery{DocumentID: documentID, Scopes: opts.Scopes, Branch: opts.Branch},
		store.Paging{Cursor: opts.After, Limit: opts.Limit},
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read operations", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(page, formatEntries(page.Entries))
}

func formatEntries(entries []store.Entry) string {
	if len(entries) == 0 {
		return "no operations"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		op := e.Operation
		fmt.Fprintf(&b, "%6d  %-8s %-6s #%-4d skip=%d  %-20s %s  %s",
			e.Ordinal, e.Scope, e.Branch, op.Index, op.Skip, op.Action.Type, op.Action.ID, shortHash(op.Hash))
		if op.Error != "" {
			fmt.Fprintf(&b, "  error=%q", op.Error)
		}
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
