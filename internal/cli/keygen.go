package cli

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/signature"
)

// KeyInfo is the output of keygen.
type KeyInfo struct {
	KeyFile   string `json:"key_file"`
	PublicKey string `json:"public_key"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <key-file>",
		Short: "Generate an ed25519 signing key",
		Long: `Write a new hex-encoded ed25519 seed to key-file and print its public key.
Use the file as signing.key_file and the public key in the trusted_keys of
other replicas.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := signature.GenerateKey()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to generate key", err)
			}
			f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create key file", err)
			}
			if _, err := fmt.Fprintln(f, hex.EncodeToString(priv.Seed())); err != nil {
				f.Close()
				return WrapExitError(ExitFailure, "failed to write key file", err)
			}
			if err := f.Close(); err != nil {
				return WrapExitError(ExitFailure, "failed to write key file", err)
			}

			info := KeyInfo{KeyFile: args[0], PublicKey: hex.EncodeToString(pub)}
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Success(info, info.PublicKey)
		},
	}
}
