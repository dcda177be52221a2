package cli

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/config"
	"github.com/roach88/reactor/internal/models"
	"github.com/roach88/reactor/internal/modelspec"
	"github.com/roach88/reactor/internal/registry"
	"github.com/roach88/reactor/internal/signature"
)

func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// buildRegistry registers the built-in models. When dir is set, its CUE
// definitions replace the built-in schemas of the models they name.
func buildRegistry(dir string) (*registry.Registry, error) {
	mods, err := models.Modules()
	if err != nil {
		return nil, err
	}
	if dir != "" {
		set, err := modelspec.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("load models from %s: %w", dir, err)
		}
		mods = set.Attach(mods)
	}
	reg := registry.New()
	if err := reg.RegisterModules(mods...); err != nil {
		return nil, err
	}
	return reg, nil
}

// buildSigning returns the signer and verifier configured in cfg. Either
// may be nil.
func buildSigning(cfg *config.Config) (signature.Signer, signature.Verifier, error) {
	var signer signature.Signer
	if cfg.Signing.KeyFile != "" {
		key, err := signature.LoadPrivateKey(cfg.Signing.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		signer = signature.NewEd25519Signer(cfg.Signing.SignerID, key)
	}

	if len(cfg.Signing.TrustedKeys) == 0 && !cfg.Signing.RequireSignatures {
		return signer, nil, nil
	}
	ring := signature.NewKeyRing()
	ring.RequireSignatures = cfg.Signing.RequireSignatures
	for id, h := range cfg.Signing.TrustedKeys {
		pub, err := hex.DecodeString(h)
		if err != nil {
			return nil, nil, fmt.Errorf("trusted key %q: %w", id, err)
		}
		if len(pub) != ed25519.PublicKeySize {
			return nil, nil, fmt.Errorf("trusted key %q: want %d bytes, got %d", id, ed25519.PublicKeySize, len(pub))
		}
		ring.Add(id, ed25519.PublicKey(pub))
	}
	if s, ok := signer.(*signature.Ed25519Signer); ok {
		ring.Add(s.ID(), s.PublicKey())
	}
	return signer, ring, nil
}
