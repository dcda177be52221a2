package cli

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/models"
	"github.com/roach88/reactor/internal/reactor"
	"github.com/roach88/reactor/internal/signature"
	"github.com/roach88/reactor/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "reactor", cmd.Use)
	assert.Contains(t, cmd.Long, "converge")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"}, {"log"}, {"models", "list"}, {"models", "validate"}, {"upgrade-path"}, {"keygen"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "models"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"listen", "log-level", "log-file", "token"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "models", "list", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestModelsList(t *testing.T) {
	out, err := execute(t, "models", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "reactor/list v1")
	assert.Contains(t, out, "reactor/list v2")
	assert.Contains(t, out, "reactor/drive v1")

	out, err = execute(t, "models", "list", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string      `json:"status"`
		Data   []ModelInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data, 3)
}

func TestModelsValidate(t *testing.T) {
	out, err := execute(t, "models", "validate", filepath.Join("..", "models", "models.cue"))
	require.NoError(t, err)
	assert.Contains(t, out, "reactor/list v2")
	assert.Contains(t, out, "ADD_ITEM")

	bad := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte("models: {"), 0o644))
	out, err = execute(t, "models", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E_INVALID_MODEL")

	_, err = execute(t, "models", "validate", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
}

func TestUpgradePath(t *testing.T) {
	out, err := execute(t, "upgrade-path", models.ListType, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, "v1 -> v2\n", out)

	out, err = execute(t, "upgrade-path", models.ListType, "2", "2")
	require.NoError(t, err)
	assert.Equal(t, "already at target version\n", out)

	_, err = execute(t, "upgrade-path", models.ListType, "2", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "upgrade-path", models.ListType, "one", "2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer.key")

	out, err := execute(t, "keygen", path, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data KeyInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	priv, err := signature.LoadPrivateKey(path)
	require.NoError(t, err)
	signer := signature.NewEd25519Signer("me", priv)
	assert.Equal(t, resp.Data.PublicKey, hexKey(signer.PublicKey()))

	_, err = execute(t, "keygen", path)
	require.Error(t, err, "existing key files are not overwritten")
}

func TestLog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "replica.db")
	docID := seedDocument(t, dbPath)

	out, err := execute(t, "log", docID, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE_DOCUMENT")
	assert.Contains(t, out, "ADD_ITEM")

	out, err = execute(t, "log", docID, "--db", dbPath, "--scope", "global", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data store.Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, "ADD_ITEM", resp.Data.Entries[0].Operation.Action.Type)

	_, err = execute(t, "log", "missing", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestServeStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve",
		"--db", filepath.Join(dir, "replica.db"),
		"--listen", "127.0.0.1:0",
		"--log-file", filepath.Join(dir, "reactor.log"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))

	_, err := os.Stat(filepath.Join(dir, "replica.db"))
	assert.NoError(t, err)
}

func seedDocument(t *testing.T, dbPath string) string {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	reg, err := buildRegistry("")
	require.NoError(t, err)

	r, err := reactor.New(st, reg)
	require.NoError(t, err)
	r.Start(ctx)
	defer r.Close(ctx)

	docID, jobID, err := r.Create(ctx, models.ListType, reactor.CreateOptions{})
	require.NoError(t, err)
	res, err := r.Wait(ctx, jobID)
	require.NoError(t, err)
	require.NoError(t, res.Err)

	ids, err := r.Execute(ctx, docID, "", []ir.Action{
		ir.NewAction("ADD_ITEM", ir.ScopeGlobal, ir.Object{"id": ir.String("a"), "text": ir.String("milk")}),
	})
	require.NoError(t, err)
	for _, id := range ids {
		res, err := r.Wait(ctx, id)
		require.NoError(t, err)
		require.NoError(t, res.Err)
	}
	return docID
}

func hexKey(k ed25519.PublicKey) string {
	return hex.EncodeToString(k)
}
