package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/veritrack/internal/auth"
	"github.com/hazyhaar/veritrack/internal/protocol"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		tokenAddress, tokenHandle = "", "operator"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "veritrack dev\n", out)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("VERITRACK_JWT_SECRET", "cli-secret")

	out, err := execute(t, "token")
	require.NoError(t, err)
	claims, err := auth.New("cli-secret", 60).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, protocol.Address("0x0000000000000000000000000000000000000a11"), claims.Address)

	out, err = execute(t, "token", "--address", "0x00000000000000000000000000000000000000B0")
	require.NoError(t, err)
	claims, err = auth.New("cli-secret", 60).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, protocol.Address("0x00000000000000000000000000000000000000b0"), claims.Address)

	_, err = execute(t, "token", "--address", "bogus")
	assert.Error(t, err)
}

func TestReplayCommand(t *testing.T) {
	t.Setenv("VERITRACK_DB_PATH", filepath.Join(t.TempDir(), "replay.db"))

	out, err := execute(t, "replay")
	require.NoError(t, err)
	var got struct {
		Status struct {
			Head   int64 `json:"head"`
			Halted bool  `json:"halted"`
		} `json:"status"`
		Denominations []string `json:"denominations"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Zero(t, got.Status.Head)
	assert.False(t, got.Status.Halted)
	assert.Equal(t, []string{"STAKE"}, got.Denominations)
}
