package contracts

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedABIs(t *testing.T) {
	// Selectors are fixed by the Solidity ABI and must never change.
	for _, tt := range []struct {
		name     string
		method   string
		selector string
	}{
		{"Token", "balanceOf", "70a08231"},
		{"Token", "transfer", "a9059cbb"},
		{"Token", "approve", "095ea7b3"},
		{"Token", "transferFrom", "23b872dd"},
		{"Token", "totalSupply", "18160ddd"},
		{"Vault", "grantRole", "2f2ff15d"},
		{"Vault", "hasRole", "91d14854"},
		{"Vault", "withdraw", "f3fef3a3"},
		{"Vault", "deposit", "b6b55f25"},
	} {
		contractABI, ok := ByName(tt.name)
		require.True(t, ok, tt.name)
		method, ok := contractABI.Methods[tt.method]
		require.True(t, ok, "%s.%s", tt.name, tt.method)
		require.Equal(t, tt.selector, hex.EncodeToString(method.ID), "%s.%s", tt.name, tt.method)
	}

	require.Equal(t,
		"ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		hex.EncodeToString(Token.Events["Transfer"].ID.Bytes()),
	)

	_, ok := ByName("Unknown")
	require.False(t, ok)
}

func TestLoadArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Token.json")
	require.NoError(t, os.WriteFile(path, artifactTokenJSON, 0o600))

	artifact, err := LoadArtifact(path)
	require.NoError(t, err)
	require.Equal(t, "Token", artifact.ContractName)
	require.Equal(t, "contracts/Token.sol", artifact.SourceName)
	require.Contains(t, artifact.ABI.Methods, "transfer")

	_, err = LoadArtifact(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	noABI := filepath.Join(dir, "NoABI.json")
	require.NoError(t, os.WriteFile(noABI, []byte(`{"contractName":"NoABI"}`), 0o600))
	_, err = LoadArtifact(noABI)
	require.ErrorContains(t, err, "has no abi")

	garbage := filepath.Join(dir, "Garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`{"abi": 5}`), 0o600))
	_, err = LoadArtifact(garbage)
	require.Error(t, err)
}
