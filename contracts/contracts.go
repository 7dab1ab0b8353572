// Package contracts holds the interface descriptions of the Token and Vault
// contracts, and loads Hardhat artifacts from disk.
package contracts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Artifact is the subset of a Hardhat compilation artifact that tokenvault
// reads.
type Artifact struct {
	Format       string  `json:"_format"`
	ContractName string  `json:"contractName"`
	SourceName   string  `json:"sourceName"`
	ABI          abi.ABI `json:"abi"`
}

// ParseArtifact parses a Hardhat artifact. An artifact without an ABI is an
// error.
func ParseArtifact(artifactJSON []byte) (*Artifact, error) {
	var artifact struct {
		Artifact
		RawABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(artifactJSON, &artifact); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	if len(artifact.RawABI) == 0 || string(artifact.RawABI) == "null" {
		return nil, fmt.Errorf("artifact %q has no abi", artifact.ContractName)
	}
	if err := json.Unmarshal(artifact.RawABI, &artifact.Artifact.ABI); err != nil {
		return nil, fmt.Errorf("unmarshal abi of %q: %w", artifact.ContractName, err)
	}
	return &artifact.Artifact, nil
}

// LoadArtifact reads and parses the Hardhat artifact at path, e.g.
// artifacts/contracts/Token.sol/Token.json.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	artifact, err := ParseArtifact(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return artifact, nil
}

func MustUnmarshalABI(artifactJSON []byte) *abi.ABI {
	artifact, err := ParseArtifact(artifactJSON)
	if err != nil {
		panic(err)
	}
	return &artifact.ABI
}

//go:embed artifacts/Token.json
var artifactTokenJSON []byte
var Token = MustUnmarshalABI(artifactTokenJSON)

//go:embed artifacts/Vault.json
var artifactVaultJSON []byte
var Vault = MustUnmarshalABI(artifactVaultJSON)

// ByName returns the embedded ABI of a contract by its artifact name.
func ByName(name string) (*abi.ABI, bool) {
	switch name {
	case "Token":
		return Token, true
	case "Vault":
		return Vault, true
	default:
		return nil, false
	}
}
