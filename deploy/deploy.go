// Package deploy wires the token and vault contracts into a runtime.
package deploy

import (
	"context"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/contracts"
	"github.com/tokenvault/tokenvault/token"
	"github.com/tokenvault/tokenvault/vault"
)

// Deployment is the set of addresses produced by Deploy.
type Deployment struct {
	Deployer ethCommon.Address
	Token    ethCommon.Address
	Vault    ethCommon.Address
}

// Register makes the contract kinds restorable from persisted state.
func Register(rt *chain.Runtime) {
	rt.Register(token.Kind, token.Factory)
	rt.Register(vault.Kind, vault.Factory)
}

// Deploy deploys a Vault and a Token from deployer and points the vault
// at the token.
func Deploy(ctx context.Context, rt *chain.Runtime, deployer ethCommon.Address) (*Deployment, error) {
	vaultAddr, _, err := rt.Deploy(ctx, deployer, vault.New())
	if err != nil {
		return nil, fmt.Errorf("deploy vault: %w", err)
	}
	tokenAddr, _, err := rt.Deploy(ctx, deployer, token.New())
	if err != nil {
		return nil, fmt.Errorf("deploy token: %w", err)
	}
	data, err := contracts.Vault.Pack("setToken", tokenAddr)
	if err != nil {
		return nil, err
	}
	receipt, err := rt.Transact(ctx, deployer, vaultAddr, data)
	if err != nil {
		return nil, fmt.Errorf("set vault token: %w", err)
	}
	if !receipt.Succeeded() {
		return nil, fmt.Errorf("set vault token: %w", receipt.Revert)
	}
	return &Deployment{
		Deployer: deployer,
		Token:    tokenAddr,
		Vault:    vaultAddr,
	}, nil
}

// Restore rebuilds the Deployment of a runtime whose state was loaded from a
// store. Deploy creates the vault at deployer nonce 0 and the token at nonce 1.
func Restore(rt *chain.Runtime, deployer ethCommon.Address) (*Deployment, error) {
	d := &Deployment{
		Deployer: deployer,
		Vault:    crypto.CreateAddress(deployer, 0),
		Token:    crypto.CreateAddress(deployer, 1),
	}
	if kind := string(rt.Code(d.Vault)); kind != vault.Kind {
		return nil, fmt.Errorf("no vault deployed by %s at %s", deployer, d.Vault)
	}
	if kind := string(rt.Code(d.Token)); kind != token.Kind {
		return nil, fmt.Errorf("no token deployed by %s at %s", deployer, d.Token)
	}
	return d, nil
}
