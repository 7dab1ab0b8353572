package deploy

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// devKeys are the first accounts of the well-known Hardhat/Anvil test
// mnemonic. Never use them outside a development chain.
var devKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6",
}

// NumDevKeys is the number of keys DevKey accepts.
var NumDevKeys = len(devKeys)

// DevKey returns development key i.
func DevKey(i int) *ecdsa.PrivateKey {
	if i < 0 || i >= len(devKeys) {
		panic(fmt.Sprintf("deploy: no dev key %d", i))
	}
	key, err := crypto.HexToECDSA(devKeys[i])
	if err != nil {
		panic(err)
	}
	return key
}
