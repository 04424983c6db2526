// Package signer builds the per-chain *bind.TransactOpts/types.Signer pair
// every C7 contract-wrapper call needs, from the engine's single master
// signing key (SPEC_FULL.md §6, master_signing_key).
//
// Grounded on the teacher's cmd/main.go, which decrypts ENC_PK with
// util.Decrypt(KEY, ENC_PK) into a raw private key hex string before
// building its config; this package picks up exactly where that leaves
// off, turning the decrypted hex into go-ethereum signing primitives with
// crypto.HexToECDSA + bind.NewKeyedTransactorWithChainID, one signer per
// chain since each chain carries its own EIP-155 chain ID.
package signer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/copytradeengine/engine/internal/chain"
)

// MasterSigner holds the engine's single signing key and mints
// chain-specific TransactOpts/Signer pairs on demand.
type MasterSigner struct {
	key *ecdsa.PrivateKey
}

// New parses a hex-encoded (0x-optional) ECDSA private key, typically the
// output of util.Decrypt against ENC_PK.
func New(privateKeyHex string) (*MasterSigner, error) {
	key, err := crypto.HexToECDSA(trim0x(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return &MasterSigner{key: key}, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Address returns the signer's on-chain address, used to populate
// RegisteredWallet/StrategyWallet admin fields at startup.
func (m *MasterSigner) Address() string {
	return crypto.PubkeyToAddress(m.key.PublicKey).Hex()
}

// TransactOpts builds a TransactOpts bound to c's chain ID, plus the
// matching types.Signer for txfetcher.WaitReady's sender recovery.
func (m *MasterSigner) TransactOpts(c chain.Chain) (*bind.TransactOpts, types.Signer, error) {
	chainID := c.ChainID()
	auth, err := bind.NewKeyedTransactorWithChainID(m.key, chainID)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: build transactor for %s: %w", c, err)
	}
	return auth, types.NewLondonSigner(chainID), nil
}
