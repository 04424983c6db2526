// Package util collects small ambient helpers shared across the engine:
// ABI loading, hex decoding, and symmetric decryption of the signing key
// material referenced from configuration. Grounded on the teacher's
// pkg/contractclient tests (util.LoadABIFromHardhatArtifact,
// util.Hex2Bytes) and cmd/main.go's util.Decrypt(key, encryptedPk) usage.
package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// hardhatArtifact mirrors the subset of a Hardhat/Foundry compilation
// artifact this engine reads: just the "abi" field.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads a Hardhat-style build artifact JSON file
// and parses its "abi" field into a go-ethereum abi.ABI.
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: read abi artifact %s: %w", path, err)
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(raw, &artifact); err == nil && len(artifact.ABI) > 0 {
		parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("util: parse abi field of %s: %w", path, err)
		}
		return parsed, nil
	}

	// Fall back to a bare ABI array file (no "abi" wrapper field).
	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse bare abi file %s: %w", path, err)
	}
	return parsed, nil
}

// Hex2Bytes decodes a 0x-prefixed or bare hex string into bytes.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// Decrypt reverses Encrypt: AES-256-GCM with the nonce prefixed to the
// ciphertext, both hex-encoded. Used at startup to recover the master
// signing key from ENC_PK given the KEY environment variable
// (SPEC_FULL.md §6, master_signing_key), matching the teacher's
// cmd/main.go wiring of util.Decrypt(key, encryptedPk).
func Decrypt(key []byte, encryptedHex string) (string, error) {
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return "", fmt.Errorf("util: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("util: build gcm: %w", err)
	}

	data := Hex2Bytes(encryptedHex)
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("util: ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("util: decrypt: %w", err)
	}
	return string(plain), nil
}

// Encrypt is the inverse of Decrypt, provided so operators can produce the
// ENC_PK value for configuration without a separate tool.
func Encrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return "", fmt.Errorf("util: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("util: build gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("util: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// normalizeKey pads/truncates an arbitrary-length key material to 32 bytes
// so callers can pass a passphrase rather than a raw AES-256 key.
func normalizeKey(key []byte) []byte {
	out := make([]byte, 32)
	copy(out, key)
	return out
}
