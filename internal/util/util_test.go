package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex2Bytes(t *testing.T) {
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, Hex2Bytes("0xdeadbeef"))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, Hex2Bytes("deadbeef"))
	assert.Nil(t, Hex2Bytes("not hex"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("a passphrase, not necessarily 32 bytes")
	plain := "0xabcdef0123456789"

	encrypted, err := Encrypt(key, plain)
	require.NoError(t, err)

	decrypted, err := Decrypt(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	encrypted, err := Encrypt([]byte("correct horse battery staple"), "secret")
	require.NoError(t, err)

	_, err = Decrypt([]byte("wrong key entirely"), encrypted)
	assert.Error(t, err)
}

func TestLoadABIFromHardhatArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ERC20.json")
	artifact := `{
		"contractName": "ERC20",
		"abi": [
			{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))

	parsed, err := LoadABIFromHardhatArtifact(path)
	require.NoError(t, err)

	_, ok := parsed.Methods["transfer"]
	assert.True(t, ok)
}

func TestLoadABIFromBareArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bare.json")
	bare := `[{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"}]`
	require.NoError(t, os.WriteFile(path, []byte(bare), 0o644))

	parsed, err := LoadABIFromHardhatArtifact(path)
	require.NoError(t, err)

	_, ok := parsed.Methods["owner"]
	assert.True(t, ok)
}
