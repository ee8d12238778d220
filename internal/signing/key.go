// Package signing produces and checks the signed envelopes that wrap every
// RPC request and response. Accounts are secp256k1 public keys.
package signing

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Key is an account's private key.
type Key struct {
	priv *btcec.PrivateKey
}

// GenerateKey creates a fresh key.
func GenerateKey() (*Key, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Key{priv: priv}, nil
}

// KeyFromHex parses a hex-encoded 32-byte private key.
func KeyFromHex(s string) (*Key, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	if len(b) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("signing key: want %d bytes, got %d", btcec.PrivKeyBytesLen, len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return &Key{priv: priv}, nil
}

// LoadKey reads a key written by SaveKey.
func LoadKey(path string) (*Key, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return KeyFromHex(string(b))
}

// SaveKey writes the key as hex, readable only by the owner.
func (k *Key) SaveKey(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(k.priv.Serialize())+"\n"), 0o600)
}

// Account is the hex compressed public key identifying the key's owner.
func (k *Key) Account() string {
	return hex.EncodeToString(k.priv.PubKey().SerializeCompressed())
}

func parseAccount(account string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(account)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}
