package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// DerivationPath is recorded on every provisioned key.
const DerivationPath = "m/44'/223'/0'/0/0"

const (
	masterKeySize = 32
	nonceSize     = 24
)

var (
	// ErrInvalidMasterKey indicates the sealing key has the wrong length.
	ErrInvalidMasterKey = errors.New("master key must be 32 bytes")
	// ErrSealBroken indicates a sealed private key could not be opened.
	ErrSealBroken = errors.New("sealed private key cannot be opened")
)

// Custodian provisions key material for wallet owners.
type Custodian interface {
	Provision(owner string, createdAt uint64) (KeyRecord, error)
}

// SecretboxCustodian generates ed25519 key pairs and seals the private half
// with NaCl secretbox under a master key.
type SecretboxCustodian struct {
	master [masterKeySize]byte
	rand   io.Reader
}

// NewSecretboxCustodian builds a custodian sealing with masterKey.
func NewSecretboxCustodian(masterKey []byte) (*SecretboxCustodian, error) {
	if len(masterKey) != masterKeySize {
		return nil, ErrInvalidMasterKey
	}
	c := &SecretboxCustodian{rand: rand.Reader}
	copy(c.master[:], masterKey)
	return c, nil
}

// NewEphemeralCustodian builds a custodian with a random master key. Records
// sealed by it cannot be opened after the process exits.
func NewEphemeralCustodian() (*SecretboxCustodian, error) {
	key := make([]byte, masterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	return NewSecretboxCustodian(key)
}

// Provision creates a fresh key pair for owner.
func (c *SecretboxCustodian) Provision(_ string, createdAt uint64) (KeyRecord, error) {
	public, private, err := ed25519.GenerateKey(c.rand)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("generate key pair: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(c.rand, nonce[:]); err != nil {
		return KeyRecord{}, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], private, &nonce, &c.master)

	return KeyRecord{
		PublicKey:           hex.EncodeToString(public),
		EncryptedPrivateKey: hex.EncodeToString(sealed),
		DerivationPath:      DerivationPath,
		CreatedAt:           createdAt,
	}, nil
}

// Open recovers the private key sealed in record.
func (c *SecretboxCustodian) Open(record KeyRecord) (ed25519.PrivateKey, error) {
	sealed, err := hex.DecodeString(record.EncryptedPrivateKey)
	if err != nil || len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrSealBroken
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	private, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &c.master)
	if !ok || len(private) != ed25519.PrivateKeySize {
		return nil, ErrSealBroken
	}
	return ed25519.PrivateKey(private), nil
}
