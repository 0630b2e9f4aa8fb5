package keys

// KeyRecord describes the key material held in custody for an owner.
type KeyRecord struct {
	PublicKey           string `json:"public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
	DerivationPath      string `json:"derivation_path"`
	CreatedAt           uint64 `json:"created_at"`
}
