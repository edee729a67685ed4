package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// EncryptionMethod defines how data at rest is encrypted
type EncryptionMethod string

const (
	EncryptionNone   EncryptionMethod = "none"
	EncryptionSSHKey EncryptionMethod = "ssh_key"
)

// EncryptionManager encrypts and decrypts data using an AES-256 key
// derived from an SSH key signature. Reusable across storage systems
// (credentials, OAuth tokens, etc.).
type EncryptionManager struct {
	method     EncryptionMethod
	sshKeyPath string
	passphrase string
	signer     ssh.Signer
	aesKey     []byte
}

func NewEncryptionManager(method EncryptionMethod, sshKeyPath string) *EncryptionManager {
	return &EncryptionManager{
		method:     method,
		sshKeyPath: sshKeyPath,
	}
}

// SetPassphrase sets the passphrase for decrypting the SSH key
func (e *EncryptionManager) SetPassphrase(passphrase string) {
	e.passphrase = passphrase
}

// Initialize loads the SSH key and derives the AES key.
// For encrypted SSH keys the passphrase must be set first.
func (e *EncryptionManager) Initialize() error {
	switch e.method {
	case EncryptionNone:
		return nil

	case EncryptionSSHKey:
		encrypted, err := IsSSHKeyEncrypted(e.sshKeyPath)
		if err != nil {
			return fmt.Errorf("failed to check SSH key: %w", err)
		}

		if encrypted && e.passphrase == "" {
			return fmt.Errorf("SSH key is encrypted - passphrase required")
		}

		var signer ssh.Signer
		if encrypted {
			signer, err = LoadSSHPrivateKeyWithPassphrase(e.sshKeyPath, e.passphrase)
		} else {
			signer, err = LoadSSHPrivateKey(e.sshKeyPath)
		}
		if err != nil {
			return fmt.Errorf("failed to load SSH key: %w", err)
		}
		e.signer = signer

		aesKey, err := DeriveAESKeyFromSSH(signer)
		if err != nil {
			return fmt.Errorf("failed to derive encryption key: %w", err)
		}
		e.aesKey = aesKey

		return nil

	default:
		return fmt.Errorf("unknown encryption method: %s", e.method)
	}
}

// Encrypt encrypts data using the configured method
func (e *EncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	switch e.method {
	case EncryptionNone:
		return plaintext, nil

	case EncryptionSSHKey:
		if e.aesKey == nil {
			return nil, fmt.Errorf("encryption manager not initialized")
		}
		return encryptAESGCM(plaintext, e.aesKey)

	default:
		return nil, fmt.Errorf("unknown encryption method: %s", e.method)
	}
}

// Decrypt decrypts data using the configured method
func (e *EncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	switch e.method {
	case EncryptionNone:
		return ciphertext, nil

	case EncryptionSSHKey:
		if e.aesKey == nil {
			return nil, fmt.Errorf("encryption manager not initialized")
		}
		return decryptAESGCM(ciphertext, e.aesKey)

	default:
		return nil, fmt.Errorf("unknown encryption method: %s", e.method)
	}
}

// GetMethod returns the current encryption method
func (e *EncryptionManager) GetMethod() EncryptionMethod {
	return e.method
}

// encryptAESGCM encrypts data using AES-256-GCM
// Format: [nonce (12 bytes)][ciphertext + tag]
func encryptAESGCM(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decryptAESGCM decrypts data using AES-256-GCM
// Expects format: [nonce (12 bytes)][ciphertext + tag]
func decryptAESGCM(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := ciphertext[:nonceSize]
	plaintext, err := gcm.Open(nil, nonce, ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

// DeriveAESKeyFromSSH derives a 32-byte AES-256 key from an SSH key signature.
// Signing a fixed message gives deterministic output: the same SSH key always
// produces the same AES key.
func DeriveAESKeyFromSSH(signer ssh.Signer) ([]byte, error) {
	message := []byte("anvil-encryption-key-derivation-v1")

	signature, err := signer.Sign(rand.Reader, message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	hash := sha256.Sum256(signature.Blob)
	return hash[:], nil
}
