package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// LoadSSHPrivateKey loads an unencrypted SSH private key from the given path.
func LoadSSHPrivateKey(keyPath string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	return signer, nil
}

// IsSSHKeyEncrypted checks if an SSH private key is encrypted without attempting to decrypt it
func IsSSHKeyEncrypted(keyPath string) (bool, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return false, fmt.Errorf("failed to read SSH key: %w", err)
	}

	_, err = ssh.ParsePrivateKey(keyData)
	if err == nil {
		return false, nil
	}

	if strings.Contains(err.Error(), "encrypted") ||
		strings.Contains(err.Error(), "passphrase") {
		return true, nil
	}

	return false, fmt.Errorf("invalid SSH key: %w", err)
}

// LoadSSHPrivateKeyWithPassphrase loads an encrypted SSH private key using the provided passphrase
func LoadSSHPrivateKeyWithPassphrase(keyPath string, passphrase string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	signer, err := ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key (wrong passphrase?): %w", err)
	}

	return signer, nil
}

// FindSSHKeys scans ~/.ssh for SSH private keys and returns their paths.
// The anvil-specific key is listed first if it exists.
func FindSSHKeys() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	sshDir := filepath.Join(homeDir, ".ssh")
	if _, err := os.Stat(sshDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	keyNames := []string{
		"anvil_ed25519", // anvil-specific key (highest priority)
		"id_ed25519",
		"id_rsa",
		"id_ecdsa",
		"id_dsa",
	}

	var foundKeys []string
	for _, name := range keyNames {
		keyPath := filepath.Join(sshDir, name)
		if _, err := os.Stat(keyPath); err == nil {
			if isPrivateKey(keyPath) {
				foundKeys = append(foundKeys, keyPath)
			}
		}
	}

	return foundKeys, nil
}

// isPrivateKey checks if a file is likely an SSH private key
func isPrivateKey(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	content := string(data)
	return strings.Contains(content, "BEGIN") &&
		strings.Contains(content, "PRIVATE KEY")
}

// CreateAnvilKey generates a new ED25519 SSH key pair for anvil use.
// The passphrase parameter is optional (empty string for no passphrase).
// Returns the actual path where the key was created.
func CreateAnvilKey(passphrase string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	sshDir := filepath.Join(homeDir, ".ssh")
	baseKeyName := "anvil_ed25519"
	keyPath := filepath.Join(sshDir, baseKeyName)

	// If the base key already exists, append timestamp+counter
	if _, err := os.Stat(keyPath); err == nil {
		dateStr := time.Now().Format("20060102")
		counter := 1

		for {
			newKeyName := fmt.Sprintf("%s_%s%02d", baseKeyName, dateStr, counter)
			keyPath = filepath.Join(sshDir, newKeyName)

			if _, err := os.Stat(keyPath); os.IsNotExist(err) {
				break
			}

			counter++
			if counter > 99 {
				return "", fmt.Errorf("exceeded maximum key creation limit for today (99)")
			}
		}

		if DebugLog != nil {
			DebugLog.Printf("[SSH] Base key exists, using unique name: %s", filepath.Base(keyPath))
		}
	}

	if err := os.MkdirAll(sshDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create .ssh directory: %w", err)
	}

	args := []string{
		"-t", "ed25519",
		"-f", keyPath,
		"-C", "anvil-encryption-key",
		"-N", passphrase, // empty string for no passphrase
	}

	cmd := exec.Command("ssh-keygen", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to generate SSH key: %w\nOutput: %s", err, output)
	}

	if err := os.Chmod(keyPath, 0600); err != nil {
		return "", fmt.Errorf("failed to set key permissions: %w", err)
	}

	if DebugLog != nil {
		DebugLog.Printf("[SSH] Created anvil encryption key at %s", keyPath)
	}

	return keyPath, nil
}

// GetAnvilKeyPath returns the base path to the anvil-specific SSH key
// (~/.ssh/anvil_ed25519), not timestamped variants.
func GetAnvilKeyPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".ssh", "anvil_ed25519")
}

// AnvilKeyExists checks if the anvil SSH key already exists
func AnvilKeyExists() bool {
	_, err := os.Stat(GetAnvilKeyPath())
	return err == nil
}
