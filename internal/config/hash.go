package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumManifest records the authorized hash of a config file. Written by
// `wxbridge config lock`, verified by `config check` and at startup.
type ChecksumManifest struct {
	Version     int    `yaml:"version"`
	GeneratedAt string `yaml:"generated_at"`
	Hash        string `yaml:"hash"`
}

// ChecksumPath returns the manifest path for a config file.
func ChecksumPath(configPath string) string {
	return configPath + ".checksum"
}

// ComputeHash computes the BLAKE3 hash of a file.
func ComputeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// WriteChecksum authorizes the current content of configPath by writing its
// manifest alongside it.
func WriteChecksum(configPath string) (string, error) {
	hash, err := ComputeHash(configPath)
	if err != nil {
		return "", err
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hash:        hash,
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksum manifest: %w", err)
	}

	// Restrictive permissions; the manifest is the tamper baseline.
	if err := os.WriteFile(ChecksumPath(configPath), data, 0600); err != nil {
		return "", fmt.Errorf("failed to write checksum manifest: %w", err)
	}
	return hash, nil
}

// VerifyChecksum checks configPath against its manifest. A missing manifest
// is not an error; integrity checking is opt-in via `config lock`.
func VerifyChecksum(configPath string) error {
	data, err := os.ReadFile(ChecksumPath(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read checksum manifest: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse checksum manifest: %w", err)
	}
	if manifest.Version != 1 {
		return fmt.Errorf("unsupported checksum manifest version: %d", manifest.Version)
	}

	actual, err := ComputeHash(configPath)
	if err != nil {
		return err
	}
	if actual != manifest.Hash {
		return fmt.Errorf("config integrity check failed for %s\n"+
			"If you edited this file intentionally, run: wxbridge config lock", configPath)
	}
	return nil
}
