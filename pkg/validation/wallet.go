package validation

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ValidateWalletAddress validates a wallet account address. Addresses are
// 40 hex characters (20 bytes), optionally 0x-prefixed.
func ValidateWalletAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("wallet address cannot be empty")
	}

	normalized := strings.TrimPrefix(addr, "0x")
	normalized = strings.TrimPrefix(normalized, "0X")

	if len(normalized) != 40 {
		return fmt.Errorf("invalid wallet address length: expected 40 characters (without 0x), got %d", len(normalized))
	}

	if _, err := hex.DecodeString(normalized); err != nil {
		return fmt.Errorf("invalid hex wallet address: %w", err)
	}

	return nil
}

// NormalizeWalletAddress converts an address to lowercase without 0x prefix
// so duplicate detection is not case- or prefix-sensitive.
func NormalizeWalletAddress(addr string) string {
	addr = strings.TrimPrefix(addr, "0x")
	addr = strings.TrimPrefix(addr, "0X")
	return strings.ToLower(addr)
}

// ValidateAndNormalizeWalletAddress validates an address and returns its
// normalized form.
func ValidateAndNormalizeWalletAddress(addr string) (string, error) {
	if err := ValidateWalletAddress(addr); err != nil {
		return "", err
	}
	return NormalizeWalletAddress(addr), nil
}
