// Package validation provides input validation for chainscout.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"
)

// ErrInvalidAddress is returned for malformed contract addresses.
var ErrInvalidAddress = errors.New("invalid address")

// ValidateAddress validates an EVM contract address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return fmt.Errorf("%w: must be 42 characters (0x + 40 hex)", ErrInvalidAddress)
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%w: must start with 0x", ErrInvalidAddress)
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: contains non-hex characters", ErrInvalidAddress)
	}
	return nil
}

// NormalizeAddress returns the lowercase form used for cache keys and comparisons.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// CompilerSemver extracts the canonical semver from a solc version string such as
// "v0.8.20+commit.a1b2c3d4". It returns "" when the version is not semver (e.g. vyper).
func CompilerSemver(version string) string {
	v := strings.TrimSpace(version)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

// ValidateAPIURL checks that an explorer URL is absolute http(s)
func ValidateAPIURL(raw string) error {
	if raw == "" {
		return errors.New("URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}
