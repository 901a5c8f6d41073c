package validation

import (
	"errors"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid lowercase", "0x1234567890abcdef1234567890abcdef12345678", false},
		{"valid checksum", "0xdAC17F958D2ee523a2206206994597C13D831ec7", false},
		{"missing prefix", "1234567890abcdef1234567890abcdef1234567890", true},
		{"too short", "0x1234", true},
		{"non hex", "0xZZ34567890abcdef1234567890abcdef12345678", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("ValidateAddress(%q) error should wrap ErrInvalidAddress", tt.input)
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	if NormalizeAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7") != "0xdac17f958d2ee523a2206206994597c13d831ec7" {
		t.Errorf("NormalizeAddress() should lowercase")
	}
}

func TestCompilerSemver(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v0.8.20+commit.a1b2c3d4", "v0.8.20"},
		{"0.4.26+commit.4563c3fc", "v0.4.26"},
		{"v0.5.17", "v0.5.17"},
		{"vyper:0.3.7", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CompilerSemver(tt.input); got != tt.want {
				t.Errorf("CompilerSemver(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateAPIURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://api.etherscan.io/api", false},
		{"http with port", "http://127.0.0.1:8545/api", false},
		{"no scheme", "api.etherscan.io/api", true},
		{"ftp", "ftp://example.com", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
