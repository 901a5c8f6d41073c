// Package transport provides HTTP request/response types for the detector.
package transport

import "github.com/pendergraft/chainscout/internal/chains"

// ClearResponse is returned after a detection cache entry is removed.
type ClearResponse struct {
	Address string `json:"address"`
	Cleared bool   `json:"cleared"`
}

// SourceQuery holds the optional query parameters of the source endpoint.
type SourceQuery struct {
	Network chains.Network
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
