// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HitResponse is the JSON beacon acknowledgement.
type HitResponse struct {
	Success   bool  `json:"success"`
	Timestamp int64 `json:"timestamp"` // Unix milliseconds
}

// InfoResponse is returned by the root endpoint.
type InfoResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}
