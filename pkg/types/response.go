// Package types holds the wire envelopes shared by every API surface.
package types

// DataEnvelope wraps every successful JSON response body.
type DataEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the client-facing shape of a request failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every failed JSON response body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
