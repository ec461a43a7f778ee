// Package driver defines the Actor Driver boundary: the pluggable adapter
// that performs one call against a third-party API using a supplied
// credential and returns a classified result.
package driver

import (
	"context"

	"github.com/pithecus-labs/creditrunner/types"
)

// Classification is the outcome kind the Job Runner branches on.
type Classification string

const (
	Success        Classification = "success"
	Transient      Classification = "transient"
	AuthInvalid    Classification = "authInvalid"
	Billing        Classification = "billing"
	QuotaExhausted Classification = "quotaExhausted"
	ClientError    Classification = "clientError"
	Fatal          Classification = "fatal"
	Cancelled      Classification = "cancelled"
)

// Result is the outcome of one Actor Driver call.
type Result struct {
	OK             bool
	HTTPStatus     int
	Body           []byte
	Parsed         any
	CostActual     int
	Classification Classification
}

// Driver is the interface the Job Runner depends on. Implementations own
// their own bounded retry on Transient per their configured retryMax;
// every other classification returns to the Job Runner for policy.
// estimatedCost is used as the reported cost when the third party gives no
// usage figure of its own.
type Driver interface {
	Call(ctx context.Context, credential *types.Credential, request map[string]string, estimatedCost int) (Result, error)
}
