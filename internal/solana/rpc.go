// Package solana holds the JSON-RPC transport and address helpers used for settlement.
package solana

import "context"

// RPCClient defines the Solana JSON-RPC HTTP interface.
type RPCClient interface {
	// Call invokes method with params and decodes the result into result.
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error

	// GetHealth returns nil if the node reports healthy.
	GetHealth(ctx context.Context) error
}
