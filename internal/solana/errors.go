package solana

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrTransport wraps failures to reach the RPC node after client-side retries.
var ErrTransport = errors.New("rpc transport failure")

// JSON-RPC error codes returned by Solana nodes.
const (
	CodeBlockCleanedUp           = -32001
	CodeSendTxPreflightFailure   = -32002
	CodeTxSignatureVerification  = -32003
	CodeBlockNotAvailable        = -32004
	CodeNodeUnhealthy            = -32005
	CodeTxPrecompileVerification = -32006
	CodeSlotSkipped              = -32007
	CodeLimitExceeded            = -32011 // some providers use this for rate limits
	codeInternalError            = -32603
)

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Transient reports whether retrying the same request may succeed.
func (e *RPCError) Transient() bool {
	switch e.Code {
	case CodeNodeUnhealthy, CodeBlockNotAvailable, CodeSlotSkipped, CodeLimitExceeded, codeInternalError:
		return true
	}
	return IsBlockhashNotFound(e) || strings.Contains(string(e.Data), "BlockhashNotFound")
}

// IsBlockhashNotFound reports whether err is an expired or unknown blockhash.
// The transaction must be rebuilt with a fresh blockhash.
func IsBlockhashNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blockhash not found") || strings.Contains(msg, "blockhashnotfound")
}

// IsTransient classifies errors that are worth retrying: transport failures,
// rate limits, unhealthy nodes and blockhash expiry. Context cancellation is not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return IsBlockhashNotFound(err)
}
