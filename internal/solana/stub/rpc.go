package stub

import (
	"context"
	"errors"
	"sync"

	"solana-sniper/internal/solana"
)

// ErrNotFound is returned when an account or balance is not found.
var ErrNotFound = errors.New("not found")

// DefaultBlockhash is a valid base58 32-byte blockhash.
const DefaultBlockhash = "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"

// RPCClient implements solana.RPCClient for testing.
// Sent transactions are recorded; their signatures resolve through Statuses.
type RPCClient struct {
	mu sync.Mutex

	Accounts      map[string]*solana.AccountInfo
	TokenBalances map[string]*solana.TokenAmount
	Statuses      map[string]*solana.SignatureStatus
	Transactions  map[string]*solana.Transaction
	Blockhash     string

	// SendFunc overrides SendTransaction when set.
	SendFunc func(raw []byte) (string, error)
	// StatusFunc overrides status lookups when set.
	StatusFunc func(signature string) *solana.SignatureStatus

	Sent [][]byte
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:      make(map[string]*solana.AccountInfo),
		TokenBalances: make(map[string]*solana.TokenAmount),
		Statuses:      make(map[string]*solana.SignatureStatus),
		Transactions:  make(map[string]*solana.Transaction),
		Blockhash:     DefaultBlockhash,
	}
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetTokenAccountBalance returns the stored balance.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, account string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal, ok := c.TokenBalances[account]
	if !ok {
		return nil, ErrNotFound
	}
	return bal, nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &solana.Blockhash{Blockhash: c.Blockhash, LastValidBlockHeight: 1000}, nil
}

// SendTransaction records raw and returns its first signature.
func (c *RPCClient) SendTransaction(_ context.Context, raw []byte, _ solana.SendOptions) (string, error) {
	c.mu.Lock()
	c.Sent = append(c.Sent, raw)
	fn := c.SendFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(raw)
	}
	return FirstSignature(raw)
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if c.StatusFunc != nil {
			out[i] = c.StatusFunc(sig)
			continue
		}
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// GetTransaction returns the stored transaction or nil.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

// SetStatus stores a status for a signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// AddTransaction stores a transaction.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SentCount returns how many transactions were submitted.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// FirstSignature extracts the base58 first signature of a wire transaction.
func FirstSignature(raw []byte) (string, error) {
	n, consumed, err := solana.ReadCompactU16(raw)
	if err != nil {
		return "", err
	}
	if n == 0 || len(raw) < consumed+64 {
		return "", solana.ErrMalformedTransaction
	}
	return solana.EncodeSignature(raw[consumed : consumed+64]), nil
}
