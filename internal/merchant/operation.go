package merchant

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// OperationName identifies one of the contract write operations tracked by a
// state machine.
type OperationName string

const (
	OpCreateAgent            OperationName = "create_agent"
	OpPurchaseStock          OperationName = "purchase_stock"
	OpPurchaseStockByUsdc    OperationName = "purchase_stock_by_usdc"
	OpCommitSellStock        OperationName = "commit_sell_stock"
	OpFulfillSellStock       OperationName = "fulfill_sell_stock"
	OpUpdateUsdcTokenAddress OperationName = "update_usdc_token_address"
)

// OperationNames lists every tracked operation in a stable order.
func OperationNames() []OperationName {
	return []OperationName{
		OpCreateAgent,
		OpPurchaseStock,
		OpPurchaseStockByUsdc,
		OpCommitSellStock,
		OpFulfillSellStock,
		OpUpdateUsdcTokenAddress,
	}
}

// OperationState is the observable outcome of an operation's most recent
// invocation. At most one of IsLoading, IsSuccess and IsError is true; TxHash
// is non-zero only alongside IsSuccess.
type OperationState struct {
	IsLoading bool        `json:"is_loading"`
	IsSuccess bool        `json:"is_success"`
	IsError   bool        `json:"is_error"`
	Err       error       `json:"-"`
	Error     string      `json:"error,omitempty"`
	TxHash    common.Hash `json:"tx_hash,omitempty"`
}

// Idle reports whether the state is the all-false initial state.
func (s OperationState) Idle() bool {
	return !s.IsLoading && !s.IsSuccess && !s.IsError
}

// operation wraps one contract write with a state machine and serialized
// execution. runMu queues concurrent invocations so at most one transaction
// per operation kind is in flight, which keeps nonce ordering sane.
type operation struct {
	name  OperationName
	runMu sync.Mutex

	mu    sync.Mutex
	state OperationState
}

func newOperation(name OperationName) *operation {
	return &operation{name: name}
}

// Snapshot returns a copy of the current state.
func (o *operation) Snapshot() OperationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset returns the state machine to idle regardless of prior state. A run
// already in flight still settles, overwriting the reset.
func (o *operation) Reset() {
	o.mu.Lock()
	o.state = OperationState{}
	o.mu.Unlock()
}

// Run executes fn under the operation's serialization lock, driving the state
// machine idle→pending→success|error. The error is both recorded in state and
// returned so callers can surface it directly.
func (o *operation) Run(ctx context.Context, fn func(ctx context.Context) (common.Hash, error)) (common.Hash, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	o.mu.Lock()
	o.state = OperationState{IsLoading: true}
	o.mu.Unlock()

	hash, err := fn(ctx)

	o.mu.Lock()
	if err != nil {
		o.state = OperationState{IsError: true, Err: err, Error: err.Error()}
	} else {
		o.state = OperationState{IsSuccess: true, TxHash: hash}
	}
	o.mu.Unlock()
	return hash, err
}
