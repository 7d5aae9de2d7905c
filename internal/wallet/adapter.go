package wallet

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Adapter holds the currently connected wallet, if any. Read paths work
// without a wallet; write paths require one. Safe for concurrent use.
type Adapter struct {
	mu     sync.RWMutex
	wallet *Wallet
}

// NewAdapter returns an adapter with no wallet connected.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Connect installs the wallet parsed from hexKey and returns its address.
// A previously connected wallet is replaced.
func (a *Adapter) Connect(hexKey string) (common.Address, error) {
	w, err := NewFromHex(hexKey)
	if err != nil {
		return common.Address{}, err
	}
	a.mu.Lock()
	a.wallet = w
	a.mu.Unlock()
	return w.Address(), nil
}

// ConnectFromEnv installs the wallet whose key lives in the named environment
// variable.
func (a *Adapter) ConnectFromEnv(envName string) (common.Address, error) {
	w, err := NewFromEnv(envName)
	if err != nil {
		return common.Address{}, err
	}
	a.mu.Lock()
	a.wallet = w
	a.mu.Unlock()
	return w.Address(), nil
}

// Disconnect drops the current wallet. Subsequent write attempts fail with
// ErrNotConnected until a new wallet connects.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	a.wallet = nil
	a.mu.Unlock()
}

// Connected reports whether a wallet is currently installed.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet != nil
}

// Address returns the connected wallet address, if any.
func (a *Adapter) Address() (common.Address, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.wallet == nil {
		return common.Address{}, false
	}
	return a.wallet.Address(), true
}

// Current returns the connected wallet, if any.
func (a *Adapter) Current() (*Wallet, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.wallet == nil {
		return nil, false
	}
	return a.wallet, true
}

// Transactor derives signing options for chainID from the connected wallet.
func (a *Adapter) Transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	a.mu.RLock()
	w := a.wallet
	a.mu.RUnlock()
	if w == nil {
		return nil, ErrNotConnected
	}
	return w.NewTransactor(chainID)
}
