package merchant

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AgentInfo is the on-chain agent record: one per created agent, immutable
// after creation except PricePerToken, which the contract updates internally.
type AgentInfo struct {
	WalletAddress     common.Address `json:"wallet_address"`
	StockTokenAddress common.Address `json:"stock_token_address"`
	PricePerToken     *big.Int       `json:"price_per_token"`
	CreatorAddress    common.Address `json:"creator_address"`
}

// Empty reports whether the record is unset, which the contract signals with
// a zero wallet address.
func (a AgentInfo) Empty() bool {
	return a.WalletAddress == (common.Address{})
}

// SellShareRequest is one queued sell intent: appended by commitSellStock and
// consumed contract-side by fullfillSellStock.
type SellShareRequest struct {
	UserWalletAddress common.Address `json:"user_wallet_address"`
	TokenAmount       *big.Int       `json:"token_amount"`
}
