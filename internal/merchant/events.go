package merchant

import (
	"BullShip-Merchant/internal/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// agentMerchantEventTopics maps each contract event topic to the cache key
// families the event makes stale.
func agentMerchantEventTopics() map[common.Hash][]string {
	events := contracts.AgentMerchantMeta().Events
	return map[common.Hash][]string{
		events["AgentCreated"].ID:            {"agent_info", "agents_by_creator", "agent_wallet"},
		events["StockPurchased"].ID:          {"agent_info"},
		events["SellStockRequested"].ID:      {"sell_requests"},
		events["SellRequestFulfilled"].ID:    {"sell_requests"},
		events["PricePerTokenUpdated"].ID:    {"agent_info"},
		events["UsdcTokenAddressUpdated"].ID: {"usdc_token"},
	}
}
