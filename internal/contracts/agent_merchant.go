package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AgentMerchantABIJSON is the ABI of the deployed AgentMerchant contract. The
// contract is a fixed external protocol: note the fullfillSellStock spelling,
// which must be preserved on the wire.
const AgentMerchantABIJSON = `[
  {"type":"function","name":"createAgent","stateMutability":"nonpayable","inputs":[{"name":"walletAddress","type":"address"},{"name":"name","type":"string"},{"name":"symbol","type":"string"}],"outputs":[]},
  {"type":"function","name":"purchaseStock","stateMutability":"nonpayable","inputs":[{"name":"stockTokenAddress","type":"address"},{"name":"tokenAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"purchaseStockByUsdc","stateMutability":"nonpayable","inputs":[{"name":"stockTokenAddress","type":"address"},{"name":"usdcAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"commitSellStock","stateMutability":"nonpayable","inputs":[{"name":"stockTokenAddress","type":"address"},{"name":"tokenAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"fullfillSellStock","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"updateUsdcTokenAddress","stateMutability":"nonpayable","inputs":[{"name":"newUsdcTokenAddress","type":"address"}],"outputs":[]},
  {"type":"function","name":"agentInfoMapper","stateMutability":"view","inputs":[{"name":"walletAddress","type":"address"}],"outputs":[{"name":"walletAddress","type":"address"},{"name":"stockTokenAddress","type":"address"},{"name":"pricePerToken","type":"uint256"},{"name":"creatorAddress","type":"address"}]},
  {"type":"function","name":"stockTokenToWalletAddressMapper","stateMutability":"view","inputs":[{"name":"stockTokenAddress","type":"address"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getSellShareRequestsLength","stateMutability":"view","inputs":[{"name":"stockTokenAddress","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"sellShareRequests","stateMutability":"view","inputs":[{"name":"stockTokenAddress","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"userWalletAddress","type":"address"},{"name":"tokenAmount","type":"uint256"}]},
  {"type":"function","name":"creatorAddressToAgentWalletAddressesMapper","stateMutability":"view","inputs":[{"name":"creatorAddress","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"usdcToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"AgentCreated","inputs":[{"name":"walletAddress","type":"address","indexed":true},{"name":"stockTokenAddress","type":"address","indexed":false},{"name":"creatorAddress","type":"address","indexed":true},{"name":"name","type":"string","indexed":false},{"name":"symbol","type":"string","indexed":false}],"anonymous":false},
  {"type":"event","name":"StockPurchased","inputs":[{"name":"buyer","type":"address","indexed":true},{"name":"stockTokenAddress","type":"address","indexed":true},{"name":"tokenAmount","type":"uint256","indexed":false},{"name":"usdcAmount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"SellStockRequested","inputs":[{"name":"seller","type":"address","indexed":true},{"name":"stockTokenAddress","type":"address","indexed":true},{"name":"tokenAmount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"SellRequestFulfilled","inputs":[{"name":"stockTokenAddress","type":"address","indexed":true},{"name":"requestCount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"PricePerTokenUpdated","inputs":[{"name":"stockTokenAddress","type":"address","indexed":true},{"name":"pricePerToken","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"UsdcTokenAddressUpdated","inputs":[{"name":"newUsdcTokenAddress","type":"address","indexed":false}],"anonymous":false}
]`

var agentMerchantABI = mustParseABI(AgentMerchantABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// AgentMerchantMeta returns the parsed contract ABI, used for calldata packing
// and event topic resolution outside the binding itself.
func AgentMerchantMeta() abi.ABI {
	return agentMerchantABI
}

// AgentMerchant is a hand-maintained binding to the deployed contract.
type AgentMerchant struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewAgentMerchant binds the wrapper to an already deployed contract.
func NewAgentMerchant(address common.Address, backend bind.ContractBackend) *AgentMerchant {
	return &AgentMerchant{
		address:  address,
		contract: bind.NewBoundContract(address, agentMerchantABI, backend, backend, backend),
	}
}

// Address returns the bound contract address.
func (m *AgentMerchant) Address() common.Address {
	return m.address
}

// CreateAgent registers a new agent and its stock token under walletAddress.
func (m *AgentMerchant) CreateAgent(opts *bind.TransactOpts, walletAddress common.Address, name, symbol string) (*types.Transaction, error) {
	return m.contract.Transact(opts, "createAgent", walletAddress, name, symbol)
}

// PurchaseStock buys tokenAmount stock tokens.
func (m *AgentMerchant) PurchaseStock(opts *bind.TransactOpts, stockTokenAddress common.Address, tokenAmount *big.Int) (*types.Transaction, error) {
	return m.contract.Transact(opts, "purchaseStock", stockTokenAddress, tokenAmount)
}

// PurchaseStockByUsdc buys stock tokens by specifying the USDC amount.
func (m *AgentMerchant) PurchaseStockByUsdc(opts *bind.TransactOpts, stockTokenAddress common.Address, usdcAmount *big.Int) (*types.Transaction, error) {
	return m.contract.Transact(opts, "purchaseStockByUsdc", stockTokenAddress, usdcAmount)
}

// CommitSellStock queues a sell request for tokenAmount stock tokens.
func (m *AgentMerchant) CommitSellStock(opts *bind.TransactOpts, stockTokenAddress common.Address, tokenAmount *big.Int) (*types.Transaction, error) {
	return m.contract.Transact(opts, "commitSellStock", stockTokenAddress, tokenAmount)
}

// FullfillSellStock settles queued sell requests. Callable by the agent
// authority only; the misspelling matches the deployed contract.
func (m *AgentMerchant) FullfillSellStock(opts *bind.TransactOpts) (*types.Transaction, error) {
	return m.contract.Transact(opts, "fullfillSellStock")
}

// UpdateUsdcTokenAddress changes the accepted payment token. Owner only.
func (m *AgentMerchant) UpdateUsdcTokenAddress(opts *bind.TransactOpts, newUsdcTokenAddress common.Address) (*types.Transaction, error) {
	return m.contract.Transact(opts, "updateUsdcTokenAddress", newUsdcTokenAddress)
}

// AgentInfoResult mirrors the agentInfoMapper tuple.
type AgentInfoResult struct {
	WalletAddress     common.Address
	StockTokenAddress common.Address
	PricePerToken     *big.Int
	CreatorAddress    common.Address
}

// AgentInfoMapper fetches the on-chain agent record keyed by wallet address.
func (m *AgentMerchant) AgentInfoMapper(opts *bind.CallOpts, walletAddress common.Address) (AgentInfoResult, error) {
	var out []interface{}
	if err := m.contract.Call(opts, &out, "agentInfoMapper", walletAddress); err != nil {
		return AgentInfoResult{}, err
	}
	return AgentInfoResult{
		WalletAddress:     *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		StockTokenAddress: *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		PricePerToken:     abi.ConvertType(out[2], new(big.Int)).(*big.Int),
		CreatorAddress:    *abi.ConvertType(out[3], new(common.Address)).(*common.Address),
	}, nil
}

// StockTokenToWalletAddressMapper reverse-looks-up the agent wallet for a
// stock token.
func (m *AgentMerchant) StockTokenToWalletAddressMapper(opts *bind.CallOpts, stockTokenAddress common.Address) (common.Address, error) {
	var out []interface{}
	if err := m.contract.Call(opts, &out, "stockTokenToWalletAddressMapper", stockTokenAddress); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// GetSellShareRequestsLength returns the number of queued sell requests.
func (m *AgentMerchant) GetSellShareRequestsLength(opts *bind.CallOpts, stockTokenAddress common.Address) (*big.Int, error) {
	var out []interface{}
	if err := m.contract.Call(opts, &out, "getSellShareRequestsLength", stockTokenAddress); err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// SellShareRequestResult mirrors one entry of the sellShareRequests array.
type SellShareRequestResult struct {
	UserWalletAddress common.Address
	TokenAmount       *big.Int
}

// SellShareRequests returns the queued sell request at index.
func (m *AgentMerchant) SellShareRequests(opts *bind.CallOpts, stockTokenAddress common.Address, index *big.Int) (SellShareRequestResult, error) {
	var out []interface{}
	if err := m.contract.Call(opts, &out, "sellShareRequests", stockTokenAddress, index); err != nil {
		return SellShareRequestResult{}, err
	}
	return SellShareRequestResult{
		UserWalletAddress: *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		TokenAmount:       abi.ConvertType(out[1], new(big.Int)).(*big.Int),
	}, nil
}

// CreatorAddressToAgentWalletAddressesMapper returns the creator's agent
// wallet at index. The contract exposes no length for this mapping; callers
// probe increasing indexes until a revert or the zero address.
func (m *AgentMerchant) CreatorAddressToAgentWalletAddressesMapper(opts *bind.CallOpts, creatorAddress common.Address, index *big.Int) (common.Address, error) {
	var out []interface{}
	if err := m.contract.Call(opts, &out, "creatorAddressToAgentWalletAddressesMapper", creatorAddress, index); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// UsdcToken returns the accepted payment token address.
func (m *AgentMerchant) UsdcToken(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	if err := m.contract.Call(opts, &out, "usdcToken"); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// Owner returns the contract owner.
func (m *AgentMerchant) Owner(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	if err := m.contract.Call(opts, &out, "owner"); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// Event structures emitted by the contract.

// AgentMerchantAgentCreated is emitted once per createAgent.
type AgentMerchantAgentCreated struct {
	WalletAddress     common.Address
	StockTokenAddress common.Address
	CreatorAddress    common.Address
	Name              string
	Symbol            string
	Raw               types.Log
}

// AgentMerchantStockPurchased is emitted once per purchase, whichever
// denomination was used.
type AgentMerchantStockPurchased struct {
	Buyer             common.Address
	StockTokenAddress common.Address
	TokenAmount       *big.Int
	UsdcAmount        *big.Int
	Raw               types.Log
}

// AgentMerchantSellStockRequested is emitted when a sell request is queued.
type AgentMerchantSellStockRequested struct {
	Seller            common.Address
	StockTokenAddress common.Address
	TokenAmount       *big.Int
	Raw               types.Log
}

// AgentMerchantSellRequestFulfilled is emitted when queued requests settle.
type AgentMerchantSellRequestFulfilled struct {
	StockTokenAddress common.Address
	RequestCount      *big.Int
	Raw               types.Log
}

// AgentMerchantPricePerTokenUpdated is emitted on contract-internal repricing.
type AgentMerchantPricePerTokenUpdated struct {
	StockTokenAddress common.Address
	PricePerToken     *big.Int
	Raw               types.Log
}

// AgentMerchantUsdcTokenAddressUpdated is emitted when the payment token
// changes.
type AgentMerchantUsdcTokenAddressUpdated struct {
	NewUsdcTokenAddress common.Address
	Raw                 types.Log
}

// ParseAgentCreated unpacks an AgentCreated log.
func (m *AgentMerchant) ParseAgentCreated(log types.Log) (*AgentMerchantAgentCreated, error) {
	event := new(AgentMerchantAgentCreated)
	if err := m.contract.UnpackLog(event, "AgentCreated", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParseStockPurchased unpacks a StockPurchased log.
func (m *AgentMerchant) ParseStockPurchased(log types.Log) (*AgentMerchantStockPurchased, error) {
	event := new(AgentMerchantStockPurchased)
	if err := m.contract.UnpackLog(event, "StockPurchased", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParseSellStockRequested unpacks a SellStockRequested log.
func (m *AgentMerchant) ParseSellStockRequested(log types.Log) (*AgentMerchantSellStockRequested, error) {
	event := new(AgentMerchantSellStockRequested)
	if err := m.contract.UnpackLog(event, "SellStockRequested", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParseSellRequestFulfilled unpacks a SellRequestFulfilled log.
func (m *AgentMerchant) ParseSellRequestFulfilled(log types.Log) (*AgentMerchantSellRequestFulfilled, error) {
	event := new(AgentMerchantSellRequestFulfilled)
	if err := m.contract.UnpackLog(event, "SellRequestFulfilled", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParsePricePerTokenUpdated unpacks a PricePerTokenUpdated log.
func (m *AgentMerchant) ParsePricePerTokenUpdated(log types.Log) (*AgentMerchantPricePerTokenUpdated, error) {
	event := new(AgentMerchantPricePerTokenUpdated)
	if err := m.contract.UnpackLog(event, "PricePerTokenUpdated", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParseUsdcTokenAddressUpdated unpacks a UsdcTokenAddressUpdated log.
func (m *AgentMerchant) ParseUsdcTokenAddressUpdated(log types.Log) (*AgentMerchantUsdcTokenAddressUpdated, error) {
	event := new(AgentMerchantUsdcTokenAddressUpdated)
	if err := m.contract.UnpackLog(event, "UsdcTokenAddressUpdated", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}
