package merchant

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"BullShip-Merchant/internal/contracts"
	"BullShip-Merchant/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultProbeLimit caps index probing for mappings that expose no length.
const DefaultProbeLimit = 256

// GasEstimation is a dry-run cost report for one write operation. Values are
// computed fresh per call and never persisted.
type GasEstimation struct {
	GasLimit           uint64   `json:"gas_limit"`
	GasPrice           *big.Int `json:"gas_price"`
	EstimatedCost      *big.Int `json:"estimated_cost"`
	EstimatedCostInEth string   `json:"estimated_cost_in_eth"`
}

// Service is the stateless pass-through layer over the AgentMerchant
// contract: one method per contract operation, no local state beyond the
// bound addresses.
type Service struct {
	backend    web3.Backend
	address    common.Address
	merchant   *contracts.AgentMerchant
	probeLimit int
}

// NewService binds the service to a deployed merchant contract. probeLimit
// caps enumeration probing; non-positive values fall back to
// DefaultProbeLimit.
func NewService(backend web3.Backend, contractAddress common.Address, probeLimit int) *Service {
	if probeLimit <= 0 {
		probeLimit = DefaultProbeLimit
	}
	return &Service{
		backend:    backend,
		address:    contractAddress,
		merchant:   contracts.NewAgentMerchant(contractAddress, backend),
		probeLimit: probeLimit,
	}
}

// ContractAddress returns the bound merchant contract address.
func (s *Service) ContractAddress() common.Address {
	return s.address
}

func callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

// AgentInfo fetches the on-chain agent record keyed by wallet address.
func (s *Service) AgentInfo(ctx context.Context, wallet common.Address) (contracts.AgentInfoResult, error) {
	info, err := s.merchant.AgentInfoMapper(callOpts(ctx), wallet)
	if err != nil {
		return contracts.AgentInfoResult{}, fmt.Errorf("读取 agent 信息失败: %w", err)
	}
	return info, nil
}

// AgentWalletAddress reverse-looks-up the agent wallet behind a stock token.
func (s *Service) AgentWalletAddress(ctx context.Context, stockToken common.Address) (common.Address, error) {
	addr, err := s.merchant.StockTokenToWalletAddressMapper(callOpts(ctx), stockToken)
	if err != nil {
		return common.Address{}, fmt.Errorf("读取 agent 钱包地址失败: %w", err)
	}
	return addr, nil
}

// SellShareRequests enumerates the queued sell requests for a stock token.
// The contract exposes a length for this array, so enumeration is bounded.
func (s *Service) SellShareRequests(ctx context.Context, stockToken common.Address) ([]contracts.SellShareRequestResult, error) {
	length, err := s.merchant.GetSellShareRequestsLength(callOpts(ctx), stockToken)
	if err != nil {
		return nil, fmt.Errorf("读取卖出请求数量失败: %w", err)
	}
	count := int(length.Int64())
	requests := make([]contracts.SellShareRequestResult, 0, count)
	for i := 0; i < count; i++ {
		request, err := s.merchant.SellShareRequests(callOpts(ctx), stockToken, big.NewInt(int64(i)))
		if err != nil {
			return nil, fmt.Errorf("读取第 %d 条卖出请求失败: %w", i, err)
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// AgentsByCreator enumerates the agent wallets created by creator. The
// underlying mapping exposes no length, so the service probes increasing
// indexes until the call reverts or returns the zero address, capped by the
// configured probe limit.
func (s *Service) AgentsByCreator(ctx context.Context, creator common.Address) ([]common.Address, error) {
	var agents []common.Address
	for i := 0; i < s.probeLimit; i++ {
		addr, err := s.merchant.CreatorAddressToAgentWalletAddressesMapper(callOpts(ctx), creator, big.NewInt(int64(i)))
		if err != nil {
			// A revert at the first unset index is the end-of-list sentinel.
			break
		}
		if addr == (common.Address{}) {
			break
		}
		agents = append(agents, addr)
	}
	return agents, nil
}

// Owner returns the merchant contract owner.
func (s *Service) Owner(ctx context.Context) (common.Address, error) {
	owner, err := s.merchant.Owner(callOpts(ctx))
	if err != nil {
		return common.Address{}, fmt.Errorf("读取合约 owner 失败: %w", err)
	}
	return owner, nil
}

// UsdcTokenAddress returns the payment token currently accepted by the
// merchant contract.
func (s *Service) UsdcTokenAddress(ctx context.Context) (common.Address, error) {
	token, err := s.merchant.UsdcToken(callOpts(ctx))
	if err != nil {
		return common.Address{}, fmt.Errorf("读取 USDC 合约地址失败: %w", err)
	}
	return token, nil
}

// UsdcAllowance reads the amount owner has authorized the merchant contract
// to spend.
func (s *Service) UsdcAllowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	token, err := s.UsdcTokenAddress(ctx)
	if err != nil {
		return nil, err
	}
	allowance, err := contracts.NewIERC20(token, s.backend).Allowance(callOpts(ctx), owner, s.address)
	if err != nil {
		return nil, fmt.Errorf("读取 USDC 授权额度失败: %w", err)
	}
	return allowance, nil
}

// UsdcBalance reads account's payment token balance.
func (s *Service) UsdcBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	token, err := s.UsdcTokenAddress(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := contracts.NewIERC20(token, s.backend).BalanceOf(callOpts(ctx), account)
	if err != nil {
		return nil, fmt.Errorf("读取 USDC 余额失败: %w", err)
	}
	return balance, nil
}

// CreateAgent submits the agent registration transaction.
func (s *Service) CreateAgent(opts *bind.TransactOpts, wallet common.Address, name, symbol string) (*types.Transaction, error) {
	return s.merchant.CreateAgent(opts, wallet, name, symbol)
}

// PurchaseStock submits a token-quantity denominated purchase.
func (s *Service) PurchaseStock(opts *bind.TransactOpts, stockToken common.Address, tokenAmount *big.Int) (*types.Transaction, error) {
	return s.merchant.PurchaseStock(opts, stockToken, tokenAmount)
}

// PurchaseStockByUsdc submits a payment-currency denominated purchase.
func (s *Service) PurchaseStockByUsdc(opts *bind.TransactOpts, stockToken common.Address, usdcAmount *big.Int) (*types.Transaction, error) {
	return s.merchant.PurchaseStockByUsdc(opts, stockToken, usdcAmount)
}

// CommitSellStock queues a sell request.
func (s *Service) CommitSellStock(opts *bind.TransactOpts, stockToken common.Address, tokenAmount *big.Int) (*types.Transaction, error) {
	return s.merchant.CommitSellStock(opts, stockToken, tokenAmount)
}

// FulfillSellStock settles queued sell requests. The contract enforces that
// only the agent authority may call it.
func (s *Service) FulfillSellStock(opts *bind.TransactOpts) (*types.Transaction, error) {
	return s.merchant.FullfillSellStock(opts)
}

// UpdateUsdcTokenAddress changes the accepted payment token. Owner only.
func (s *Service) UpdateUsdcTokenAddress(opts *bind.TransactOpts, newToken common.Address) (*types.Transaction, error) {
	return s.merchant.UpdateUsdcTokenAddress(opts, newToken)
}

// ApproveUsdc authorizes the merchant contract to spend amount of the
// caller's payment token.
func (s *Service) ApproveUsdc(ctx context.Context, opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error) {
	token, err := s.UsdcTokenAddress(ctx)
	if err != nil {
		return nil, err
	}
	return contracts.NewIERC20(token, s.backend).Approve(opts, s.address, amount)
}

// EstimateGas dry-runs a merchant contract method and reports its projected
// cost at the current suggested gas price.
func (s *Service) EstimateGas(ctx context.Context, from common.Address, method string, args ...interface{}) (GasEstimation, error) {
	data, err := contracts.AgentMerchantMeta().Pack(method, args...)
	if err != nil {
		return GasEstimation{}, fmt.Errorf("编码 %s 调用数据失败: %w", method, err)
	}
	to := s.address
	gasLimit, err := s.backend.EstimateGas(ctx, gethcore.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return GasEstimation{}, fmt.Errorf("估算 %s gas 失败: %w", method, err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return GasEstimation{}, fmt.Errorf("获取建议 gas 价格失败: %w", err)
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	return GasEstimation{
		GasLimit:           gasLimit,
		GasPrice:           gasPrice,
		EstimatedCost:      cost,
		EstimatedCostInEth: WeiToEthString(cost),
	}, nil
}

// WaitConfirmed blocks until the transaction is mined and verifies it did not
// revert.
func (s *Service) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, errors.New("交易不能为空")
	}
	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("等待交易确认失败: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("交易 %s 执行失败", tx.Hash().Hex())
	}
	return receipt, nil
}
