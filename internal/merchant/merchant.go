package merchant

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	xerrors "BullShip-Merchant/internal/errors"
	"BullShip-Merchant/internal/wallet"
	"BullShip-Merchant/internal/web3"
	"BullShip-Merchant/pkg/logger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// ApprovalPolicy controls how much allowance the approve step grants when the
// current allowance is insufficient for a stablecoin purchase.
type ApprovalPolicy string

const (
	// ApprovalUnbounded approves MaxUint256 once, trading re-approval
	// friction against standing spend authorization.
	ApprovalUnbounded ApprovalPolicy = "unbounded"
	// ApprovalExact approves exactly the requested amount per purchase.
	ApprovalExact ApprovalPolicy = "exact"
)

// Options configures the merchant orchestrator.
type Options struct {
	Chain          string
	ApprovalPolicy ApprovalPolicy
	ConfirmTimeout time.Duration
	ReadCacheTTL   time.Duration
	ProbeLimit     int
	UsdcDecimals   int
	Journal        Journal
	Logger         *slog.Logger
}

/// Merchant orchestrates contract interaction: it gates writes on a connected
// wallet, drives one state machine per write operation, runs the
// approve-then-purchase flow, and serves reads through a cache with safe
// defaults on failure.
type Merchant struct {
	chain          string
	client         web3.Client
	svc            *Service
	adapter        *wallet.Adapter
	policy         ApprovalPolicy
	confirmTimeout time.Duration
	usdcDecimals   int
	cache          *readCache
	journal        Journal
	log            *slog.Logger
	ops            map[OperationName]*operation
}

// New wires the orchestrator over a chain client and a deployed contract.
func New(client web3.Client, contractAddress common.Address, adapter *wallet.Adapter, opts Options) *Merchant {
	if opts.ApprovalPolicy == "" {
		opts.ApprovalPolicy = ApprovalUnbounded
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.UsdcDecimals <= 0 {
		opts.UsdcDecimals = UsdcDecimals
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("merchant")
	}
	ops := make(map[OperationName]*operation, len(OperationNames()))
	for _, name := range OperationNames() {
		ops[name] = newOperation(name)
	}
	return &Merchant{
		chain:          opts.Chain,
		client:         client,
		svc:            NewService(client.Backend(), contractAddress, opts.ProbeLimit),
		adapter:        adapter,
		policy:         opts.ApprovalPolicy,
		confirmTimeout: opts.ConfirmTimeout,
		usdcDecimals:   opts.UsdcDecimals,
		cache:          newReadCache(opts.ReadCacheTTL),
		journal:        opts.Journal,
		log:            opts.Logger,
		ops:            ops,
	}
}

// Service exposes the stateless contract layer, mainly for settlement and
// diagnostics paths that manage their own state.
func (m *Merchant) Service() *Service {
	return m.svc
}

// State returns the current state of the named operation.
func (m *Merchant) State(name OperationName) (OperationState, bool) {
	op, ok := m.ops[name]
	if !ok {
		return OperationState{}, false
	}
	return op.Snapshot(), true
}

// States snapshots every operation state at once.
func (m *Merchant) States() map[OperationName]OperationState {
	states := make(map[OperationName]OperationState, len(m.ops))
	for name, op := range m.ops {
		states[name] = op.Snapshot()
	}
	return states
}

// Reset returns the named operation to idle.
func (m *Merchant) Reset(name OperationName) {
	if op, ok := m.ops[name]; ok {
		op.Reset()
	}
}

// submit runs one write operation end to end: transactor derivation,
// submission, confirmation, journaling and cache invalidation. When no wallet
// is connected the call is a silent no-op and the state machine stays idle.
func (m *Merchant) submit(ctx context.Context, name OperationName, invalidate []string, send func(opts *bind.TransactOpts) (*types.Transaction, error)) (common.Hash, error) {
	if !m.adapter.Connected() {
		m.log.Warn("忽略写操作：钱包未连接", "operation", string(name))
		return common.Hash{}, nil
	}
	op := m.ops[name]
	return op.Run(ctx, func(ctx context.Context) (common.Hash, error) {
		opts, err := m.transactor(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		tx, err := send(opts)
		if err != nil {
			m.journalWrite(ctx, name, "", JournalFailed, err.Error())
			return common.Hash{}, xerrors.Wrap(xerrors.CodeContractRevert, err, "提交交易失败")
		}
		m.journalWrite(ctx, name, tx.Hash().Hex(), JournalSubmitted, "")
		logger.Audit().Info("transaction submitted",
			"chain", m.chain, "operation", string(name), "tx_hash", tx.Hash().Hex())
		if err := m.confirm(ctx, tx); err != nil {
			m.journalWrite(ctx, name, tx.Hash().Hex(), JournalFailed, err.Error())
			return common.Hash{}, err
		}
		m.journalWrite(ctx, name, tx.Hash().Hex(), JournalConfirmed, "")
		logger.Audit().Info("transaction confirmed",
			"chain", m.chain, "operation", string(name), "tx_hash", tx.Hash().Hex())
		for _, prefix := range invalidate {
			m.cache.invalidatePrefix(prefix)
		}
		return tx.Hash(), nil
	})
}

func (m *Merchant) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	chainID, err := m.client.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeRPCFailure, err, "获取链 ID 失败")
	}
	opts, err := m.adapter.Transactor(chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletMissing, err, "钱包不可用")
	}
	opts.Context = ctx
	return opts, nil
}

func (m *Merchant) confirm(ctx context.Context, tx *types.Transaction) error {
	waitCtx, cancel := context.WithTimeout(ctx, m.confirmTimeout)
	defer cancel()
	if _, err := m.svc.WaitConfirmed(waitCtx, tx); err != nil {
		return xerrors.Wrap(xerrors.CodeTxConfirmation, err, "交易确认失败")
	}
	return nil
}

func (m *Merchant) journalWrite(ctx context.Context, name OperationName, txHash, status, detail string) {
	if m.journal == nil {
		return
	}
	walletAddr := ""
	if addr, ok := m.adapter.Address(); ok {
		walletAddr = addr.Hex()
	}
	entry := JournalEntry{
		ID:        uuid.NewString(),
		Chain:     m.chain,
		Operation: string(name),
		Wallet:    walletAddr,
		TxHash:    txHash,
		Status:    status,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.journal.Record(ctx, entry); err != nil {
		m.log.Warn("写入操作日志失败", "operation", string(name), "error", err)
	}
}

// CreateAgent registers a new agent and its stock token.
func (m *Merchant) CreateAgent(ctx context.Context, walletAddress common.Address, name, symbol string) (common.Hash, error) {
	return m.submit(ctx, OpCreateAgent,
		[]string{"agent_info", "agents_by_creator", "agent_wallet"},
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return m.svc.CreateAgent(opts, walletAddress, name, symbol)
		})
}

// PurchaseStock buys stock tokens by token quantity.
func (m *Merchant) PurchaseStock(ctx context.Context, stockToken common.Address, tokenAmount *big.Int) (common.Hash, error) {
	return m.submit(ctx, OpPurchaseStock,
		[]string{"agent_info"},
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return m.svc.PurchaseStock(opts, stockToken, tokenAmount)
		})
}

// PurchaseStockByUsdc buys stock tokens by payment-currency amount, running
// the allowance check and, when needed, one approval transaction confirmed
// strictly before the purchase is submitted.
func (m *Merchant) PurchaseStockByUsdc(ctx context.Context, stockToken common.Address, usdcAmount *big.Int) (common.Hash, error) {
	if !m.adapter.Connected() {
		m.log.Warn("忽略写操作：钱包未连接", "operation", string(OpPurchaseStockByUsdc))
		return common.Hash{}, nil
	}
	op := m.ops[OpPurchaseStockByUsdc]
	return op.Run(ctx, func(ctx context.Context) (common.Hash, error) {
		owner, ok := m.adapter.Address()
		if !ok {
			return common.Hash{}, xerrors.New(xerrors.CodeWalletMissing, "钱包未连接")
		}
		if err := m.ensureAllowance(ctx, owner, usdcAmount); err != nil {
			return common.Hash{}, err
		}
		opts, err := m.transactor(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		tx, err := m.svc.PurchaseStockByUsdc(opts, stockToken, usdcAmount)
		if err != nil {
			m.journalWrite(ctx, OpPurchaseStockByUsdc, "", JournalFailed, err.Error())
			return common.Hash{}, xerrors.Wrap(xerrors.CodeContractRevert, err, "提交购买交易失败")
		}
		m.journalWrite(ctx, OpPurchaseStockByUsdc, tx.Hash().Hex(), JournalSubmitted, "")
		logger.Audit().Info("transaction submitted",
			"chain", m.chain, "operation", string(OpPurchaseStockByUsdc), "tx_hash", tx.Hash().Hex())
		if err := m.confirm(ctx, tx); err != nil {
			m.journalWrite(ctx, OpPurchaseStockByUsdc, tx.Hash().Hex(), JournalFailed, err.Error())
			return common.Hash{}, err
		}
		m.journalWrite(ctx, OpPurchaseStockByUsdc, tx.Hash().Hex(), JournalConfirmed, "")
		logger.Audit().Info("transaction confirmed",
			"chain", m.chain, "operation", string(OpPurchaseStockByUsdc), "tx_hash", tx.Hash().Hex())
		m.cache.invalidatePrefix("agent_info")
		return tx.Hash(), nil
	})
}

// ensureAllowance tops up the merchant contract's spend authorization when
// the current allowance does not cover amount. The approval transaction is
// fully confirmed before returning, so a following purchase observes the new
// allowance.
func (m *Merchant) ensureAllowance(ctx context.Context, owner common.Address, amount *big.Int) error {
	allowance, err := m.svc.UsdcAllowance(ctx, owner)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeAllowanceFailure, err, "读取授权额度失败")
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	approveAmount := amount
	if m.policy == ApprovalUnbounded {
		approveAmount = abi.MaxUint256
	}
	opts, err := m.transactor(ctx)
	if err != nil {
		return err
	}
	tx, err := m.svc.ApproveUsdc(ctx, opts, approveAmount)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeAllowanceFailure, err, "提交授权交易失败")
	}
	m.log.Info("提交 USDC 授权交易",
		"tx_hash", tx.Hash().Hex(), "policy", string(m.policy))
	if err := m.confirm(ctx, tx); err != nil {
		return xerrors.Wrap(xerrors.CodeAllowanceFailure, err, "授权交易确认失败")
	}
	return nil
}

// CommitSellStock queues a sell request.
func (m *Merchant) CommitSellStock(ctx context.Context, stockToken common.Address, tokenAmount *big.Int) (common.Hash, error) {
	return m.submit(ctx, OpCommitSellStock,
		[]string{"sell_requests"},
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return m.svc.CommitSellStock(opts, stockToken, tokenAmount)
		})
}

// FulfillSellStock settles queued sell requests as the agent authority.
func (m *Merchant) FulfillSellStock(ctx context.Context) (common.Hash, error) {
	return m.submit(ctx, OpFulfillSellStock,
		[]string{"sell_requests"},
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return m.svc.FulfillSellStock(opts)
		})
}

// UpdateUsdcTokenAddress changes the accepted payment token. Owner only.
func (m *Merchant) UpdateUsdcTokenAddress(ctx context.Context, newToken common.Address) (common.Hash, error) {
	return m.submit(ctx, OpUpdateUsdcTokenAddress,
		[]string{"usdc_token"},
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return m.svc.UpdateUsdcTokenAddress(opts, newToken)
		})
}

// AgentInfo reads the on-chain agent record. Failures are logged and
// downgraded to the zero value so rendering never breaks on a flaky read.
func (m *Merchant) AgentInfo(ctx context.Context, walletAddress common.Address) AgentInfo {
	key := cacheKey("agent_info", walletAddress.Hex())
	if cached, ok := m.cache.get(key); ok {
		return cached.(AgentInfo)
	}
	raw, err := m.svc.AgentInfo(ctx, walletAddress)
	if err != nil {
		m.log.Warn("读取 agent 信息失败", "wallet", walletAddress.Hex(), "error", err)
		return AgentInfo{}
	}
	info := AgentInfo{
		WalletAddress:     raw.WalletAddress,
		StockTokenAddress: raw.StockTokenAddress,
		PricePerToken:     raw.PricePerToken,
		CreatorAddress:    raw.CreatorAddress,
	}
	m.cache.set(key, info)
	return info
}

// AgentWalletAddress reverse-looks-up the agent wallet for a stock token,
// returning the zero address on failure.
func (m *Merchant) AgentWalletAddress(ctx context.Context, stockToken common.Address) common.Address {
	key := cacheKey("agent_wallet", stockToken.Hex())
	if cached, ok := m.cache.get(key); ok {
		return cached.(common.Address)
	}
	addr, err := m.svc.AgentWalletAddress(ctx, stockToken)
	if err != nil {
		m.log.Warn("读取 agent 钱包地址失败", "stock_token", stockToken.Hex(), "error", err)
		return common.Address{}
	}
	m.cache.set(key, addr)
	return addr
}

// SellShareRequests enumerates queued sell requests, returning an empty list
// on failure.
func (m *Merchant) SellShareRequests(ctx context.Context, stockToken common.Address) []SellShareRequest {
	key := cacheKey("sell_requests", stockToken.Hex())
	if cached, ok := m.cache.get(key); ok {
		return cached.([]SellShareRequest)
	}
	raw, err := m.svc.SellShareRequests(ctx, stockToken)
	if err != nil {
		m.log.Warn("读取卖出请求失败", "stock_token", stockToken.Hex(), "error", err)
		return nil
	}
	requests := make([]SellShareRequest, 0, len(raw))
	for _, r := range raw {
		requests = append(requests, SellShareRequest{
			UserWalletAddress: r.UserWalletAddress,
			TokenAmount:       r.TokenAmount,
		})
	}
	m.cache.set(key, requests)
	return requests
}

// AgentsByCreator enumerates agents created by creator, returning an empty
// list on failure.
func (m *Merchant) AgentsByCreator(ctx context.Context, creator common.Address) []common.Address {
	key := cacheKey("agents_by_creator", creator.Hex())
	if cached, ok := m.cache.get(key); ok {
		return cached.([]common.Address)
	}
	agents, err := m.svc.AgentsByCreator(ctx, creator)
	if err != nil {
		m.log.Warn("枚举创建者 agent 失败", "creator", creator.Hex(), "error", err)
		return nil
	}
	m.cache.set(key, agents)
	return agents
}

// Owner reads the contract owner, returning the zero address on failure.
func (m *Merchant) Owner(ctx context.Context) common.Address {
	key := cacheKey("owner")
	if cached, ok := m.cache.get(key); ok {
		return cached.(common.Address)
	}
	owner, err := m.svc.Owner(ctx)
	if err != nil {
		m.log.Warn("读取合约 owner 失败", "error", err)
		return common.Address{}
	}
	m.cache.set(key, owner)
	return owner
}

// UsdcTokenAddress reads the accepted payment token, returning the zero
// address on failure.
func (m *Merchant) UsdcTokenAddress(ctx context.Context) common.Address {
	key := cacheKey("usdc_token")
	if cached, ok := m.cache.get(key); ok {
		return cached.(common.Address)
	}
	token, err := m.svc.UsdcTokenAddress(ctx)
	if err != nil {
		m.log.Warn("读取 USDC 合约地址失败", "error", err)
		return common.Address{}
	}
	m.cache.set(key, token)
	return token
}

// estimateFrom picks the From address for gas estimation: the connected
// wallet when available, else the zero address.
func (m *Merchant) estimateFrom() common.Address {
	if addr, ok := m.adapter.Address(); ok {
		return addr
	}
	return common.Address{}
}

// EstimateCreateAgentGas dry-runs createAgent.
func (m *Merchant) EstimateCreateAgentGas(ctx context.Context, walletAddress common.Address, name, symbol string) (GasEstimation, error) {
	return m.svc.EstimateGas(ctx, m.estimateFrom(), "createAgent", walletAddress, name, symbol)
}

// EstimatePurchaseStockGas dry-runs purchaseStock.
func (m *Merchant) EstimatePurchaseStockGas(ctx context.Context, stockToken common.Address, tokenAmount *big.Int) (GasEstimation, error) {
	return m.svc.EstimateGas(ctx, m.estimateFrom(), "purchaseStock", stockToken, tokenAmount)
}

// EstimatePurchaseStockByUsdcGas dry-runs purchaseStockByUsdc.
func (m *Merchant) EstimatePurchaseStockByUsdcGas(ctx context.Context, stockToken common.Address, usdcAmount *big.Int) (GasEstimation, error) {
	return m.svc.EstimateGas(ctx, m.estimateFrom(), "purchaseStockByUsdc", stockToken, usdcAmount)
}

// EstimateCommitSellStockGas dry-runs commitSellStock.
func (m *Merchant) EstimateCommitSellStockGas(ctx context.Context, stockToken common.Address, tokenAmount *big.Int) (GasEstimation, error) {
	return m.svc.EstimateGas(ctx, m.estimateFrom(), "commitSellStock", stockToken, tokenAmount)
}

// EstimateFulfillSellStockGas dry-runs fullfillSellStock.
func (m *Merchant) EstimateFulfillSellStockGas(ctx context.Context) (GasEstimation, error) {
	return m.svc.EstimateGas(ctx, m.estimateFrom(), "fullfillSellStock")
}

// EstimateUpdateUsdcTokenAddressGas dry-runs updateUsdcTokenAddress.
func (m *Merchant) EstimateUpdateUsdcTokenAddressGas(ctx context.Context, newToken common.Address) (GasEstimation, error) {
	return m.svc.EstimateGas(ctx, m.estimateFrom(), "updateUsdcTokenAddress", newToken)
}

// StartEventInvalidation subscribes to the merchant contract's events and
// invalidates the read cache families each event makes stale. The goroutine
// exits when ctx is cancelled or the subscription fails.
func (m *Merchant) StartEventInvalidation(ctx context.Context) error {
	sub, err := m.client.SubscribeEvents(ctx, gethcore.FilterQuery{
		Addresses: []common.Address{m.svc.ContractAddress()},
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeRPCFailure, err, "订阅合约事件失败")
	}
	meta := agentMerchantEventTopics()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					m.log.Warn("事件订阅中断", "error", err)
				}
				return
			case log, ok := <-sub.Logs():
				if !ok {
					return
				}
				if len(log.Topics) == 0 {
					continue
				}
				prefixes, known := meta[log.Topics[0]]
				if !known {
					continue
				}
				for _, prefix := range prefixes {
					m.cache.invalidatePrefix(prefix)
				}
				m.log.Debug("事件触发缓存失效", "topic", log.Topics[0].Hex())
			}
		}
	}()
	return nil
}
