package merchant

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"BullShip-Merchant/internal/contracts"
	"BullShip-Merchant/internal/wallet"
	"BullShip-Merchant/internal/web3/ethereum"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var testStockToken = common.HexToAddress("0x00000000000000000000000000000000000000C3")

func newTestMerchant(t *testing.T, fake *fakeBackend, opts Options) (*Merchant, *wallet.Adapter) {
	t.Helper()
	client := ethereum.NewOfflineClient("local", big.NewInt(1337), fake)
	adapter := wallet.NewAdapter()
	if opts.Chain == "" {
		opts.Chain = "local"
	}
	return New(client, testMerchantAddr, adapter, opts), adapter
}

func connectTestWallet(t *testing.T, adapter *wallet.Adapter) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr, err := adapter.Connect(hex.EncodeToString(crypto.FromECDSA(key)))
	if err != nil {
		t.Fatalf("connect wallet: %v", err)
	}
	return addr
}

func TestWritesWithoutWalletAreSilentNoOps(t *testing.T) {
	fake := newFakeBackend()
	m, _ := newTestMerchant(t, fake, Options{})
	ctx := context.Background()

	calls := map[OperationName]func() (common.Hash, error){
		OpCreateAgent: func() (common.Hash, error) {
			return m.CreateAgent(ctx, testStockToken, "Alpha", "ALP")
		},
		OpPurchaseStock: func() (common.Hash, error) {
			return m.PurchaseStock(ctx, testStockToken, big.NewInt(10))
		},
		OpPurchaseStockByUsdc: func() (common.Hash, error) {
			return m.PurchaseStockByUsdc(ctx, testStockToken, big.NewInt(100_000000))
		},
		OpCommitSellStock: func() (common.Hash, error) {
			return m.CommitSellStock(ctx, testStockToken, big.NewInt(5))
		},
		OpFulfillSellStock: func() (common.Hash, error) {
			return m.FulfillSellStock(ctx)
		},
		OpUpdateUsdcTokenAddress: func() (common.Hash, error) {
			return m.UpdateUsdcTokenAddress(ctx, testUsdcAddr)
		},
	}
	for name, call := range calls {
		hash, err := call()
		if err != nil {
			t.Fatalf("%s: 未连接钱包时不应返回错误: %v", name, err)
		}
		if hash != (common.Hash{}) {
			t.Fatalf("%s: expected zero hash, got %s", name, hash.Hex())
		}
		state, _ := m.State(name)
		if !state.Idle() {
			t.Fatalf("%s: expected idle state, got %+v", name, state)
		}
	}
	if sent := fake.sentMethods(); len(sent) != 0 {
		t.Fatalf("expected no submitted transactions, got %v", sent)
	}
}

func TestCreateAgentSuccessState(t *testing.T) {
	fake := newFakeBackend()
	m, adapter := newTestMerchant(t, fake, Options{})
	connectTestWallet(t, adapter)

	hash, err := m.CreateAgent(context.Background(), testStockToken, "Alpha", "ALP")
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if hash == (common.Hash{}) {
		t.Fatal("expected a transaction hash")
	}
	state, _ := m.State(OpCreateAgent)
	if !state.IsSuccess || state.IsLoading || state.IsError {
		t.Fatalf("expected success-only state, got %+v", state)
	}
	if state.TxHash != hash {
		t.Fatalf("state hash %s does not match returned hash %s", state.TxHash.Hex(), hash.Hex())
	}
	if sent := fake.sentMethods(); len(sent) != 1 || sent[0] != "createAgent" {
		t.Fatalf("unexpected submissions: %v", sent)
	}
}

func TestWriteFailureRecordsErrorState(t *testing.T) {
	fake := newFakeBackend()
	fake.failSend["commitSellStock"] = errors.New("user rejected the request")
	m, adapter := newTestMerchant(t, fake, Options{})
	connectTestWallet(t, adapter)

	hash, err := m.CommitSellStock(context.Background(), testStockToken, big.NewInt(5))
	if err == nil {
		t.Fatal("expected an error")
	}
	if hash != (common.Hash{}) {
		t.Fatalf("expected zero hash on failure, got %s", hash.Hex())
	}
	state, _ := m.State(OpCommitSellStock)
	if !state.IsError || state.IsSuccess || state.IsLoading {
		t.Fatalf("expected error-only state, got %+v", state)
	}
	if state.TxHash != (common.Hash{}) {
		t.Fatalf("交易失败时不应记录交易哈希: %s", state.TxHash.Hex())
	}
	if state.Err == nil {
		t.Fatal("expected the triggering error in state")
	}
}

func TestPurchaseByUsdcSufficientAllowanceSkipsApproval(t *testing.T) {
	fake := newFakeBackend()
	fake.allowance = big.NewInt(200_000000)
	m, adapter := newTestMerchant(t, fake, Options{})
	connectTestWallet(t, adapter)

	if _, err := m.PurchaseStockByUsdc(context.Background(), testStockToken, big.NewInt(100_000000)); err != nil {
		t.Fatalf("PurchaseStockByUsdc: %v", err)
	}
	if fake.approveCalls != 0 {
		t.Fatalf("授权额度充足时不应提交 approve，实际提交 %d 次", fake.approveCalls)
	}
	if sent := fake.sentMethods(); len(sent) != 1 || sent[0] != "purchaseStockByUsdc" {
		t.Fatalf("unexpected submissions: %v", sent)
	}
}

func TestPurchaseByUsdcApprovesThenPurchases(t *testing.T) {
	fake := newFakeBackend()
	m, adapter := newTestMerchant(t, fake, Options{})
	connectTestWallet(t, adapter)

	hash, err := m.PurchaseStockByUsdc(context.Background(), testStockToken, big.NewInt(100_000000))
	if err != nil {
		t.Fatalf("PurchaseStockByUsdc: %v", err)
	}
	if hash == (common.Hash{}) {
		t.Fatal("expected a transaction hash")
	}
	sent := fake.sentMethods()
	if len(sent) != 2 || sent[0] != "approve" || sent[1] != "purchaseStockByUsdc" {
		t.Fatalf("expected approve then purchase, got %v", sent)
	}
	if fake.approveCalls != 1 {
		t.Fatalf("expected exactly one approval, got %d", fake.approveCalls)
	}
	if fake.lastApproveAmount.Cmp(abi.MaxUint256) != 0 {
		t.Fatalf("unbounded policy should approve MaxUint256, got %s", fake.lastApproveAmount)
	}
	if at := fake.allowanceAtSend["purchaseStockByUsdc"]; at.Cmp(big.NewInt(100_000000)) < 0 {
		t.Fatalf("purchase was submitted before the approval took effect (allowance %s)", at)
	}
	state, _ := m.State(OpPurchaseStockByUsdc)
	if !state.IsSuccess || state.TxHash == (common.Hash{}) {
		t.Fatalf("expected success with hash, got %+v", state)
	}
}

func TestPurchaseByUsdcExactApprovalPolicy(t *testing.T) {
	fake := newFakeBackend()
	m, adapter := newTestMerchant(t, fake, Options{ApprovalPolicy: ApprovalExact})
	connectTestWallet(t, adapter)

	amount := big.NewInt(42_000000)
	if _, err := m.PurchaseStockByUsdc(context.Background(), testStockToken, amount); err != nil {
		t.Fatalf("PurchaseStockByUsdc: %v", err)
	}
	if fake.lastApproveAmount.Cmp(amount) != 0 {
		t.Fatalf("exact policy should approve %s, got %s", amount, fake.lastApproveAmount)
	}
}

func TestPurchaseRejectionAfterApprovalKeepsAllowance(t *testing.T) {
	fake := newFakeBackend()
	fake.failSend["purchaseStockByUsdc"] = errors.New("user rejected the request")
	m, adapter := newTestMerchant(t, fake, Options{})
	connectTestWallet(t, adapter)

	if _, err := m.PurchaseStockByUsdc(context.Background(), testStockToken, big.NewInt(100_000000)); err == nil {
		t.Fatal("expected an error")
	}
	state, _ := m.State(OpPurchaseStockByUsdc)
	if !state.IsError || state.IsSuccess {
		t.Fatalf("expected error state, got %+v", state)
	}
	if fake.approveCalls != 1 {
		t.Fatalf("expected the approval to have been submitted, got %d", fake.approveCalls)
	}
	// The approval's effect persists even though the purchase failed.
	if fake.allowance.Cmp(abi.MaxUint256) != 0 {
		t.Fatalf("授权结果不应被回滚，当前额度 %s", fake.allowance)
	}
}

func TestResetReturnsOperationToIdle(t *testing.T) {
	fake := newFakeBackend()
	m, adapter := newTestMerchant(t, fake, Options{})
	connectTestWallet(t, adapter)

	if _, err := m.CreateAgent(context.Background(), testStockToken, "Alpha", "ALP"); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	m.Reset(OpCreateAgent)
	state, _ := m.State(OpCreateAgent)
	if !state.Idle() || state.TxHash != (common.Hash{}) || state.Err != nil {
		t.Fatalf("expected pristine idle state after reset, got %+v", state)
	}
}

func TestAgentsByCreatorStopsAtZeroAddress(t *testing.T) {
	fake := newFakeBackend()
	creator := common.HexToAddress("0x00000000000000000000000000000000000000D4")
	fake.creatorAgents[creator] = []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
	}
	m, _ := newTestMerchant(t, fake, Options{})

	agents := m.AgentsByCreator(context.Background(), creator)
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
}

func TestAgentsByCreatorStopsOnRevert(t *testing.T) {
	fake := newFakeBackend()
	fake.probeRevert = true
	creator := common.HexToAddress("0x00000000000000000000000000000000000000D4")
	fake.creatorAgents[creator] = []common.Address{common.HexToAddress("0x01")}
	m, _ := newTestMerchant(t, fake, Options{})

	agents := m.AgentsByCreator(context.Background(), creator)
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
}

func TestAgentsByCreatorHonorsProbeLimit(t *testing.T) {
	fake := newFakeBackend()
	creator := common.HexToAddress("0x00000000000000000000000000000000000000D4")
	for i := 0; i < 8; i++ {
		fake.creatorAgents[creator] = append(fake.creatorAgents[creator],
			common.BigToAddress(big.NewInt(int64(i+1))))
	}
	m, _ := newTestMerchant(t, fake, Options{ProbeLimit: 4})

	agents := m.AgentsByCreator(context.Background(), creator)
	if len(agents) != 4 {
		t.Fatalf("probe limit 4 should cap enumeration, got %d agents", len(agents))
	}
}

func TestSellShareRequestsEnumeration(t *testing.T) {
	fake := newFakeBackend()
	fake.sellRequests[testStockToken] = []SellShareRequest{
		{UserWalletAddress: common.HexToAddress("0x11"), TokenAmount: big.NewInt(3)},
		{UserWalletAddress: common.HexToAddress("0x22"), TokenAmount: big.NewInt(7)},
	}
	m, _ := newTestMerchant(t, fake, Options{})

	requests := m.SellShareRequests(context.Background(), testStockToken)
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if requests[1].TokenAmount.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected second request: %+v", requests[1])
	}
}

func TestReadFailuresDowngradeToSafeDefaults(t *testing.T) {
	fake := newFakeBackend()
	fake.revertCall["agentInfoMapper"] = true
	fake.revertCall["owner"] = true
	fake.revertCall["getSellShareRequestsLength"] = true
	m, _ := newTestMerchant(t, fake, Options{})
	ctx := context.Background()

	if info := m.AgentInfo(ctx, testStockToken); !info.Empty() {
		t.Fatalf("expected empty agent info, got %+v", info)
	}
	if owner := m.Owner(ctx); owner != (common.Address{}) {
		t.Fatalf("expected zero owner, got %s", owner.Hex())
	}
	if requests := m.SellShareRequests(ctx, testStockToken); len(requests) != 0 {
		t.Fatalf("expected empty requests, got %d", len(requests))
	}
}

func TestReadCacheServesRepeatsAndWriteInvalidates(t *testing.T) {
	fake := newFakeBackend()
	agentWallet := common.HexToAddress("0x00000000000000000000000000000000000000E5")
	fake.agents[agentWallet] = fakeAgentRecord{
		wallet:     agentWallet,
		stockToken: testStockToken,
		price:      big.NewInt(1_000000),
		creator:    agentWallet,
	}
	m, adapter := newTestMerchant(t, fake, Options{ReadCacheTTL: time.Minute})
	connectTestWallet(t, adapter)
	ctx := context.Background()

	m.AgentInfo(ctx, agentWallet)
	m.AgentInfo(ctx, agentWallet)
	if count := fake.callCount("agentInfoMapper"); count != 1 {
		t.Fatalf("expected one backing call, got %d", count)
	}

	if _, err := m.CreateAgent(ctx, agentWallet, "Alpha", "ALP"); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	m.AgentInfo(ctx, agentWallet)
	if count := fake.callCount("agentInfoMapper"); count != 2 {
		t.Fatalf("写操作后缓存应失效，实际调用次数 %d", count)
	}
}

func TestEventDrivenCacheInvalidation(t *testing.T) {
	fake := newFakeBackend()
	agentWallet := common.HexToAddress("0x00000000000000000000000000000000000000E5")
	fake.agents[agentWallet] = fakeAgentRecord{wallet: agentWallet, price: big.NewInt(5)}
	m, _ := newTestMerchant(t, fake, Options{ReadCacheTTL: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.AgentInfo(ctx, agentWallet)
	if err := m.StartEventInvalidation(ctx); err != nil {
		t.Fatalf("StartEventInvalidation: %v", err)
	}
	fake.emitLog(types.Log{
		Address: testMerchantAddr,
		Topics:  []common.Hash{contracts.AgentMerchantMeta().Events["PricePerTokenUpdated"].ID},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		m.AgentInfo(ctx, agentWallet)
		if fake.callCount("agentInfoMapper") >= 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("event did not invalidate the cached read in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGasEstimationReportsCost(t *testing.T) {
	fake := newFakeBackend()
	m, _ := newTestMerchant(t, fake, Options{})

	estimation, err := m.EstimatePurchaseStockGas(context.Background(), testStockToken, big.NewInt(10))
	if err != nil {
		t.Fatalf("EstimatePurchaseStockGas: %v", err)
	}
	if estimation.GasLimit == 0 {
		t.Fatal("expected a non-zero gas limit")
	}
	want := new(big.Int).Mul(estimation.GasPrice, new(big.Int).SetUint64(estimation.GasLimit))
	if estimation.EstimatedCost.Cmp(want) != 0 {
		t.Fatalf("cost %s does not equal price*limit %s", estimation.EstimatedCost, want)
	}
	if estimation.EstimatedCostInEth == "" {
		t.Fatal("expected a formatted ETH cost")
	}
}
