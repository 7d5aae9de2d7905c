package agent

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"BullShip-Merchant/internal/backend"
	"BullShip-Merchant/internal/merchant"
)

type fakePlatform struct {
	created      backend.CreatedAgent
	createErr    error
	tokenCalls   []backend.CreateAgentTokenRequest
	tokenAgentID string
}

func (f *fakePlatform) CreateAgent(_ context.Context, req backend.CreateAgentRequest) (backend.CreatedAgent, error) {
	if f.createErr != nil {
		return backend.CreatedAgent{}, f.createErr
	}
	return f.created, nil
}

func (f *fakePlatform) CreateAgentToken(_ context.Context, agentID string, req backend.CreateAgentTokenRequest) (backend.Agent, error) {
	f.tokenAgentID = agentID
	f.tokenCalls = append(f.tokenCalls, req)
	return backend.Agent{}, nil
}

type fakeContract struct {
	txHash    common.Hash
	createErr error
	info      merchant.AgentInfo
	created   []common.Address
}

func (f *fakeContract) CreateAgent(_ context.Context, walletAddress common.Address, name, symbol string) (common.Hash, error) {
	if f.createErr != nil {
		return common.Hash{}, f.createErr
	}
	f.created = append(f.created, walletAddress)
	return f.txHash, nil
}

func (f *fakeContract) AgentInfo(_ context.Context, walletAddress common.Address) merchant.AgentInfo {
	return f.info
}

func TestCreatorFullFlow(t *testing.T) {
	agentWallet := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	stockToken := common.HexToAddress("0x00000000000000000000000000000000000000B2")

	platform := &fakePlatform{created: backend.CreatedAgent{
		Agent:         backend.Agent{ID: 42},
		WalletAddress: agentWallet.Hex(),
	}}
	contract := &fakeContract{
		txHash: common.HexToHash("0x01"),
		info: merchant.AgentInfo{
			WalletAddress:     agentWallet,
			StockTokenAddress: stockToken,
			PricePerToken:     big.NewInt(1),
		},
	}

	creator := NewCreator(platform, contract)
	result, err := creator.Create(context.Background(), CreateRequest{Name: "alpha", StockSymbol: "ALP"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.AgentID != 42 || result.AgentWallet != agentWallet.Hex() {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.StockTokenAddress != stockToken.Hex() {
		t.Fatalf("expected stock token written back, got %q", result.StockTokenAddress)
	}
	if len(contract.created) != 1 || contract.created[0] != agentWallet {
		t.Fatalf("expected on-chain create for agent wallet, got %+v", contract.created)
	}
	if platform.tokenAgentID != "42" || len(platform.tokenCalls) != 1 {
		t.Fatalf("expected token write-back for agent 42, got %q", platform.tokenAgentID)
	}
	if platform.tokenCalls[0].StockAddress != stockToken.Hex() {
		t.Fatalf("unexpected token address: %s", platform.tokenCalls[0].StockAddress)
	}
}

func TestCreatorValidatesInput(t *testing.T) {
	creator := NewCreator(&fakePlatform{}, &fakeContract{})
	if _, err := creator.Create(context.Background(), CreateRequest{StockSymbol: "ALP"}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if _, err := creator.Create(context.Background(), CreateRequest{Name: "alpha"}); err == nil {
		t.Fatal("expected error for missing symbol")
	}
}

func TestCreatorPropagatesBackendFailure(t *testing.T) {
	platform := &fakePlatform{createErr: errors.New("boom")}
	creator := NewCreator(platform, &fakeContract{})
	if _, err := creator.Create(context.Background(), CreateRequest{Name: "alpha", StockSymbol: "ALP"}); err == nil {
		t.Fatal("expected backend failure to propagate")
	}
}

func TestCreatorRejectsZeroTxHash(t *testing.T) {
	agentWallet := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	platform := &fakePlatform{created: backend.CreatedAgent{
		Agent:         backend.Agent{ID: 7},
		WalletAddress: agentWallet.Hex(),
	}}
	// 零哈希表示钱包未连接时的静默跳过。
	creator := NewCreator(platform, &fakeContract{})
	if _, err := creator.Create(context.Background(), CreateRequest{Name: "alpha", StockSymbol: "ALP"}); err == nil {
		t.Fatal("expected wallet-missing error for zero tx hash")
	}
}

func TestCreatorSkipsWriteBackWhenTokenUnknown(t *testing.T) {
	agentWallet := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	platform := &fakePlatform{created: backend.CreatedAgent{
		Agent:         backend.Agent{ID: 7},
		WalletAddress: agentWallet.Hex(),
	}}
	contract := &fakeContract{txHash: common.HexToHash("0x02")}

	creator := NewCreator(platform, contract)
	result, err := creator.Create(context.Background(), CreateRequest{Name: "alpha", StockSymbol: "ALP"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.StockTokenAddress != "" {
		t.Fatalf("expected empty stock token, got %q", result.StockTokenAddress)
	}
	if len(platform.tokenCalls) != 0 {
		t.Fatalf("expected no token write-back, got %d", len(platform.tokenCalls))
	}
}
