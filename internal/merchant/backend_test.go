package merchant

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"BullShip-Merchant/internal/contracts"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testMerchantAddr = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	testUsdcAddr     = common.HexToAddress("0x00000000000000000000000000000000000000B2")

	testIERC20ABI = mustTestABI(contracts.IERC20ABIJSON)
)

func mustTestABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

type fakeAgentRecord struct {
	wallet     common.Address
	stockToken common.Address
	price      *big.Int
	creator    common.Address
}

type fakeSub struct {
	errCh chan error
}

func (s *fakeSub) Unsubscribe()      {}
func (s *fakeSub) Err() <-chan error { return s.errCh }

// fakeBackend simulates the merchant and USDC contracts behind the
// web3.Backend interface: reads dispatch on the 4-byte selector and pack
// real ABI outputs, writes record the submitted method order and mutate the
// simulated allowance, and receipts confirm immediately.
type fakeBackend struct {
	mu sync.Mutex

	agents        map[common.Address]fakeAgentRecord
	stockToWallet map[common.Address]common.Address
	sellRequests  map[common.Address][]SellShareRequest
	creatorAgents map[common.Address][]common.Address
	owner         common.Address
	allowance     *big.Int
	balance       *big.Int

	// probeRevert makes creator enumeration revert past the end instead of
	// returning the zero address.
	probeRevert bool

	revertCall map[string]bool
	failSend   map[string]error

	sent              []string
	approveCalls      int
	lastApproveAmount *big.Int
	allowanceAtSend   map[string]*big.Int

	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt

	logCh chan<- types.Log

	callCounts map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		agents:          make(map[common.Address]fakeAgentRecord),
		stockToWallet:   make(map[common.Address]common.Address),
		sellRequests:    make(map[common.Address][]SellShareRequest),
		creatorAgents:   make(map[common.Address][]common.Address),
		allowance:       big.NewInt(0),
		balance:         big.NewInt(0),
		revertCall:      make(map[string]bool),
		failSend:        make(map[string]error),
		allowanceAtSend: make(map[string]*big.Int),
		nonces:          make(map[common.Address]uint64),
		receipts:        make(map[common.Hash]*types.Receipt),
		callCounts:      make(map[string]int),
	}
}

func (b *fakeBackend) sentMethods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func (b *fakeBackend) callCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callCounts[method]
}

func (b *fakeBackend) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *fakeBackend) PendingCodeAt(_ context.Context, _ common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	nonce := b.nonces[account]
	b.nonces[account] = nonce + 1
	return nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (b *fakeBackend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, call gethcore.CallMsg) (uint64, error) {
	return 21000 + uint64(len(call.Data))*16, nil
}

func (b *fakeBackend) FilterLogs(_ context.Context, _ gethcore.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(_ context.Context, _ gethcore.FilterQuery, ch chan<- types.Log) (gethcore.Subscription, error) {
	b.mu.Lock()
	b.logCh = ch
	b.mu.Unlock()
	return &fakeSub{errCh: make(chan error, 1)}, nil
}

func (b *fakeBackend) emitLog(log types.Log) {
	b.mu.Lock()
	ch := b.logCh
	b.mu.Unlock()
	if ch != nil {
		ch <- log
	}
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[txHash]
	if !ok {
		return nil, gethcore.NotFound
	}
	return receipt, nil
}

func (b *fakeBackend) CallContract(_ context.Context, call gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	if call.To == nil {
		return nil, errors.New("missing call target")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch *call.To {
	case testMerchantAddr:
		return b.callMerchant(call.Data)
	case testUsdcAddr:
		return b.callUsdc(call.Data)
	}
	return nil, fmt.Errorf("unexpected call target %s", call.To.Hex())
}

func (b *fakeBackend) callMerchant(data []byte) ([]byte, error) {
	merchantABI := contracts.AgentMerchantMeta()
	method, err := merchantABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	b.callCounts[method.Name]++
	if b.revertCall[method.Name] {
		return nil, fmt.Errorf("execution reverted: %s", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "agentInfoMapper":
		record := b.agents[args[0].(common.Address)]
		if record.price == nil {
			record.price = big.NewInt(0)
		}
		return method.Outputs.Pack(record.wallet, record.stockToken, record.price, record.creator)
	case "stockTokenToWalletAddressMapper":
		return method.Outputs.Pack(b.stockToWallet[args[0].(common.Address)])
	case "getSellShareRequestsLength":
		return method.Outputs.Pack(big.NewInt(int64(len(b.sellRequests[args[0].(common.Address)]))))
	case "sellShareRequests":
		requests := b.sellRequests[args[0].(common.Address)]
		index := int(args[1].(*big.Int).Int64())
		if index >= len(requests) {
			return nil, errors.New("execution reverted: index out of bounds")
		}
		return method.Outputs.Pack(requests[index].UserWalletAddress, requests[index].TokenAmount)
	case "creatorAddressToAgentWalletAddressesMapper":
		agents := b.creatorAgents[args[0].(common.Address)]
		index := int(args[1].(*big.Int).Int64())
		if index >= len(agents) {
			if b.probeRevert {
				return nil, errors.New("execution reverted: index out of bounds")
			}
			return method.Outputs.Pack(common.Address{})
		}
		return method.Outputs.Pack(agents[index])
	case "usdcToken":
		return method.Outputs.Pack(testUsdcAddr)
	case "owner":
		return method.Outputs.Pack(b.owner)
	}
	return nil, fmt.Errorf("unhandled merchant method %s", method.Name)
}

func (b *fakeBackend) callUsdc(data []byte) ([]byte, error) {
	method, err := testIERC20ABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	b.callCounts[method.Name]++
	switch method.Name {
	case "allowance":
		return method.Outputs.Pack(new(big.Int).Set(b.allowance))
	case "balanceOf":
		return method.Outputs.Pack(new(big.Int).Set(b.balance))
	case "decimals":
		return method.Outputs.Pack(uint8(UsdcDecimals))
	}
	return nil, fmt.Errorf("unhandled token method %s", method.Name)
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if tx.To() == nil {
		return errors.New("contract creation not supported")
	}
	selector := tx.Data()[:4]
	var method *abi.Method
	var err error
	switch *tx.To() {
	case testMerchantAddr:
		merchantABI := contracts.AgentMerchantMeta()
		method, err = merchantABI.MethodById(selector)
	case testUsdcAddr:
		method, err = testIERC20ABI.MethodById(selector)
	default:
		return fmt.Errorf("unexpected transaction target %s", tx.To().Hex())
	}
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sendErr, ok := b.failSend[method.Name]; ok && sendErr != nil {
		delete(b.failSend, method.Name)
		return sendErr
	}
	b.sent = append(b.sent, method.Name)
	b.allowanceAtSend[method.Name] = new(big.Int).Set(b.allowance)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return err
	}
	switch method.Name {
	case "approve":
		b.approveCalls++
		b.lastApproveAmount = new(big.Int).Set(args[1].(*big.Int))
		b.allowance = new(big.Int).Set(args[1].(*big.Int))
	case "purchaseStockByUsdc":
		amount := args[1].(*big.Int)
		if b.allowance.Cmp(amount) < 0 {
			return errors.New("execution reverted: insufficient allowance")
		}
	}
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(1),
	}
	return nil
}
