package agent

import (
	"context"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"BullShip-Merchant/internal/backend"
	xerrors "BullShip-Merchant/internal/errors"
	"BullShip-Merchant/internal/merchant"
	"BullShip-Merchant/pkg/logger"
)

// CodeBackendFailure 表示平台后端调用失败。
const CodeBackendFailure xerrors.Code = "AGENT_BACKEND_FAILURE"

func init() {
	xerrors.Register(CodeBackendFailure, xerrors.Attributes{
		Message:   "platform backend call failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}

// Platform 定义创建代理时所需的后端能力。
type Platform interface {
	CreateAgent(ctx context.Context, req backend.CreateAgentRequest) (backend.CreatedAgent, error)
	CreateAgentToken(ctx context.Context, agentID string, req backend.CreateAgentTokenRequest) (backend.Agent, error)
}

// ContractWriter 定义创建代理时所需的链上能力。
type ContractWriter interface {
	CreateAgent(ctx context.Context, walletAddress common.Address, name, symbol string) (common.Hash, error)
	AgentInfo(ctx context.Context, walletAddress common.Address) merchant.AgentInfo
}

// CreateRequest 描述一次代理创建。
type CreateRequest struct {
	Name           string `json:"name"`
	StockSymbol    string `json:"stock_symbol"`
	Description    string `json:"description"`
	Strategy       string `json:"strategy"`
	SelectedTokens string `json:"selected_tokens"`
	ImageURL       string `json:"image_url,omitempty"`
}

// CreateResult 汇总平台与链上两侧的创建结果。
type CreateResult struct {
	AgentID           int64  `json:"agent_id"`
	AgentWallet       string `json:"agent_wallet"`
	StockTokenAddress string `json:"stock_token_address"`
	TxHash            string `json:"tx_hash"`
}

// Creator 协调平台后端与链上合约完成代理创建。
type Creator struct {
	platform Platform
	contract ContractWriter
}

// NewCreator 构造 Creator。
func NewCreator(platform Platform, contract ContractWriter) *Creator {
	return &Creator{platform: platform, contract: contract}
}

// Create 执行完整的创建流程。链上交易确认后，从合约读取股票代币地址
// 并回写到平台记录；回写失败不会回滚链上结果，只记录告警。
func (c *Creator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if c == nil || c.platform == nil || c.contract == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "代理创建器未初始化")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "代理名称不能为空")
	}
	if strings.TrimSpace(req.StockSymbol) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "股票代币符号不能为空")
	}

	created, err := c.platform.CreateAgent(ctx, backend.CreateAgentRequest{
		Name:           req.Name,
		StockSymbol:    req.StockSymbol,
		Description:    req.Description,
		Strategy:       req.Strategy,
		SelectedTokens: req.SelectedTokens,
		ImageURL:       req.ImageURL,
	})
	if err != nil {
		return nil, xerrors.Wrap(CodeBackendFailure, err, "平台注册代理失败")
	}
	if !common.IsHexAddress(created.WalletAddress) {
		return nil, xerrors.New(CodeBackendFailure, "平台返回的代理钱包地址非法")
	}
	agentWallet := common.HexToAddress(created.WalletAddress)

	txHash, err := c.contract.CreateAgent(ctx, agentWallet, req.Name, req.StockSymbol)
	if err != nil {
		return nil, err
	}
	if txHash == (common.Hash{}) {
		return nil, xerrors.New(xerrors.CodeWalletMissing, "钱包未连接，无法提交链上创建交易")
	}

	result := &CreateResult{
		AgentID:     created.ID,
		AgentWallet: agentWallet.Hex(),
		TxHash:      txHash.Hex(),
	}

	info := c.contract.AgentInfo(ctx, agentWallet)
	if info.StockTokenAddress == (common.Address{}) {
		logger.L().Warn("链上代理记录尚未就绪，跳过代币回写",
			"agent_wallet", agentWallet.Hex())
		return result, nil
	}
	result.StockTokenAddress = info.StockTokenAddress.Hex()

	agentID := strconv.FormatInt(created.ID, 10)
	if _, err := c.platform.CreateAgentToken(ctx, agentID, backend.CreateAgentTokenRequest{
		StockAddress: result.StockTokenAddress,
	}); err != nil {
		logger.L().Warn("回写股票代币地址失败",
			"agent_id", agentID,
			"stock_token", result.StockTokenAddress,
			"error", err)
	}
	return result, nil
}
