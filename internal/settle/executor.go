package settle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	xerrors "BullShip-Merchant/internal/errors"
	"BullShip-Merchant/internal/merchant"
	"BullShip-Merchant/internal/wallet"
	"BullShip-Merchant/internal/web3"
)

// ChainExecutor 使用代理钱包在链上执行 fullfillSellStock，
// 清空合约中排队的卖出请求。
type ChainExecutor struct {
	client  web3.Client
	service *merchant.Service
	adapter *wallet.Adapter
}

// NewChainExecutor 构造链上结算执行器。
func NewChainExecutor(client web3.Client, service *merchant.Service, adapter *wallet.Adapter) *ChainExecutor {
	return &ChainExecutor{client: client, service: service, adapter: adapter}
}

// Settle 读取待结算的卖出请求并提交结算交易。
func (e *ChainExecutor) Settle(ctx context.Context, job *Job) (*SettlementResult, error) {
	if e == nil || e.client == nil || e.service == nil || e.adapter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "结算执行器未初始化")
	}
	if job == nil {
		return nil, xerrors.New(CodeJobValidation, "结算任务为空")
	}
	if !common.IsHexAddress(job.StockToken) {
		return nil, xerrors.New(CodeJobValidation, fmt.Sprintf("非法的股票代币地址: %s", job.StockToken))
	}
	stockToken := common.HexToAddress(job.StockToken)

	requests, err := e.service.SellShareRequests(ctx, stockToken)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeRPCFailure, err, "读取卖出请求队列失败")
	}
	if len(requests) == 0 {
		return &SettlementResult{Notes: "没有待结算的卖出请求"}, nil
	}

	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeRPCFailure, err, "获取链 ID 失败")
	}
	opts, err := e.adapter.Transactor(chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletMissing, err, "代理钱包未连接")
	}
	opts.Context = ctx

	tx, err := e.service.FulfillSellStock(opts)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeContractRevert, err, "提交结算交易失败")
	}
	receipt, err := e.service.WaitConfirmed(ctx, tx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTxConfirmation, err, "等待结算交易确认失败")
	}

	return &SettlementResult{
		TxHash:          tx.Hash().Hex(),
		RequestsSettled: int64(len(requests)),
		BlockNumber:     receipt.BlockNumber.String(),
	}, nil
}
