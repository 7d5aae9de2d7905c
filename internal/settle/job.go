package settle

import (
	stdErrors "errors"

	xerrors "BullShip-Merchant/internal/errors"
)

// Status 表示结算任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// SettlementResult 保存一次链上结算的结果。
type SettlementResult struct {
	TxHash          string `json:"tx_hash"`
	RequestsSettled int64  `json:"requests_settled"`
	BlockNumber     string `json:"block_number"`
	Notes           string `json:"notes,omitempty"`
}

// Job 描述一次排队等待执行的卖出结算：代理钱包针对某个股票代币
// 调用 fullfillSellStock，清空当前排队的卖出请求。
type Job struct {
	ID          string            `json:"id"`
	Chain       string            `json:"chain"`
	StockToken  string            `json:"stock_token"`
	AgentWallet string            `json:"agent_wallet"`
	Status      Status            `json:"status"`
	Attempts    int               `json:"attempts"`
	MaxRetries  int               `json:"max_retries"`
	LastError   string            `json:"last_error,omitempty"`
	ErrorCode   string            `json:"error_code,omitempty"`
	Result      *SettlementResult `json:"result,omitempty"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
}

var (
	// ErrJobNotFound 表示指定的结算任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "settlement job not found")
	// ErrJobConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "settlement job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted 表示任务已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "settlement job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted 表示任务的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "settlement job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeJobNotFound   xerrors.Code = "SETTLE_JOB_NOT_FOUND"
	CodeJobConflict   xerrors.Code = "SETTLE_JOB_CONFLICT"
	CodeJobCompleted  xerrors.Code = "SETTLE_JOB_COMPLETED"
	CodeJobExhausted  xerrors.Code = "SETTLE_JOB_RETRIES_EXHAUSTED"
	CodeJobValidation xerrors.Code = "SETTLE_JOB_VALIDATION_FAILED"
	CodeJobPublish    xerrors.Code = "SETTLE_JOB_PUBLISH_FAILED"
	CodeJobProcessing xerrors.Code = "SETTLE_JOB_PROCESSING_FAILED"
	CodeJobCompensate xerrors.Code = "SETTLE_JOB_COMPENSATION_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:   "settlement job not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:   "settlement job conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:   "settlement job already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:   "settlement job retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:   "settlement job validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish settlement job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "settlement execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobCompensate, xerrors.Attributes{
		Message:   "settlement compensation failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// IsJobError 判断错误是否为统一的结算任务错误。
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrJobNotFound) {
		return target == CodeJobNotFound
	}
	if stdErrors.Is(err, ErrJobConflict) {
		return target == CodeJobConflict
	}
	if stdErrors.Is(err, ErrJobCompleted) {
		return target == CodeJobCompleted
	}
	if stdErrors.Is(err, ErrJobExhausted) {
		return target == CodeJobExhausted
	}
	return false
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneJob(job *Job) *Job {
	clone := *job
	if job.Result != nil {
		resultCopy := *job.Result
		clone.Result = &resultCopy
	}
	return &clone
}

func jobHasResult(job *Job) bool {
	if job == nil || job.Result == nil {
		return false
	}
	result := job.Result
	return result.TxHash != "" || result.RequestsSettled > 0 || result.BlockNumber != "" || result.Notes != ""
}
