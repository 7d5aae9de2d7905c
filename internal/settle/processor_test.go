package settle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "BullShip-Merchant/internal/errors"
	"BullShip-Merchant/internal/observability/alerting"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration
	fail      func(job *Job) error
}

func (f *fakeExecutor) Settle(ctx context.Context, job *Job) (*SettlementResult, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(job); err != nil {
			return nil, err
		}
	}
	f.processed.Add(1)
	return &SettlementResult{TxHash: "0x" + job.ID, RequestsSettled: 1, BlockNumber: "1"}, nil
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		token := fmt.Sprintf("0x%040x", i+1)
		if _, err := service.Submit(ctx, SubmitRequest{Chain: "local", StockToken: token}); err != nil {
			t.Fatalf("提交结算任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("结算任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesRetryableFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)

	var failures atomic.Int32
	executor := &fakeExecutor{
		fail: func(job *Job) error {
			if failures.Add(1) <= 2 {
				return xerrors.New(CodeJobProcessing, "模拟临时故障")
			}
			return nil
		},
	}

	service := NewService(store, queue, 5)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(2))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	job, err := service.Submit(ctx, SubmitRequest{Chain: "local", StockToken: "0x01"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusSucceeded {
		t.Fatalf("expected succeeded after retries, got %s (last error %q)", final.Status, final.LastError)
	}
	if final.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", final.Attempts)
	}
}

type fallbackRecovery struct{}

func (fallbackRecovery) Recover(_ context.Context, job *Job, cause error) (*SettlementResult, error) {
	return &SettlementResult{Notes: "手动对账"}, nil
}

func TestProcessorAppliesRecoveryOnNonRetryableFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)

	executor := &fakeExecutor{
		fail: func(job *Job) error {
			return xerrors.New(CodeJobCompensate, "合约回滚")
		},
	}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue,
		WithWorkerCount(1),
		WithRecoveryHandler(fallbackRecovery{}),
	)

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	job, err := service.Submit(ctx, SubmitRequest{Chain: "local", StockToken: "0x02"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusSucceeded {
		t.Fatalf("expected degraded success, got %s", final.Status)
	}
	if final.Result == nil || final.Result.Notes != "手动对账" {
		t.Fatalf("unexpected fallback result: %+v", final.Result)
	}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) snapshot() []alerting.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]alerting.Event(nil), d.events...)
}

func TestProcessorAlertsOnTerminalFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	dispatcher := &recordingDispatcher{}

	executor := &fakeExecutor{
		fail: func(job *Job) error {
			return xerrors.New(CodeJobValidation, "股票代币地址非法")
		},
	}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue,
		WithWorkerCount(1),
		WithAlertDispatcher(dispatcher),
	)

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	job, err := service.Submit(ctx, SubmitRequest{Chain: "local", StockToken: "not-an-address"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("expected terminal failure, got %s", final.Status)
	}

	events := dispatcher.snapshot()
	if len(events) == 0 {
		t.Fatal("expected at least one alert event")
	}
	last := events[len(events)-1]
	if last.JobID != job.ID || last.Code != CodeJobValidation {
		t.Fatalf("unexpected alert event: %+v", last)
	}
	if last.Metadata["stage"] != "terminal" {
		t.Fatalf("expected terminal stage, got %q", last.Metadata["stage"])
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, 3)

	first, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", Chain: "local", StockToken: "0x03"})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", Chain: "local", StockToken: "0x03"})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same job, got %s and %s", first.ID, second.ID)
	}

	if _, err := service.Submit(ctx, SubmitRequest{Chain: "local"}); err == nil {
		t.Fatal("expected validation error for empty stock token")
	}
}
