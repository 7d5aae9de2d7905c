package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"BullShip-Merchant/internal/agent"
	"BullShip-Merchant/internal/api"
	"BullShip-Merchant/internal/backend"
	"BullShip-Merchant/internal/config"
	"BullShip-Merchant/internal/merchant"
	"BullShip-Merchant/internal/observability/metrics"
	"BullShip-Merchant/internal/settle"
	storagemysql "BullShip-Merchant/internal/storage/mysql"
	storageredis "BullShip-Merchant/internal/storage/redis"
	"BullShip-Merchant/internal/wallet"
	"BullShip-Merchant/internal/web3/provider"
	"BullShip-Merchant/pkg/logger"
)

// main 是 merchantd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("merchantd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("BULLSHIP_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "merchant.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	entry, err := chainRegistry.DefaultEntry()
	if err != nil {
		return err
	}
	chainName := cfg.Web3.DefaultChain
	if chainName == "" {
		names := chainRegistry.Chains()
		chainName = names[0]
	}

	// 钱包与会话存储。
	adapter := wallet.NewAdapter()
	sessionStore, err := createSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessionStore.Close()

	if addr, err := adapter.ConnectFromEnv(cfg.Wallet.PrivateKeyEnv); err != nil {
		logger.L().Warn("未连接本地签名钱包，写操作将被静默忽略",
			"env", cfg.Wallet.PrivateKeyEnv, "error", err)
	} else {
		now := time.Now().UTC()
		session := &wallet.Session{
			Token:     wallet.NewSessionToken(),
			Address:   addr.Hex(),
			Chain:     chainName,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(cfg.Wallet.SessionStore.TTLSeconds) * time.Second),
		}
		if err := sessionStore.Save(ctx, session); err != nil {
			logger.L().Warn("保存钱包会话失败", "error", err)
		}
		logger.L().Info("本地签名钱包已连接", "address", addr.Hex(), "chain", chainName)
	}

	// 操作日志仓库。
	journal, journalCloser, err := createJournal(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	if journalCloser != nil {
		defer journalCloser()
	}

	usdcDecimals := entry.UsdcDecimals
	m := merchant.New(entry.Client, entry.MerchantContract, adapter, merchant.Options{
		Chain:          chainName,
		ApprovalPolicy: merchant.ApprovalPolicy(cfg.Merchant.ApprovalPolicy),
		ConfirmTimeout: time.Duration(cfg.Merchant.ConfirmTimeoutSeconds) * time.Second,
		ReadCacheTTL:   time.Duration(cfg.Merchant.ReadCacheTTLSeconds) * time.Second,
		ProbeLimit:     cfg.Merchant.EnumerationProbeLimit,
		UsdcDecimals:   usdcDecimals,
		Journal:        journal,
	})
	if cfg.Merchant.EventInvalidation {
		if err := m.StartEventInvalidation(ctx); err != nil {
			logger.L().Warn("事件驱动缓存失效不可用", "error", err)
		}
	}

	// 平台后端客户端。
	backendClient, err := backend.NewClient(cfg.Backend.BaseURL, &http.Client{
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	creator := agent.NewCreator(backendClient, m)

	// 结算流水线。
	settleStore, err := createSettleStore(cfg)
	if err != nil {
		return err
	}
	settleQueue, err := createSettleQueue(cfg)
	if err != nil {
		_ = settleStore.Close()
		return err
	}
	defer func() {
		if err := settleQueue.Close(); err != nil {
			logger.L().Warn("关闭结算队列失败", "error", err)
		}
	}()

	settlements := settle.NewService(settleStore, settleQueue, cfg.Settlement.MaxRetries)
	defer func() { _ = settlements.Close() }()

	executor := settle.NewChainExecutor(entry.Client, m.Service(), adapter)
	processor := settle.NewProcessor(executor, settleStore, settleQueue, settleQueue,
		settle.WithWorkerCount(cfg.Settlement.WorkerCount),
		settle.WithProcessorLogger(logger.Named("settle")),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("结算处理器异常退出", "error", err)
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, api.Options{
		Merchant:     m,
		Settlements:  settlements,
		Creator:      creator,
		Journal:      journal,
		UsdcDecimals: usdcDecimals,
	})
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createSessionStore(cfg *config.Config) (wallet.SessionStore, error) {
	ttl := time.Duration(cfg.Wallet.SessionStore.TTLSeconds) * time.Second
	switch cfg.Wallet.SessionStore.Driver {
	case "", "memory":
		return wallet.NewMemorySessionStore(ttl), nil
	case "redis":
		return storageredis.NewSessionStore(storageredis.SessionStoreConfig{
			Address:  cfg.Wallet.SessionStore.Address,
			Password: cfg.Wallet.SessionStore.Password,
			DB:       cfg.Wallet.SessionStore.DB,
			TTL:      ttl,
		})
	default:
		return nil, fmt.Errorf("未知的会话存储驱动: %s", cfg.Wallet.SessionStore.Driver)
	}
}

func createJournal(ctx context.Context, cfg *config.Config, dataDir string) (merchant.Journal, func(), error) {
	if !cfg.Merchant.JournalConfirmedWrites {
		return nil, nil, nil
	}
	if cfg.Settlement.Store.Driver == "mysql" {
		repo, err := storagemysql.NewJournalRepository(ctx, storagemysql.Config{
			DSN:             cfg.Settlement.Store.DSN,
			MaxOpenConns:    cfg.Settlement.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Settlement.Store.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Settlement.Store.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Settlement.Store.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}
	journal, err := storagemysql.NewFileJournal(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return journal, nil, nil
}

func createSettleStore(cfg *config.Config) (settle.Store, error) {
	switch cfg.Settlement.Store.Driver {
	case "", "memory":
		return settle.NewMemoryStore(), nil
	case "mysql":
		return settle.NewMySQLStore(settle.MySQLConfig{
			DSN:             cfg.Settlement.Store.DSN,
			MaxOpenConns:    cfg.Settlement.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Settlement.Store.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Settlement.Store.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Settlement.Store.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的结算存储驱动: %s", cfg.Settlement.Store.Driver)
	}
}

func createSettleQueue(cfg *config.Config) (settle.Queue, error) {
	switch cfg.Settlement.Queue.Driver {
	case "", "memory":
		return settle.NewMemoryQueue(1024), nil
	case "redis":
		return settle.NewRedisQueue(settle.RedisQueueConfig{
			Address:  cfg.Settlement.Queue.Address,
			Password: cfg.Settlement.Queue.Password,
			DB:       cfg.Settlement.Queue.DB,
			Queue:    cfg.Settlement.Queue.Name,
		})
	case "rabbitmq":
		return settle.NewRabbitMQQueue(settle.RabbitMQConfig{
			URL:     cfg.Settlement.Queue.URL,
			Queue:   cfg.Settlement.Queue.Name,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("未知的结算队列驱动: %s", cfg.Settlement.Queue.Driver)
	}
}
