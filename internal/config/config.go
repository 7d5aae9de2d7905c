package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述商户服务在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Web3       Web3Config       `json:"web3"`
	Wallet     WalletConfig     `json:"wallet"`
	Backend    BackendConfig    `json:"backend"`
	Merchant   MerchantConfig   `json:"merchant"`
	Settlement SettlementConfig `json:"settlement"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制网关 API 的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// LoggingConfig 控制日志输出与审计日志。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// Web3Config 描述链接入配置。链的详细定义放在独立的 YAML 文件中。
type Web3Config struct {
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
	RPCURL       string `json:"rpc_url"`
}

// WalletConfig 描述本地签名钱包与会话存储。
type WalletConfig struct {
	PrivateKeyEnv string             `json:"private_key_env"`
	SessionStore  SessionStoreConfig `json:"session_store"`
}

// SessionStoreConfig 选择钱包会话存储的驱动。
type SessionStoreConfig struct {
	Driver     string `json:"driver"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// BackendConfig 描述平台 REST 后端的访问方式。
type BackendConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// MerchantConfig 控制合约交互层的策略。
type MerchantConfig struct {
	// ApprovalPolicy 取值 unbounded 或 exact，决定 USDC 购买前的授权额度。
	ApprovalPolicy         string `json:"approval_policy"`
	ConfirmTimeoutSeconds  int    `json:"confirm_timeout_seconds"`
	EnumerationProbeLimit  int    `json:"enumeration_probe_limit"`
	EventInvalidation      bool   `json:"event_invalidation"`
	ReadCacheTTLSeconds    int    `json:"read_cache_ttl_seconds"`
	JournalConfirmedWrites bool   `json:"journal_confirmed_writes"`
}

// SettlementConfig 描述卖出结算流水线的队列与存储。
type SettlementConfig struct {
	Store       SettlementStoreConfig `json:"store"`
	Queue       SettlementQueueConfig `json:"queue"`
	WorkerCount int                   `json:"worker_count"`
	MaxRetries  int                   `json:"max_retries"`
}

// SettlementStoreConfig 选择结算任务存储的驱动。
type SettlementStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// SettlementQueueConfig 选择结算任务队列的驱动。
type SettlementQueueConfig struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	URL      string `json:"url"`
	Name     string `json:"name"`
}

// RuntimeConfig 放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Wallet.PrivateKeyEnv == "" {
		c.Wallet.PrivateKeyEnv = "BULLSHIP_WALLET_KEY"
	}
	if c.Wallet.SessionStore.Driver == "" {
		c.Wallet.SessionStore.Driver = "memory"
	}
	if c.Wallet.SessionStore.TTLSeconds <= 0 {
		c.Wallet.SessionStore.TTLSeconds = 86400
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:4000"
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 15
	}

	if c.Merchant.ApprovalPolicy == "" {
		c.Merchant.ApprovalPolicy = "unbounded"
	}
	if c.Merchant.ConfirmTimeoutSeconds <= 0 {
		c.Merchant.ConfirmTimeoutSeconds = 120
	}
	if c.Merchant.EnumerationProbeLimit <= 0 {
		c.Merchant.EnumerationProbeLimit = 256
	}
	if c.Merchant.ReadCacheTTLSeconds <= 0 {
		c.Merchant.ReadCacheTTLSeconds = 30
	}

	if c.Settlement.Store.Driver == "" {
		c.Settlement.Store.Driver = "memory"
	}
	if c.Settlement.Queue.Driver == "" {
		c.Settlement.Queue.Driver = "memory"
	}
	if c.Settlement.WorkerCount <= 0 {
		c.Settlement.WorkerCount = 2
	}
	if c.Settlement.MaxRetries <= 0 {
		c.Settlement.MaxRetries = 3
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
