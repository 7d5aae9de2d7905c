package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"BullShip-Merchant/internal/config"
	"BullShip-Merchant/internal/web3"
	"BullShip-Merchant/internal/web3/ethereum"

	"github.com/ethereum/go-ethereum/common"
)

// Entry pairs a chain client with the merchant deployment on that chain.
type Entry struct {
	Client           web3.Client
	MerchantContract common.Address
	UsdcDecimals     int
	Description      string
}

// Registry manages a set of chain entries keyed by human readable names.
type Registry struct {
	defaultChain string
	entries      map[string]*Entry
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]*Entry)
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		if chainType != "evm" {
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
		if !common.IsHexAddress(chain.MerchantContract) {
			return nil, fmt.Errorf("链 %s 未配置有效的商户合约地址", name)
		}
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:   name,
			RPCURL: chain.RPCURL,
			WSURL:  chain.WSURL,
			Notes:  chain.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		entries[name] = &Entry{
			Client:           client,
			MerchantContract: common.HexToAddress(chain.MerchantContract),
			UsdcDecimals:     chain.UsdcDecimals,
			Description:      chain.Description,
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	defaultChain := cfg.DefaultChain
	if defaultChain == "" {
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := entries[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, entries: entries}, nil
}

// DefaultEntry returns the entry configured as default chain.
func (r *Registry) DefaultEntry() (*Entry, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	entry, ok := r.entries[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return entry, nil
}

// Entry returns the chain entry identified by name.
func (r *Registry) Entry(name string) (*Entry, bool) {
	if r == nil {
		return nil, false
	}
	entry, ok := r.entries[name]
	return entry, ok
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, entry := range r.entries {
		if entry != nil && entry.Client != nil {
			entry.Client.Close()
		}
		delete(r.entries, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
