package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Common errors returned by the wallet subsystem.
var (
	ErrNotConnected = errors.New("wallet not connected")
	ErrEmptyKey     = errors.New("empty private key")
)

// Wallet wraps a secp256k1 private key and the address derived from it.
type Wallet struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

// NewFromHex builds a wallet from a hex encoded private key. A leading 0x
// prefix is tolerated.
func NewFromHex(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrEmptyKey
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析钱包私钥失败: %w", err)
	}
	return &Wallet{
		address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}

// NewFromEnv reads the private key from the named environment variable.
func NewFromEnv(envName string) (*Wallet, error) {
	value := os.Getenv(envName)
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("环境变量 %s 未设置钱包私钥", envName)
	}
	return NewFromHex(value)
}

// Address returns the wallet's account address.
func (w *Wallet) Address() common.Address {
	if w == nil {
		return common.Address{}
	}
	return w.address
}

// NewTransactor derives transaction options bound to chainID. Gas fields are
// left unset so the backend estimates them at send time.
func (w *Wallet) NewTransactor(chainID *big.Int) (*bind.TransactOpts, error) {
	if w == nil || w.key == nil {
		return nil, ErrNotConnected
	}
	if chainID == nil {
		return nil, errors.New("缺少链 ID，无法构造签名器")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("构造交易签名器失败: %w", err)
	}
	return opts, nil
}

// SignMessage produces an EIP-191 personal-sign signature over msg, with the
// recovery byte shifted to the 27/28 convention browser wallets use.
func (w *Wallet) SignMessage(msg []byte) ([]byte, error) {
	if w == nil || w.key == nil {
		return nil, ErrNotConnected
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), w.key)
	if err != nil {
		return nil, fmt.Errorf("签名消息失败: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
