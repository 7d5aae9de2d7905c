package wallet

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

func testKeyHex(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return hex.EncodeToString(crypto.FromECDSA(key))
}

func TestAdapterLifecycle(t *testing.T) {
	adapter := NewAdapter()
	if adapter.Connected() {
		t.Fatal("fresh adapter should not be connected")
	}
	if _, err := adapter.Transactor(big.NewInt(1)); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	addr, err := adapter.Connect(testKeyHex(t))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	got, ok := adapter.Address()
	if !ok || got != addr {
		t.Fatalf("Address = (%s, %v), want (%s, true)", got.Hex(), ok, addr.Hex())
	}
	opts, err := adapter.Transactor(big.NewInt(1337))
	if err != nil {
		t.Fatalf("Transactor: %v", err)
	}
	if opts.From != addr || opts.Signer == nil {
		t.Fatalf("transactor not bound to wallet: %+v", opts)
	}

	adapter.Disconnect()
	if adapter.Connected() {
		t.Fatal("adapter should be disconnected")
	}
	if _, err := adapter.Transactor(big.NewInt(1)); err != ErrNotConnected {
		t.Fatalf("断开后应返回 ErrNotConnected，实际 %v", err)
	}
}

func TestNewFromHexAcceptsPrefix(t *testing.T) {
	raw := testKeyHex(t)
	withPrefix, err := NewFromHex("0x" + raw)
	if err != nil {
		t.Fatalf("NewFromHex with prefix: %v", err)
	}
	bare, err := NewFromHex(raw)
	if err != nil {
		t.Fatalf("NewFromHex: %v", err)
	}
	if withPrefix.Address() != bare.Address() {
		t.Fatal("prefix handling changed the derived address")
	}
	if _, err := NewFromHex("  "); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestSignMessageRecoverable(t *testing.T) {
	w, err := NewFromHex(testKeyHex(t))
	if err != nil {
		t.Fatalf("NewFromHex: %v", err)
	}
	sig, err := w.SignMessage([]byte("login challenge"))
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		t.Fatalf("signature length %d, want %d", len(sig), crypto.SignatureLength)
	}
	if v := sig[crypto.RecoveryIDOffset]; v != 27 && v != 28 {
		t.Fatalf("recovery byte %d not in personal-sign convention", v)
	}
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	ctx := context.Background()
	session := &Session{Token: NewSessionToken(), Address: "0x1", Chain: "local"}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}
	found, err := store.Find(ctx, session.Token)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Address != "0x1" || found.ExpiresAt.IsZero() {
		t.Fatalf("unexpected session: %+v", found)
	}
	if err := store.Delete(ctx, session.Token); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Find(ctx, session.Token); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	ctx := context.Background()
	expired := &Session{
		Token:     NewSessionToken(),
		Address:   "0x1",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := store.Save(ctx, expired); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Find(ctx, expired.Token); err != ErrSessionNotFound {
		t.Fatalf("过期会话应视为不存在，实际 %v", err)
	}
	if removed := store.PurgeExpired(time.Now()); removed != 0 {
		// Find already dropped it lazily.
		t.Fatalf("expected lazy expiry to have removed the session, purge removed %d", removed)
	}
}
