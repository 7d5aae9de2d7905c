package mysql

import (
	"context"
	"testing"
	"time"

	"BullShip-Merchant/internal/merchant"
)

func TestFileJournalRecordAndList(t *testing.T) {
	dir := t.TempDir()
	journal, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("创建文件日志失败: %v", err)
	}

	ctx := context.Background()
	entries := []merchant.JournalEntry{
		{Chain: "local", Operation: "create_agent", Wallet: "0xA1", TxHash: "0x01", Status: merchant.JournalSubmitted},
		{Chain: "local", Operation: "create_agent", Wallet: "0xA1", TxHash: "0x01", Status: merchant.JournalConfirmed},
		{Chain: "local", Operation: "purchase_stock", Wallet: "0xB2", TxHash: "0x02", Status: merchant.JournalFailed, Detail: "boom"},
	}
	for _, entry := range entries {
		if err := journal.Record(ctx, entry); err != nil {
			t.Fatalf("record: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	all, err := journal.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Operation != "purchase_stock" {
		t.Fatalf("expected newest entry first, got %s", all[0].Operation)
	}
	if all[0].ID == "" || all[0].CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp: %+v", all[0])
	}

	filtered, err := journal.List(ctx, "0xA1", 10)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 entries for wallet, got %d", len(filtered))
	}

	// 重新加载应能恢复历史记录。
	reloaded, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("重新加载文件日志失败: %v", err)
	}
	restored, err := reloaded.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("list restored: %v", err)
	}
	if len(restored) != 3 {
		t.Fatalf("expected 3 restored entries, got %d", len(restored))
	}
}
