package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"BullShip-Merchant/internal/merchant"
)

// Config 描述 MySQL 连接池参数。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// JournalRepository 使用 MySQL 持久化操作日志。
type JournalRepository struct {
	db *sql.DB
}

// NewJournalRepository 创建连接池并初始化数据表。
func NewJournalRepository(ctx context.Context, cfg Config) (*JournalRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化 operation_journal 表失败: %w", err)
	}
	return &JournalRepository{db: db}, nil
}

// Record 将一条操作日志写入 MySQL。
func (r *JournalRepository) Record(ctx context.Context, entry merchant.JournalEntry) error {
	const stmt = `INSERT INTO operation_journal
        (id, chain, operation, wallet, tx_hash, status, detail, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, stmt,
		entry.ID,
		entry.Chain,
		entry.Operation,
		entry.Wallet,
		entry.TxHash,
		entry.Status,
		entry.Detail,
		entry.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("写入操作日志失败: %w", err)
	}
	return nil
}

// List 按时间倒序查询指定钱包的操作日志；wallet 为空时返回全部。
func (r *JournalRepository) List(ctx context.Context, wallet string, limit int) ([]merchant.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, chain, operation, wallet, tx_hash, status, detail, created_at
        FROM operation_journal`
	args := make([]interface{}, 0, 2)
	if wallet != "" {
		query += " WHERE wallet = ?"
		args = append(args, wallet)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询操作日志失败: %w", err)
	}
	defer rows.Close()

	var entries []merchant.JournalEntry
	for rows.Next() {
		var entry merchant.JournalEntry
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.Chain, &entry.Operation, &entry.Wallet, &entry.TxHash, &entry.Status, &entry.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("解析操作日志失败: %w", err)
		}
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历操作日志失败: %w", err)
	}
	return entries, nil
}

// Close 关闭底层数据库连接。
func (r *JournalRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ merchant.Journal = (*JournalRepository)(nil)

// FileJournal 使用本地 JSON 文件模拟 MySQL 的效果，方便迭代开发。
type FileJournal struct {
	mu       sync.RWMutex
	dataFile string
	entries  []merchant.JournalEntry
}

// NewFileJournal 创建一个文件日志仓库。
func NewFileJournal(dataDir string) (*FileJournal, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "journal.log")
	journal := &FileJournal{dataFile: path}
	if err := journal.loadFromDisk(); err != nil {
		return nil, err
	}
	return journal, nil
}

// Record 以追加写的方式记录操作日志。
func (f *FileJournal) Record(_ context.Context, entry merchant.JournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	file, err := os.OpenFile(f.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开操作日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化操作日志失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入操作日志失败: %w", err)
	}

	f.entries = append([]merchant.JournalEntry{entry}, f.entries...)
	if len(f.entries) > 512 {
		f.entries = f.entries[:512]
	}
	return nil
}

// List 返回最近的操作日志，按时间倒序排列。
func (f *FileJournal) List(_ context.Context, wallet string, limit int) ([]merchant.JournalEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	results := make([]merchant.JournalEntry, 0, limit)
	for _, entry := range f.entries {
		if wallet != "" && entry.Wallet != wallet {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (f *FileJournal) loadFromDisk() error {
	file, err := os.OpenFile(f.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取操作日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []merchant.JournalEntry
	for scanner.Scan() {
		var entry merchant.JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		restored = append([]merchant.JournalEntry{entry}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析操作日志失败: %w", err)
	}

	if len(restored) > 512 {
		restored = restored[:512]
	}
	if len(restored) > 0 {
		f.entries = restored
	}
	return nil
}

var _ merchant.Journal = (*FileJournal)(nil)
