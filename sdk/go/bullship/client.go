package bullship

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the BullShip merchant REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// AgentCreation represents the payload required to create a new agent.
type AgentCreation struct {
	Name           string `json:"name"`
	StockSymbol    string `json:"stock_symbol"`
	Description    string `json:"description,omitempty"`
	Strategy       string `json:"strategy,omitempty"`
	SelectedTokens string `json:"selected_tokens,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
}

// AgentCreated reports the outcome of an agent creation flow.
type AgentCreated struct {
	AgentID           int64  `json:"agent_id"`
	AgentWallet       string `json:"agent_wallet"`
	StockTokenAddress string `json:"stock_token_address"`
	TxHash            string `json:"tx_hash"`
}

// PurchaseOrder describes a stock purchase. Amount is a decimal string; when
// ByUsdc is set the server interprets it with USDC precision, otherwise as an
// integer token count.
type PurchaseOrder struct {
	StockToken string `json:"stock_token"`
	Amount     string `json:"amount"`
	ByUsdc     bool   `json:"by_usdc"`
}

// SellOrder describes a sell-share commitment.
type SellOrder struct {
	StockToken  string `json:"stock_token"`
	TokenAmount string `json:"token_amount"`
}

// TxReceipt carries the transaction hash of a submitted contract write.
type TxReceipt struct {
	TxHash string `json:"tx_hash"`
}

// SettlementSubmission represents the payload required to enqueue a
// settlement job. ID is optional and enables idempotent submission.
type SettlementSubmission struct {
	ID          string `json:"id,omitempty"`
	Chain       string `json:"chain"`
	StockToken  string `json:"stock_token"`
	AgentWallet string `json:"agent_wallet,omitempty"`
}

// SettlementResult contains the on-chain outcome of a finished job.
type SettlementResult struct {
	TxHash          string `json:"tx_hash"`
	RequestsSettled int64  `json:"requests_settled"`
	BlockNumber     string `json:"block_number"`
	Notes           string `json:"notes,omitempty"`
}

// SettlementJob mirrors the server side view of a settlement job.
type SettlementJob struct {
	ID          string            `json:"id"`
	Chain       string            `json:"chain"`
	StockToken  string            `json:"stock_token"`
	AgentWallet string            `json:"agent_wallet"`
	Status      string            `json:"status"`
	Attempts    int               `json:"attempts"`
	MaxRetries  int               `json:"max_retries"`
	LastError   string            `json:"last_error,omitempty"`
	ErrorCode   string            `json:"error_code,omitempty"`
	Result      *SettlementResult `json:"result,omitempty"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
}

// SettlementStats aggregates job counts by status.
type SettlementStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// SettlementsQuery narrows down a settlement listing.
type SettlementsQuery struct {
	Limit  int
	Status string
	Query  string
}

// JournalEntry records one contract write operation.
type JournalEntry struct {
	ID        string    `json:"id"`
	Chain     string    `json:"chain"`
	Operation string    `json:"operation"`
	Wallet    string    `json:"wallet"`
	TxHash    string    `json:"tx_hash"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("bullship api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the BullShip merchant API. When
// httpClient is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// CreateAgent drives the full agent creation flow: platform registration,
// on-chain creation and stock token write-back.
func (c *Client) CreateAgent(ctx context.Context, creation AgentCreation) (AgentCreated, error) {
	var created AgentCreated
	if err := c.post(ctx, "/api/v1/agents", creation, &created); err != nil {
		return AgentCreated{}, err
	}
	return created, nil
}

// PurchaseStock submits a stock purchase and returns the transaction hash.
func (c *Client) PurchaseStock(ctx context.Context, order PurchaseOrder) (TxReceipt, error) {
	var receipt TxReceipt
	if err := c.post(ctx, "/api/v1/purchases", order, &receipt); err != nil {
		return TxReceipt{}, err
	}
	return receipt, nil
}

// CommitSellStock commits a sell-share request and returns the transaction hash.
func (c *Client) CommitSellStock(ctx context.Context, order SellOrder) (TxReceipt, error) {
	var receipt TxReceipt
	if err := c.post(ctx, "/api/v1/sells", order, &receipt); err != nil {
		return TxReceipt{}, err
	}
	return receipt, nil
}

// SubmitSettlement enqueues a settlement job for asynchronous execution.
func (c *Client) SubmitSettlement(ctx context.Context, submission SettlementSubmission) (SettlementJob, error) {
	var job SettlementJob
	if err := c.post(ctx, "/api/v1/settlements", submission, &job); err != nil {
		return SettlementJob{}, err
	}
	return job, nil
}

// Settlement fetches settlement job details by identifier.
func (c *Client) Settlement(ctx context.Context, jobID string) (SettlementJob, error) {
	var job SettlementJob
	endpoint := "/api/v1/settlements?id=" + url.QueryEscape(jobID)
	if err := c.get(ctx, endpoint, &job); err != nil {
		return SettlementJob{}, err
	}
	return job, nil
}

// Settlements lists settlement jobs, newest first.
func (c *Client) Settlements(ctx context.Context, query SettlementsQuery) ([]SettlementJob, error) {
	values := url.Values{}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Status != "" {
		values.Set("status", query.Status)
	}
	if query.Query != "" {
		values.Set("q", query.Query)
	}
	endpoint := "/api/v1/settlements"
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var payload struct {
		Jobs []SettlementJob `json:"jobs"`
	}
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

// SettlementStats returns aggregate counts for the settlement pipeline.
func (c *Client) SettlementStats(ctx context.Context) (SettlementStats, error) {
	var stats SettlementStats
	if err := c.get(ctx, "/api/v1/settlements/stats", &stats); err != nil {
		return SettlementStats{}, err
	}
	return stats, nil
}

// JournalEntries lists recent contract write operations, optionally filtered
// by wallet address.
func (c *Client) JournalEntries(ctx context.Context, wallet string, limit int) ([]JournalEntry, error) {
	values := url.Values{}
	if wallet != "" {
		values.Set("wallet", wallet)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "/api/v1/journal"
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var payload struct {
		Entries []JournalEntry `json:"entries"`
	}
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(data)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
