package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the Bull Ship platform REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Token represents an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
}

// Agent is the platform-side record of a trading agent.
type Agent struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	UserID         int64   `json:"userId"`
	StockSymbol    string  `json:"stockSymbol"`
	StockAddress   string  `json:"stockAddress"`
	ImageURL       *string `json:"imageUrl"`
	SelectedTokens string  `json:"selectedTokens"`
	Strategy       string  `json:"strategy"`
	IsRunning      bool    `json:"isRunning"`
	CreatedAt      string  `json:"createdAt"`
	WalletKey      struct {
		Address string `json:"address"`
	} `json:"walletKey"`
	User struct {
		WalletAddress string `json:"walletAddress"`
	} `json:"user"`
}

// CreatedAgent extends Agent with the wallet generated at creation time.
type CreatedAgent struct {
	Agent
	WalletAddress string `json:"walletAddress"`
}

// AgentsQuery filters and paginates agent listings.
type AgentsQuery struct {
	Page          int
	Limit         int
	Search        string
	SortBy        string
	SortDirection string
}

// CreateAgentRequest is the payload for registering a new agent.
type CreateAgentRequest struct {
	Name           string `json:"name"`
	StockSymbol    string `json:"stockSymbol"`
	Description    string `json:"description"`
	Strategy       string `json:"strategy"`
	SelectedTokens string `json:"selectedTokens"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

// CreateAgentTokenRequest links an on-chain stock token to a platform agent.
type CreateAgentTokenRequest struct {
	StockAddress string `json:"stockAddress"`
}

// ChainInfo describes a chain the platform supports.
type ChainInfo struct {
	Name      string   `json:"name"`
	Chain     string   `json:"chain"`
	RPC       []string `json:"rpc"`
	ShortName string   `json:"shortName"`
	ChainID   int64    `json:"chainId"`
	NetworkID int64    `json:"networkId"`
	Status    string   `json:"status,omitempty"`
	IconURL   string   `json:"iconUrl,omitempty"`
}

// TokenInfo describes an ERC-20 token the platform supports on a chain.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Name     string `json:"name"`
	ChainID  int64  `json:"chainId,omitempty"`
	LogoURI  string `json:"logoURI,omitempty"`
}

// UploadedFile is the platform's record of an uploaded file.
type UploadedFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("backend api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the platform API. When httpClient is
// nil, a default client with a sensible timeout is used.
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

// SignIn exchanges a wallet signature for a bearer token and stores it for
// subsequent calls.
func (c *Client) SignIn(ctx context.Context, signature string) (Token, error) {
	payload := struct {
		Signature string `json:"signature"`
	}{Signature: signature}
	var token Token
	if err := c.post(ctx, "/auth/signin", payload, &token, false); err != nil {
		return Token{}, err
	}
	c.mu.Lock()
	c.accessToken = token.AccessToken
	c.mu.Unlock()
	return token, nil
}

// Agents lists agents matching the query.
func (c *Client) Agents(ctx context.Context, query AgentsQuery) ([]Agent, error) {
	params := url.Values{}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Search != "" {
		params.Set("search", query.Search)
	}
	if query.SortBy != "" {
		params.Set("sortBy", query.SortBy)
	}
	if query.SortDirection != "" {
		params.Set("sortDirection", query.SortDirection)
	}
	endpoint := "/agent"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var agents []Agent
	if err := c.get(ctx, endpoint, &agents, true); err != nil {
		return nil, err
	}
	return agents, nil
}

// Agent fetches a single agent by identifier.
func (c *Client) Agent(ctx context.Context, agentID string) (Agent, error) {
	var agent Agent
	if err := c.get(ctx, "/agent/"+url.PathEscape(agentID), &agent, true); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// CreateAgent registers a new agent on the platform. The platform provisions
// the agent wallet and returns its address.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (CreatedAgent, error) {
	var created CreatedAgent
	if err := c.post(ctx, "/agent", req, &created, true); err != nil {
		return CreatedAgent{}, err
	}
	return created, nil
}

// CreateAgentToken records the on-chain stock token address for an agent.
func (c *Client) CreateAgentToken(ctx context.Context, agentID string, req CreateAgentTokenRequest) (Agent, error) {
	var agent Agent
	if err := c.post(ctx, "/agent/"+url.PathEscape(agentID)+"/token", req, &agent, true); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// AvailableChains lists the chains the platform currently supports.
func (c *Client) AvailableChains(ctx context.Context) ([]ChainInfo, error) {
	var chains []ChainInfo
	if err := c.get(ctx, "/chain/available", &chains, true); err != nil {
		return nil, err
	}
	return chains, nil
}

// ChainInfo fetches metadata for a chain by numeric identifier.
func (c *Client) ChainInfo(ctx context.Context, chainID int64) (ChainInfo, error) {
	var info ChainInfo
	endpoint := fmt.Sprintf("/chain/info/%d", chainID)
	if err := c.get(ctx, endpoint, &info, false); err != nil {
		return ChainInfo{}, err
	}
	return info, nil
}

// AvailableTokens lists the tokens available for trading on a chain.
func (c *Client) AvailableTokens(ctx context.Context, chainID int64) ([]TokenInfo, error) {
	var tokens []TokenInfo
	endpoint := fmt.Sprintf("/token/available-tokens?chainId=%d", chainID)
	if err := c.get(ctx, endpoint, &tokens, true); err != nil {
		return nil, err
	}
	return tokens, nil
}

// UploadFile sends the file content as multipart form data.
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader) (UploadedFile, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return UploadedFile{}, fmt.Errorf("copy file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return UploadedFile{}, fmt.Errorf("finalize form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files/upload", &body, true)
	if err != nil {
		return UploadedFile{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var uploaded UploadedFile
	if err := c.do(req, &uploaded); err != nil {
		return UploadedFile{}, err
	}
	return uploaded, nil
}

// FileURL returns the public URL for a previously uploaded file.
func (c *Client) FileURL(filename string) string {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, "/files/", filename)}
	return c.baseURL.ResolveReference(rel).String()
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any, withAuth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body), withAuth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any, withAuth bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, withAuth)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, withAuth bool) (*http.Request, error) {
	parsedEndpoint, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsedEndpoint.Path), RawQuery: parsedEndpoint.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if withAuth {
		token := c.AccessToken()
		if token == "" {
			return nil, errors.New("backend: access token is not set")
		}
		req.Header.Set("Authorization", "Bearer "+token)
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
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
