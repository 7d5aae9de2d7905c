package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"BullShip-Merchant/internal/agent"
	"BullShip-Merchant/internal/merchant"
	"BullShip-Merchant/internal/observability/metrics"
	"BullShip-Merchant/internal/settle"
)

// Server 负责暴露 REST 接口，供外部驱动商户合约与结算流水线。
type Server struct {
	addr        string
	merchant    *merchant.Merchant
	settlements *settle.Service
	creator     *agent.Creator
	journal     merchant.Journal
	usdcDecimal int
}

// Options 配置 API 服务。
type Options struct {
	Merchant     *merchant.Merchant
	Settlements  *settle.Service
	Creator      *agent.Creator
	Journal      merchant.Journal
	UsdcDecimals int
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, opts Options) *Server {
	decimals := opts.UsdcDecimals
	if decimals <= 0 {
		decimals = merchant.UsdcDecimals
	}
	return &Server{
		addr:        addr,
		merchant:    opts.Merchant,
		settlements: opts.Settlements,
		creator:     opts.Creator,
		journal:     opts.Journal,
		usdcDecimal: decimals,
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回完整的路由表，便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agents", s.instrument("agents", s.handleAgents))
	mux.HandleFunc("/api/v1/agents/info", s.instrument("agent_info", s.handleAgentInfo))
	mux.HandleFunc("/api/v1/agents/by-creator", s.instrument("agents_by_creator", s.handleAgentsByCreator))
	mux.HandleFunc("/api/v1/sell-requests", s.instrument("sell_requests", s.handleSellRequests))
	mux.HandleFunc("/api/v1/purchases", s.instrument("purchases", s.handlePurchase))
	mux.HandleFunc("/api/v1/sells", s.instrument("sells", s.handleCommitSell))
	mux.HandleFunc("/api/v1/operations", s.instrument("operations", s.handleOperations))
	mux.HandleFunc("/api/v1/operations/reset", s.instrument("operations_reset", s.handleOperationReset))
	mux.HandleFunc("/api/v1/settlements", s.instrument("settlements", s.handleSettlements))
	mux.HandleFunc("/api/v1/settlements/stats", s.instrument("settlement_stats", s.handleSettlementStats))
	mux.HandleFunc("/api/v1/journal", s.instrument("journal", s.handleJournal))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// handleAgents 处理代理创建。
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.creator == nil {
		http.Error(w, "代理创建器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req agent.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	result, err := s.creator.Create(r.Context(), req)
	metrics.ObserveContractOperation(string(merchant.OpCreateAgent), err == nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleAgentInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.merchant == nil {
		http.Error(w, "商户服务未初始化", http.StatusServiceUnavailable)
		return
	}
	wallet, ok := parseAddress(w, r.URL.Query().Get("wallet"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.merchant.AgentInfo(r.Context(), wallet))
}

func (s *Server) handleAgentsByCreator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.merchant == nil {
		http.Error(w, "商户服务未初始化", http.StatusServiceUnavailable)
		return
	}
	creator, ok := parseAddress(w, r.URL.Query().Get("creator"))
	if !ok {
		return
	}
	agents := s.merchant.AgentsByCreator(r.Context(), creator)
	hexes := make([]string, 0, len(agents))
	for _, addr := range agents {
		hexes = append(hexes, addr.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": hexes})
}

func (s *Server) handleSellRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.merchant == nil {
		http.Error(w, "商户服务未初始化", http.StatusServiceUnavailable)
		return
	}
	stockToken, ok := parseAddress(w, r.URL.Query().Get("stock_token"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": s.merchant.SellShareRequests(r.Context(), stockToken),
	})
}

type purchaseRequest struct {
	StockToken string `json:"stock_token"`
	// Amount 为十进制字符串；by_usdc 时按 USDC 精度解析，否则为代币整数数量。
	Amount string `json:"amount"`
	ByUsdc bool   `json:"by_usdc"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.merchant == nil {
		http.Error(w, "商户服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	stockToken, ok := parseAddress(w, req.StockToken)
	if !ok {
		return
	}

	if req.ByUsdc {
		amount, err := merchant.ParseDecimalAmount(req.Amount, s.usdcDecimal)
		if err != nil {
			http.Error(w, "金额解析失败: "+err.Error(), http.StatusBadRequest)
			return
		}
		txHash, err := s.merchant.PurchaseStockByUsdc(r.Context(), stockToken, amount)
		metrics.ObserveContractOperation(string(merchant.OpPurchaseStockByUsdc), err == nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"tx_hash": txHash.Hex()})
		return
	}

	amount, err := merchant.ParseDecimalAmount(req.Amount, 0)
	if err != nil {
		http.Error(w, "数量解析失败: "+err.Error(), http.StatusBadRequest)
		return
	}
	txHash, err := s.merchant.PurchaseStock(r.Context(), stockToken, amount)
	metrics.ObserveContractOperation(string(merchant.OpPurchaseStock), err == nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": txHash.Hex()})
}

type sellRequest struct {
	StockToken  string `json:"stock_token"`
	TokenAmount string `json:"token_amount"`
}

func (s *Server) handleCommitSell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.merchant == nil {
		http.Error(w, "商户服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	stockToken, ok := parseAddress(w, req.StockToken)
	if !ok {
		return
	}
	amount, err := merchant.ParseDecimalAmount(req.TokenAmount, 0)
	if err != nil {
		http.Error(w, "数量解析失败: "+err.Error(), http.StatusBadRequest)
		return
	}
	txHash, err := s.merchant.CommitSellStock(r.Context(), stockToken, amount)
	metrics.ObserveContractOperation(string(merchant.OpCommitSellStock), err == nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tx_hash": txHash.Hex()})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.merchant == nil {
		http.Error(w, "商户服务未初始化", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.merchant.States())
}

func (s *Server) handleOperationReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.merchant == nil {
		http.Error(w, "商户服务未初始化", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Operation string `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	s.merchant.Reset(merchant.OperationName(req.Operation))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	if s.settlements == nil {
		http.Error(w, "结算服务未初始化", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req settle.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败", http.StatusBadRequest)
			return
		}
		job, err := s.settlements.Submit(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	case http.MethodGet:
		if id := r.URL.Query().Get("id"); id != "" {
			job, err := s.settlements.Get(r.Context(), id)
			if err != nil {
				if settle.IsJobError(err, settle.CodeJobNotFound) {
					http.Error(w, "结算任务不存在", http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, job)
			return
		}
		opts := []settle.ListOption{}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				opts = append(opts, settle.WithLimit(parsed))
			}
		}
		if status := r.URL.Query().Get("status"); status != "" {
			opts = append(opts, settle.WithStatuses(settle.Status(status)))
		}
		if query := r.URL.Query().Get("q"); query != "" {
			opts = append(opts, settle.WithQuery(query))
		}
		jobs, err := s.settlements.List(r.Context(), opts...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSettlementStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.settlements == nil {
		http.Error(w, "结算服务未初始化", http.StatusServiceUnavailable)
		return
	}
	stats, err := s.settlements.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "操作日志未初始化", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.journal.List(r.Context(), r.URL.Query().Get("wallet"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		http.Error(w, "非法的地址参数", http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
