// Package rpc exposes the staking pool over a single JSON-RPC endpoint.
// Mutating and administrative methods require a bearer token; every request
// is rate limited per source address and tagged with a correlation id.
package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"liquidstake/core/epoch"
	"liquidstake/core/events"
	"liquidstake/native/pool"
	"liquidstake/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Server routes JSON-RPC requests to the pool engine and epoch clock.
type Server struct {
	engine  *pool.Engine
	clock   *epoch.Clock
	store   *pool.Store
	logger  *slog.Logger
	emitter events.Emitter

	authToken  string
	routeTable map[string]route

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	httpSrv *http.Server
}

// NewServer wires a server over the engine, clock, and persistent store. The
// token guards mutating methods; limit and burst shape per-source throughput.
func NewServer(engine *pool.Engine, clock *epoch.Clock, store *pool.Store, logger *slog.Logger, token string, limit float64, burst int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 50
	}
	if burst <= 0 {
		burst = 100
	}
	s := &Server{
		engine:    engine,
		clock:     clock,
		store:     store,
		logger:    logger,
		emitter:   events.NoopEmitter{},
		authToken: strings.TrimSpace(token),
		limiters:  make(map[string]*rate.Limiter),
		limit:     rate.Limit(limit),
		burst:     burst,
	}
	s.routeTable = s.routes()
	return s
}

// SetEmitter routes epoch lifecycle events emitted by admin methods.
func (s *Server) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	s.emitter = emitter
}

// Start serves the endpoint at addr until the listener fails or Shutdown is
// called.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handlerFunc computes one method's result or reports the RPC error to send.
type handlerFunc func(req *RPCRequest) (interface{}, *RPCError)

type route struct {
	fn   handlerFunc
	auth bool
}

// routes builds the static method table once, at construction.
func (s *Server) routes() map[string]route {
	return map[string]route{
		"pool_deposit":              {fn: s.handleDeposit, auth: true},
		"pool_delegate":             {fn: s.handleDelegate, auth: true},
		"pool_requestWithdraw":      {fn: s.handleRequestWithdraw, auth: true},
		"pool_claim":                {fn: s.handleClaim, auth: true},
		"pool_claimMultiple":        {fn: s.handleClaimMultiple, auth: true},
		"pool_receiveExternalValue": {fn: s.handleReceiveExternalValue, auth: true},

		"pool_previewDeposit":  {fn: s.handlePreviewDeposit},
		"pool_previewWithdraw": {fn: s.handlePreviewWithdraw},
		"pool_snapshot":        {fn: s.handleSnapshot},
		"pool_ticketsByEpoch":  {fn: s.handleTicketsByEpoch},
		"pool_ticketsByOwner":  {fn: s.handleTicketsByOwner},
		"pool_ticket":          {fn: s.handleTicket},
		"pool_currentEpoch":    {fn: s.handleCurrentEpoch},

		"pool_setDepositThresholds":    {fn: s.handleSetDepositThresholds, auth: true},
		"pool_setDelegationLowerBound": {fn: s.handleSetDelegationLowerBound, auth: true},
		"pool_setFeeSplit":             {fn: s.handleSetFeeSplit, auth: true},
		"pool_setEpoch":                {fn: s.handleSetEpoch, auth: true},
		"pool_setEpochDelay":           {fn: s.handleSetEpochDelay, auth: true},
		"pool_overrideTicketMaturity":  {fn: s.handleOverrideTicketMaturity, auth: true},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allow(r) {
		observability.RPC().RecordThrottle()
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	requestID := uuid.NewString()
	start := time.Now()

	rt, ok := s.routeTable[req.Method]
	if !ok {
		observability.RPC().Observe(req.Method, codeMethodNotFound, time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	if rt.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.RPC().Observe(req.Method, authErr.Code, time.Since(start))
			s.logger.Warn("rpc auth rejected", "requestId", requestID, "method", req.Method)
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	result, rpcErr := rt.fn(req)
	duration := time.Since(start)
	if rpcErr != nil {
		observability.RPC().Observe(req.Method, rpcErr.Code, duration)
		s.logger.Warn("rpc request failed",
			"requestId", requestID, "method", req.Method,
			"code", rpcErr.Code, "error", rpcErr.Message, "durationMs", duration.Milliseconds())
		writeError(w, httpStatusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	observability.RPC().Observe(req.Method, 0, duration)
	s.logger.Debug("rpc request served",
		"requestId", requestID, "method", req.Method, "durationMs", duration.Milliseconds())
	writeResult(w, req.ID, result)
}

func httpStatusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeInvalidParams, codeInvalidRequest, codeParseError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.mu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[host] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
