package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"findare/core"
	"findare/native/lostfound"
	"findare/observability"
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

	codeForbidden         = -32041
	codeInvalidTransition = -32042
	codeConstraint        = -32043
	codeConflict          = -32044
	codeNotFound          = -32045
	codeInternal          = -32046
)

// AuthTokenEnv names the environment variable holding the bearer token that
// protects mutating methods. When unset the server runs open, which is only
// appropriate for local development.
const AuthTokenEnv = "FINDARE_RPC_TOKEN"

// Server exposes the lost-and-found protocol over JSON-RPC 2.0.
type Server struct {
	ledger          *core.Ledger
	logger          *slog.Logger
	metrics         *observability.ModuleMetrics
	authToken       string
	minReward       *big.Int
	minClaimDeposit *big.Int
}

// NewServer constructs a server bound to the given ledger.
func NewServer(ledger *core.Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:          ledger,
		logger:          logger,
		metrics:         observability.Metrics(),
		authToken:       strings.TrimSpace(os.Getenv(AuthTokenEnv)),
		minReward:       lostfound.MinReward,
		minClaimDeposit: lostfound.MinClaimDeposit,
	}
}

// SetPolicyLimits overrides the admission thresholds applied before a
// transition is attempted. Nil values keep the built-in defaults.
func (s *Server) SetPolicyLimits(minReward, minClaimDeposit *big.Int) {
	if minReward != nil {
		s.minReward = minReward
	}
	if minClaimDeposit != nil {
		s.minClaimDeposit = minClaimDeposit
	}
}

// Router builds the HTTP handler: JSON-RPC on POST /, liveness on /healthz and
// prometheus metrics on /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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
	w.Header().Set("Content-Type", "application/json")
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
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request_too_large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}

	started := time.Now()
	outcome := s.dispatch(w, r, &req)
	s.metrics.ObserveRequest(req.Method, outcome, time.Since(started))
}

// mutating reports whether a method changes ledger state and therefore needs
// bearer-token auth when a token is configured.
func mutating(method string) bool {
	switch method {
	case "findare_initialize", "findare_createLostPost", "findare_submitFoundReport",
		"findare_approveFoundReport", "findare_rejectFoundReport",
		"findare_createFoundListing", "findare_claimFoundListing",
		"findare_approveClaim", "findare_rejectClaim", "findare_mint":
		return true
	default:
		return false
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if mutating(req.Method) {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.ObserveError(req.Method, fmt.Sprintf("%d", authErr.Code))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return "unauthorized"
		}
	}
	handler, ok := s.handlers()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return "unknown_method"
	}
	if err := handler(w, req); err != nil {
		code, message := mapEngineError(err)
		s.metrics.ObserveError(req.Method, fmt.Sprintf("%d", code))
		s.logger.Warn("rpc request failed",
			slog.String("method", req.Method),
			slog.Int("code", code),
			slog.Any("error", err))
		writeError(w, httpStatusFor(code), req.ID, code, message, err.Error())
		return "error"
	}
	return "ok"
}

type handlerFunc func(http.ResponseWriter, *RPCRequest) error

func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"findare_initialize":         s.handleInitialize,
		"findare_createLostPost":     s.handleCreateLostPost,
		"findare_submitFoundReport":  s.handleSubmitFoundReport,
		"findare_approveFoundReport": s.handleApproveFoundReport,
		"findare_rejectFoundReport":  s.handleRejectFoundReport,
		"findare_createFoundListing": s.handleCreateFoundListing,
		"findare_claimFoundListing":  s.handleClaimFoundListing,
		"findare_approveClaim":       s.handleApproveClaim,
		"findare_rejectClaim":        s.handleRejectClaim,
		"findare_getConfig":          s.handleGetConfig,
		"findare_getLostPost":        s.handleGetLostPost,
		"findare_listLostPosts":      s.handleListLostPosts,
		"findare_getFoundListing":    s.handleGetFoundListing,
		"findare_listFoundListings":  s.handleListFoundListings,
		"findare_getClaimTicket":     s.handleGetClaimTicket,
		"findare_getBalance":         s.handleGetBalance,
		"findare_mint":               s.handleMint,
	}
}

// invalidParams wraps a parameter decoding failure so mapEngineError can route
// it to the JSON-RPC invalid-params code.
type invalidParamsError struct{ err error }

func (e invalidParamsError) Error() string { return e.err.Error() }
func (e invalidParamsError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return invalidParamsError{err: fmt.Errorf(format, args...)}
}

func mapEngineError(err error) (int, string) {
	var paramErr invalidParamsError
	switch {
	case errors.As(err, &paramErr):
		return codeInvalidParams, "invalid_params"
	case errors.Is(err, lostfound.ErrUnauthorized), errors.Is(err, lostfound.ErrSelfDealing):
		return codeForbidden, "forbidden"
	case errors.Is(err, lostfound.ErrInvalidStatus), errors.Is(err, lostfound.ErrNotInitialized):
		return codeInvalidTransition, "invalid_transition"
	case errors.Is(err, lostfound.ErrConstraint), errors.Is(err, lostfound.ErrInsufficientFunds):
		return codeConstraint, "constraint_violation"
	case errors.Is(err, lostfound.ErrSequenceConflict), errors.Is(err, lostfound.ErrAddressOccupied):
		return codeConflict, "conflict"
	case errors.Is(err, lostfound.ErrNotFound):
		return codeNotFound, "not_found"
	default:
		return codeInternal, "internal_error"
	}
}

func httpStatusFor(code int) int {
	switch code {
	case codeInvalidParams, codeConstraint:
		return http.StatusBadRequest
	case codeForbidden:
		return http.StatusForbidden
	case codeInvalidTransition, codeConflict:
		return http.StatusConflict
	case codeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams("decode params: %w", err)
	}
	return nil
}
