package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/metrics"
	"github.com/anstrom/scanvault/internal/services"
	"github.com/anstrom/scanvault/internal/storage"
)

const (
	rpcVersion = "2.0"

	rpcWriteWait      = 10 * time.Second
	rpcPongWait       = 60 * time.Second
	rpcPingPeriod     = 30 * time.Second
	rpcMaxMessageSize = 10 << 20
	// rpcMaxInFlight bounds the calls a single session runs concurrently.
	rpcMaxInFlight = 10
)

// JSON-RPC 2.0 error codes. The -320xx range is reserved for
// application errors.
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603

	RPCReportRejected = -32001
	RPCUnavailable    = -32003
	RPCNotFound       = -32004
	RPCTimeout        = -32008
	RPCTooLarge       = -32013
)

// RPCRequest is a JSON-RPC 2.0 request. A request without an id is a
// notification and gets no response.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCResponse carries either a result or an error.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object. Data holds the scanvault error code.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

type rpcMethod func(ctx context.Context, params json.RawMessage) (interface{}, error)

type uploadScanParams struct {
	Base64Data string `json:"base64_data" validate:"required"`
}

type pageParams struct {
	Page storage.PageRequest `json:"page"`
}

func (p *pageParams) normalize() {
	p.Page = p.Page.Normalize()
}

// normalizer is implemented by params that fill in defaults before validation.
type normalizer interface {
	normalize()
}

type scanParams struct {
	ScanID string `json:"scan_id" validate:"required"`
}

type hostParams struct {
	HostID string `json:"host_id" validate:"required"`
}

// RPCHandler serves JSON-RPC sessions over websocket connections.
type RPCHandler struct {
	store    storage.Store
	ingest   Ingester
	logger   *logging.Logger
	metrics  *metrics.PrometheusMetrics
	upgrader websocket.Upgrader
	validate *validator.Validate
	methods  map[string]rpcMethod

	mu       sync.Mutex
	sessions map[*rpcSession]struct{}
	closed   bool
}

// NewRPCHandler creates a handler dispatching to store and ingest.
func NewRPCHandler(
	store storage.Store,
	ingest Ingester,
	logger *logging.Logger,
	m *metrics.PrometheusMetrics,
) *RPCHandler {
	h := &RPCHandler{
		store:   store,
		ingest:  ingest,
		logger:  logger.WithFields("handler", "rpc"),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.New(),
		sessions: make(map[*rpcSession]struct{}),
	}
	h.methods = map[string]rpcMethod{
		"upload_scan": h.uploadScan,
		"list_scans":  h.listScans,
		"get_scan":    h.getScan,
		"list_hosts":  h.listHosts,
		"get_host":    h.getHost,
	}
	return h
}

// ServeHTTP upgrades the connection and serves requests until the peer
// disconnects or the handler shuts down.
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade RPC connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	session := newRPCSession(h, conn, r.RemoteAddr)
	if !h.register(session) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(rpcWriteWait))
		_ = conn.Close()
		return
	}
	defer h.unregister(session)

	h.logger.Info("RPC session opened", "remote_addr", session.remote)
	session.serve()
	h.logger.Info("RPC session closed", "remote_addr", session.remote)
}

// Shutdown closes every open session and refuses new ones.
func (h *RPCHandler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for session := range h.sessions {
		session.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *RPCHandler) register(s *rpcSession) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	h.metrics.AddRPCSessions(1)
	return true
}

func (h *RPCHandler) unregister(s *rpcSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		h.metrics.AddRPCSessions(-1)
	}
}

// dispatch runs one raw message and returns the response to send, or nil
// for notifications.
func (h *RPCHandler) dispatch(ctx context.Context, data []byte, remote string) *RPCResponse {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return errorResponse(nil, &RPCError{Code: RPCInvalidRequest, Message: "batch requests are not supported"})
	}

	var req RPCRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return errorResponse(nil, &RPCError{Code: RPCParseError, Message: "parse error: " + err.Error()})
	}
	notification := len(req.ID) == 0

	if req.JSONRPC != rpcVersion || req.Method == "" {
		h.metrics.IncrementRPCCalls("invalid", metrics.StatusError)
		if notification {
			return nil
		}
		return errorResponse(req.ID, &RPCError{Code: RPCInvalidRequest, Message: "invalid request"})
	}

	method, ok := h.methods[req.Method]
	if !ok {
		h.metrics.IncrementRPCCalls("unknown", metrics.StatusError)
		if notification {
			return nil
		}
		return errorResponse(req.ID, &RPCError{Code: RPCMethodNotFound, Message: "method not found: " + req.Method})
	}

	h.logger.Debug("RPC call", "remote_addr", remote, "method", req.Method)
	result, err := method(ctx, req.Params)
	if err != nil {
		h.metrics.IncrementRPCCalls(req.Method, metrics.StatusError)
		rpcErr := toRPCError(err)
		if rpcErr.Code == RPCInternalError {
			h.logger.Error("RPC call failed", "remote_addr", remote, "method", req.Method, "error", err)
		}
		if notification {
			return nil
		}
		return errorResponse(req.ID, rpcErr)
	}

	h.metrics.IncrementRPCCalls(req.Method, metrics.StatusSuccess)
	if notification {
		return nil
	}
	if result == nil {
		result = struct{}{}
	}
	return &RPCResponse{JSONRPC: rpcVersion, ID: req.ID, Result: result}
}

func (h *RPCHandler) decode(params json.RawMessage, dst interface{}) error {
	if len(params) > 0 {
		if err := json.Unmarshal(params, dst); err != nil {
			return &RPCError{Code: RPCInvalidParams, Message: "invalid params: " + err.Error()}
		}
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := h.validate.Struct(dst); err != nil {
		return &RPCError{Code: RPCInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func (h *RPCHandler) uploadScan(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params uploadScanParams
	if err := h.decode(raw, &params); err != nil {
		return nil, err
	}
	document, err := base64.StdEncoding.DecodeString(params.Base64Data)
	if err != nil {
		return nil, &RPCError{Code: RPCInvalidParams, Message: "base64_data is not valid base64"}
	}
	return h.ingest.Ingest(ctx, services.SourceRPC, document)
}

func (h *RPCHandler) listScans(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params pageParams
	if err := h.decode(raw, &params); err != nil {
		return nil, err
	}
	return h.store.ListScans(ctx, params.Page)
}

func (h *RPCHandler) getScan(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params scanParams
	if err := h.decode(raw, &params); err != nil {
		return nil, err
	}
	return h.store.GetScan(ctx, params.ScanID)
}

func (h *RPCHandler) listHosts(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params pageParams
	if err := h.decode(raw, &params); err != nil {
		return nil, err
	}
	return h.store.ListHosts(ctx, params.Page)
}

func (h *RPCHandler) getHost(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params hostParams
	if err := h.decode(raw, &params); err != nil {
		return nil, err
	}
	return h.store.GetHost(ctx, params.HostID)
}

func errorResponse(id json.RawMessage, rpcErr *RPCError) *RPCResponse {
	return &RPCResponse{JSONRPC: rpcVersion, ID: id, Error: rpcErr}
}

// toRPCError maps an error to its JSON-RPC error object. Internal failures
// are reported without detail.
func toRPCError(err error) *RPCError {
	if rpcErr, ok := err.(*RPCError); ok {
		return rpcErr
	}

	code := errors.GetCode(err)
	data := map[string]string{"code": string(code)}
	switch httpStatus(err) {
	case http.StatusBadRequest:
		return &RPCError{Code: RPCInvalidParams, Message: err.Error(), Data: data}
	case http.StatusUnprocessableEntity, http.StatusConflict:
		return &RPCError{Code: RPCReportRejected, Message: err.Error(), Data: data}
	case http.StatusNotFound:
		return &RPCError{Code: RPCNotFound, Message: err.Error(), Data: data}
	case http.StatusRequestEntityTooLarge:
		return &RPCError{Code: RPCTooLarge, Message: err.Error(), Data: data}
	case http.StatusServiceUnavailable:
		return &RPCError{Code: RPCUnavailable, Message: err.Error(), Data: data}
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return &RPCError{Code: RPCTimeout, Message: err.Error(), Data: data}
	default:
		return &RPCError{Code: RPCInternalError, Message: "internal error", Data: data}
	}
}

// rpcSession is one websocket connection. Requests are handled
// concurrently; responses are written one at a time.
type rpcSession struct {
	handler *RPCHandler
	conn    *websocket.Conn
	remote  string

	ctx    context.Context
	cancel context.CancelFunc
	calls  sync.WaitGroup
	slots  chan struct{}

	writeMu sync.Mutex
}

func newRPCSession(h *RPCHandler, conn *websocket.Conn, remote string) *rpcSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &rpcSession{
		handler: h,
		conn:    conn,
		remote:  remote,
		ctx:     ctx,
		cancel:  cancel,
		slots:   make(chan struct{}, rpcMaxInFlight),
	}
}

func (s *rpcSession) serve() {
	defer func() {
		s.cancel()
		s.calls.Wait()
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(rpcMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(rpcPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(rpcPongWait))
	})

	go s.heartbeat()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.handler.logger.Debug("RPC connection lost", "remote_addr", s.remote, "error", err)
			}
			return
		}

		select {
		case s.slots <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		s.calls.Add(1)
		go func() {
			defer func() {
				<-s.slots
				s.calls.Done()
			}()
			s.handle(data)
		}()
	}
}

func (s *rpcSession) handle(data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			s.handler.logger.Error("RPC handler panic recovered", "remote_addr", s.remote, "panic", rec)
			s.write(errorResponse(nil, &RPCError{Code: RPCInternalError, Message: "internal error"}))
		}
	}()

	if resp := s.handler.dispatch(s.ctx, data, s.remote); resp != nil {
		s.write(resp)
	}
}

func (s *rpcSession) write(resp *RPCResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(rpcWriteWait))
	if err := s.conn.WriteJSON(resp); err != nil {
		s.handler.logger.Debug("Failed to write RPC response", "remote_addr", s.remote, "error", err)
	}
}

// heartbeat pings the peer until the session ends.
func (s *rpcSession) heartbeat() {
	ticker := time.NewTicker(rpcPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(rpcWriteWait)); err != nil {
				s.handler.logger.Debug("RPC ping failed", "remote_addr", s.remote, "error", err)
				return
			}
		}
	}
}

func (s *rpcSession) close(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(rpcWriteWait))
	_ = s.conn.Close()
}
