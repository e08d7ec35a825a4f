package proxyserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"host/electrumxproxy/tcpconnection"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

const (
	kindBadRequest  = "bad_request"
	kindRpc         = "rpc"
	kindUnavailable = "unavailable"
	kindInternal    = "internal"

	requestIdHeader = "X-Request-Id"
)

// Bridge is the backend the HTTP front forwards to. *tcpconnection.Bridge implements it.
type Bridge interface {
	Call(ctx context.Context, method string, params []json.RawMessage) (*tcpconnection.RpcResponse, error)
	Ping(ctx context.Context) error
}

type Server struct {
	bridge  Bridge
	logger  logr.Logger
	metrics *metrics.Set
	// Extra sets written by /metrics after the server's own.
	exported []*metrics.Set
}

/*
New creates the HTTP front

params:

	bridge: backend every proxied call goes to
	logger: request scoped loggers derive from it
	set: server counters are registered here, nil for a private set
	exported: further sets (e.g. the bridge's) published on /metrics
*/
func New(bridge Bridge, logger logr.Logger, set *metrics.Set, exported ...*metrics.Set) *Server {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	if set == nil {
		set = metrics.NewSet()
	}
	return &Server{
		bridge:   bridge,
		logger:   logger.WithName("proxyserver"),
		metrics:  set,
		exported: exported,
	}
}

// Handler returns the routed handler with request ids and JSON content type applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /proxy/health", s.handleHealth)
	mux.HandleFunc("GET /proxy/{method}", s.handleProxy)
	mux.HandleFunc("POST /proxy/{method}", s.handleProxy)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("GET /ws", s.webSocketHandler())
	mux.Handle("POST /rpc", s.rpcHandler())
	return s.withRequestId(setJSONContentType(mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, infoDocument)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.bridge.Ping(r.Context()); err != nil {
		logr.FromContextOrDiscard(r.Context()).Info("Health check failed", "error", err.Error())
		s.count("health", "error")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "ElectrumX unreachable\n")
		return
	}
	s.count("health", "ok")
	io.WriteString(w, "ElectrumX healthy\n")
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")
	params, err := readParams(r)
	if err != nil {
		s.count("proxy", "error")
		writeFailure(w, http.StatusBadRequest, FailureError{Kind: kindBadRequest, Message: err.Error()})
		return
	}

	status, body := s.forward(r.Context(), method, params)
	writeJSON(w, status, body)
}

/*
Forwards one call and shapes the outcome, shared by every front

params:

	method: ElectrumX method name taken from the caller verbatim
	params: positional parameters
*/
func (s *Server) forward(ctx context.Context, method string, params []json.RawMessage) (int, any) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("method", method)
	logger.V(1).Info("Proxying call", "params", len(params))

	response, err := s.bridge.Call(ctx, method, params)
	if err != nil {
		logger.Error(err, "ElectrumX call failed")
		s.count("proxy", "error")
		status, failure := describeFailure(err)
		return status, FailureEnvelope{Error: failure}
	}
	if response.HasError() {
		logger.Info("ElectrumX returned an error", "error", string(response.Error))
		s.count("proxy", "error")
		return http.StatusBadGateway, FailureEnvelope{Error: FailureError{
			Kind:     kindRpc,
			Message:  "ElectrumX returned an error",
			RpcError: response.Error,
		}}
	}
	s.count("proxy", "ok")
	return http.StatusOK, SuccessEnvelope{Success: true, Response: response.Result}
}

// describeFailure maps a bridge error to an HTTP status and envelope body.
func describeFailure(err error) (int, FailureError) {
	if kind := tcpconnection.KindOf(err); kind != "" {
		status := http.StatusBadGateway
		if kind == tcpconnection.KindTimeout {
			status = http.StatusGatewayTimeout
		}
		return status, FailureError{Kind: string(kind), Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, FailureError{Kind: kindUnavailable, Message: "gave up waiting for the ElectrumX connection"}
	}
	return http.StatusInternalServerError, FailureError{Kind: kindInternal, Message: err.Error()}
}

// readParams accepts {"params":[...]} in the body, or params=[...] in the
// query string. Neither present means no parameters.
func readParams(r *http.Request) ([]json.RawMessage, error) {
	if r.Method == http.MethodPost {
		var body ProxyParams
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return []json.RawMessage{}, nil
			}
			return nil, fmt.Errorf("request body: %w", err)
		}
		return nonNil(body.Params), nil
	}

	query := r.URL.Query().Get("params")
	if query == "" {
		return []json.RawMessage{}, nil
	}
	var params []json.RawMessage
	if err := json.Unmarshal([]byte(query), &params); err != nil {
		return nil, fmt.Errorf("query argument params must be a JSON array: %w", err)
	}
	return nonNil(params), nil
}

func nonNil(params []json.RawMessage) []json.RawMessage {
	if params == nil {
		return []json.RawMessage{}
	}
	return params
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.metrics.WritePrometheus(w)
	for _, set := range s.exported {
		set.WritePrometheus(w)
	}
}

func (s *Server) count(route, outcome string) {
	s.metrics.GetOrCreateCounter(fmt.Sprintf(`proxy_requests_total{route=%q,outcome=%q}`, route, outcome)).Inc()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, failure FailureError) {
	writeJSON(w, status, FailureEnvelope{Error: failure})
}

// Handlers that serve something else override it.
func setJSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set(requestIdHeader, id)
		logger := s.logger.WithValues("request_id", id, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(logr.NewContext(r.Context(), logger)))
	})
}

/*
Run serves until ctx is cancelled, then shuts down gracefully

params:

	address: listen address, e.g. 0.0.0.0:3000
*/
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	s.logger.Info("Proxy server started", "address", address)

	select {
	case err := <-errs:
		return fmt.Errorf("could not start server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	s.logger.Info("Proxy server stopped")
	return nil
}
