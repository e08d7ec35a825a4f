package proxyserver

import (
	"context"
	"encoding/json"
	"net/http"

	"host/electrumxproxy/tcpconnection"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/go-logr/logr"
)

// JSON-RPC error codes returned by the /rpc front
const (
	codeUnreachable = -32000
	codeTimeout     = -32001
	codeBadResponse = -32002
	codeBackend     = -32003
	codeUnavailable = -32004
)

// ProxyHandler is registered as the "Proxy" namespace, so callers invoke
// Proxy.Call and Proxy.Health.
type ProxyHandler struct {
	server *Server
}

/*
Forwards a call to ElectrumX and returns its result member

params:

	method: ElectrumX method name
	params: positional parameters for it
*/
func (h *ProxyHandler) Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	status, body := h.server.forward(withServerLogger(ctx, h.server), method, nonNil(params))
	switch envelope := body.(type) {
	case SuccessEnvelope:
		return envelope.Response, nil
	case FailureEnvelope:
		return nil, rpcError(status, envelope.Error)
	}
	return nil, &jsonrpc.JSONRPCError{Code: codeUnavailable, Message: "unexpected proxy outcome"}
}

// Health mirrors GET /proxy/health.
func (h *ProxyHandler) Health(ctx context.Context) (string, error) {
	if err := h.server.bridge.Ping(ctx); err != nil {
		return "", &jsonrpc.JSONRPCError{
			Code:    codeUnreachable,
			Message: "ElectrumX unreachable",
		}
	}
	return "healthy", nil
}

func rpcError(status int, failure FailureError) *jsonrpc.JSONRPCError {
	err := &jsonrpc.JSONRPCError{Code: codeUnavailable, Message: failure.Message}
	switch {
	case failure.Kind == kindRpc:
		err.Code = codeBackend
		err.Message = failure.Message + ": " + string(failure.RpcError)
	case failure.Kind == string(tcpconnection.KindDecode):
		err.Code = codeBadResponse
	case status == http.StatusGatewayTimeout:
		err.Code = codeTimeout
	case status == http.StatusBadGateway:
		err.Code = codeUnreachable
	}
	return err
}

// Keeps the request scoped logger when the context carries one.
func withServerLogger(ctx context.Context, s *Server) context.Context {
	if _, err := logr.FromContext(ctx); err == nil {
		return ctx
	}
	return logr.NewContext(ctx, s.logger.WithName("rpc"))
}

func (s *Server) rpcHandler() http.Handler {
	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("Proxy", &ProxyHandler{server: s})
	return rpcServer
}
