package proxyserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-logr/logr"
	"golang.org/x/net/websocket"
)

// webSocketHandler accepts any origin; the proxy has no browser session to protect.
func (s *Server) webSocketHandler() http.Handler {
	return websocket.Server{Handler: s.serveWebSocket}
}

/*
Proxies every frame received on the websocket, one at a time, answering each
with the same envelope GET/POST /proxy/{method} would return
*/
func (s *Server) serveWebSocket(conn *websocket.Conn) {
	ctx := conn.Request().Context()
	logger := logr.FromContextOrDiscard(ctx)
	logger.V(1).Info("Websocket client connected", "remote", conn.Request().RemoteAddr)
	defer conn.Close()

	for {
		var frame ProxyFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			if errors.Is(err, io.EOF) {
				logger.V(1).Info("Websocket client disconnected")
				return
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if sendErr := websocket.JSON.Send(conn, FailureEnvelope{Error: FailureError{Kind: kindBadRequest, Message: err.Error()}}); sendErr != nil {
					return
				}
				continue
			}
			logger.Info("Websocket receive failed", "error", err.Error())
			return
		}

		var reply any
		if frame.Method == "" {
			reply = FailureEnvelope{Error: FailureError{Kind: kindBadRequest, Message: "frame has no method"}}
		} else {
			_, reply = s.forward(ctx, frame.Method, nonNil(frame.Params))
		}
		if err := websocket.JSON.Send(conn, reply); err != nil {
			logger.Info("Websocket send failed", "error", err.Error())
			return
		}
	}
}
