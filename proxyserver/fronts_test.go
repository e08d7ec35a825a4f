package proxyserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"host/electrumxproxy/tcpconnection"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func dialWebSocket(t *testing.T, bridge Bridge) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(New(bridge, logr.Discard(), nil).Handler())
	t.Cleanup(server.Close)

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", "", "http://localhost/")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketProxiesFrames(t *testing.T) {
	bridge := resultBridge(`["ElectrumX 1.16.0","1.4"]`)
	conn := dialWebSocket(t, bridge)

	for i := 0; i < 3; i++ {
		require.NoError(t, websocket.JSON.Send(conn, ProxyFrame{
			Method: "server.version",
			Params: []json.RawMessage{json.RawMessage(`"client"`), json.RawMessage(`"1.4"`)},
		}))
		var reply SuccessEnvelope
		require.NoError(t, websocket.JSON.Receive(conn, &reply))
		assert.True(t, reply.Success)
		assert.JSONEq(t, `["ElectrumX 1.16.0","1.4"]`, string(reply.Response))
	}
	call := bridge.lastCall(t)
	assert.Equal(t, "server.version", call.method)
	assert.Len(t, call.params, 2)
}

func TestWebSocketRejectsBadFrames(t *testing.T) {
	bridge := resultBridge(`1`)
	conn := dialWebSocket(t, bridge)

	require.NoError(t, websocket.Message.Send(conn, "not json"))
	var reply FailureEnvelope
	require.NoError(t, websocket.JSON.Receive(conn, &reply))
	assert.Equal(t, kindBadRequest, reply.Error.Kind)

	require.NoError(t, websocket.JSON.Send(conn, ProxyFrame{}))
	reply = FailureEnvelope{}
	require.NoError(t, websocket.JSON.Receive(conn, &reply))
	assert.Equal(t, kindBadRequest, reply.Error.Kind)

	assert.Empty(t, bridge.calls)
}

func TestWebSocketReportsBridgeFailure(t *testing.T) {
	conn := dialWebSocket(t, &fakeBridge{err: tcpconnection.ErrTimeout})

	require.NoError(t, websocket.JSON.Send(conn, ProxyFrame{Method: "server.version"}))
	var reply FailureEnvelope
	require.NoError(t, websocket.JSON.Receive(conn, &reply))
	assert.False(t, reply.Success)
	assert.Equal(t, "timeout", reply.Error.Kind)
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func postRpc(t *testing.T, bridge Bridge, body string) rpcReply {
	t.Helper()
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	New(bridge, logr.Discard(), nil).Handler().ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)

	var reply rpcReply
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &reply))
	return reply
}

func TestRpcFrontCall(t *testing.T) {
	bridge := resultBridge(`{"confirmed":1000,"unconfirmed":0}`)
	reply := postRpc(t, bridge, `{"jsonrpc":"2.0","method":"Proxy.Call","params":["blockchain.scripthash.get_balance",["abcd"]],"id":7}`)

	assert.Nil(t, reply.Error)
	assert.JSONEq(t, `{"confirmed":1000,"unconfirmed":0}`, string(reply.Result))
	call := bridge.lastCall(t)
	assert.Equal(t, "blockchain.scripthash.get_balance", call.method)
	require.Len(t, call.params, 1)
	assert.JSONEq(t, `"abcd"`, string(call.params[0]))
}

func TestRpcFrontCallFailure(t *testing.T) {
	reply := postRpc(t, &fakeBridge{err: tcpconnection.ErrConnect}, `{"jsonrpc":"2.0","method":"Proxy.Call","params":["server.version",[]],"id":1}`)

	require.NotNil(t, reply.Error)
	assert.NotEmpty(t, reply.Error.Message)
}

func TestRpcFrontHealth(t *testing.T) {
	reply := postRpc(t, resultBridge(`"ok"`), `{"jsonrpc":"2.0","method":"Proxy.Health","params":[],"id":1}`)
	assert.Nil(t, reply.Error)
	assert.JSONEq(t, `"healthy"`, string(reply.Result))

	reply = postRpc(t, &fakeBridge{err: tcpconnection.ErrEOF}, `{"jsonrpc":"2.0","method":"Proxy.Health","params":[],"id":1}`)
	require.NotNil(t, reply.Error)
}

func TestRpcErrorCodes(t *testing.T) {
	assert.EqualValues(t, codeTimeout, rpcError(http.StatusGatewayTimeout, FailureError{Kind: "timeout"}).Code)
	assert.EqualValues(t, codeUnreachable, rpcError(http.StatusBadGateway, FailureError{Kind: "connect"}).Code)
	assert.EqualValues(t, codeBadResponse, rpcError(http.StatusBadGateway, FailureError{Kind: "decode"}).Code)
	assert.EqualValues(t, codeUnavailable, rpcError(http.StatusServiceUnavailable, FailureError{Kind: kindUnavailable}).Code)

	backend := rpcError(http.StatusBadGateway, FailureError{Kind: kindRpc, Message: "ElectrumX returned an error", RpcError: json.RawMessage(`{"code":1}`)})
	assert.EqualValues(t, codeBackend, backend.Code)
	assert.Contains(t, backend.Message, `{"code":1}`)
}
