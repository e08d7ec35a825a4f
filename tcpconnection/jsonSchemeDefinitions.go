package tcpconnection

import "encoding/json"

// JSON schemas exchanged with ElectrumX, one document per line

const (
	protocolVersion = "2.0"
	// Only one request is ever in flight on the shared connection, so the id
	// never has to be correlated with anything.
	requestId = 1
)

type RpcRequest struct {
	JsonRpc string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	Id      int               `json:"id"`
}

type RpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Id     int             `json:"id"`
}

// HasError reports whether the backend populated the error member.
func (r *RpcResponse) HasError() bool {
	return !isNull(r.Error)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
