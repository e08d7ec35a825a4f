// HTTP-side schemas of the proxy
package proxyserver

import "encoding/json"

// Body of POST /proxy/{method}
type ProxyParams struct {
	Params []json.RawMessage `json:"params"`
}

type SuccessEnvelope struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response"`
}

type FailureEnvelope struct {
	Success bool         `json:"success"`
	Error   FailureError `json:"error"`
}

type FailureError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// RpcError carries the backend's error member when Kind is "rpc".
	RpcError json.RawMessage `json:"rpcError,omitempty"`
}

// One websocket frame in either direction uses ProxyFrame inbound and the
// HTTP envelopes outbound.
type ProxyFrame struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

const infoDocument = `{"success":true,"info":{"note":"Atomicals ElectrumX Digital Object Proxy Online","usageInfo":{"note":"The service offers both POST and GET requests for proxying requests to ElectrumX. To handle larger broadcast transaction payloads use the POST method instead of GET.","POST":"POST /proxy/:method with string encoded array in the field \"params\" in the request body. ","GET":"GET /proxy/:method?params=[\"value1\"] with string encoded array in the query argument \"params\" in the URL."},"healthCheck":"GET /proxy/health","github":"https://github.com/atomicals/electrumx-proxy","license":"MIT"}}`
