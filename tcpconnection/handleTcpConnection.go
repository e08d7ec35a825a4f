package tcpconnection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const chunkSize = 1024

/*
Connecting to ElectrumX

params:

	ctx: cancels the dial
	address: host:port of the ElectrumX TCP endpoint
	timeout: upper bound on the dial itself
*/
func Connect(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Address: address, Err: err}
	}
	return conn, nil
}

/*
Disconnect from ElectrumX
*/
func Disconnect(conn net.Conn) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// encodeRequest renders one request line: compact JSON followed by a single '\n'.
func encodeRequest(method string, params []json.RawMessage) ([]byte, error) {
	if params == nil {
		params = []json.RawMessage{}
	}
	line, err := json.Marshal(RpcRequest{
		JsonRpc: protocolVersion,
		Method:  method,
		Params:  params,
		Id:      requestId,
	})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// writeRequest writes the whole line; net.Conn.Write only returns early on error.
func writeRequest(conn net.Conn, line []byte, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return &Error{Kind: KindWrite, Address: remote(conn), Err: err}
	}
	if _, err := conn.Write(line); err != nil {
		return classify(KindWrite, conn, err)
	}
	return nil
}

/*
Reads until the first newline, then drops everything after it.

A read that hits end of stream returns whatever was accumulated together with
closed=true so the caller can retire the connection. Every individual read is
bounded by timeout.
*/
func readLine(conn net.Conn, timeout time.Duration) (line []byte, closed bool, err error) {
	var buffer []byte
	chunk := make([]byte, chunkSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, false, &Error{Kind: KindRead, Address: remote(conn), Err: err}
		}
		n, readErr := conn.Read(chunk)
		buffer = append(buffer, chunk[:n]...)

		if index := bytes.IndexByte(buffer, '\n'); index >= 0 {
			return buffer[:index+1], readErr != nil, nil
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if len(buffer) == 0 {
					return nil, true, &Error{Kind: KindEOF, Address: remote(conn), Err: io.ErrUnexpectedEOF}
				}
				return buffer, true, nil
			}
			return nil, false, classify(KindRead, conn, readErr)
		}
		if n == 0 {
			return buffer, false, nil
		}
	}
}

// decodeResponse replaces ill-formed UTF-8 before parsing rather than rejecting it.
func decodeResponse(line []byte) (*RpcResponse, error) {
	text, _, err := transform.Bytes(runes.ReplaceIllFormed(), line)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}
	var response RpcResponse
	if err := json.Unmarshal(text, &response); err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}
	return &response, nil
}

func classify(kind Kind, conn net.Conn, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		kind = KindTimeout
	} else {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = KindTimeout
		}
	}
	return &Error{Kind: kind, Address: remote(conn), Err: err}
}

func remote(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
