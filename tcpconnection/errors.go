package tcpconnection

import (
	"errors"
	"fmt"
)

// Kind classifies why a call to the backend failed.
type Kind string

const (
	KindConnect Kind = "connect"
	KindWrite   Kind = "write"
	KindRead    Kind = "read"
	KindTimeout Kind = "timeout"
	KindEOF     Kind = "eof"
	KindDecode  Kind = "decode"
)

// Sentinels for errors.Is, matched on Kind only.
var (
	ErrConnect = &Error{Kind: KindConnect}
	ErrWrite   = &Error{Kind: KindWrite}
	ErrRead    = &Error{Kind: KindRead}
	ErrTimeout = &Error{Kind: KindTimeout}
	ErrEOF     = &Error{Kind: KindEOF}
	ErrDecode  = &Error{Kind: KindDecode}
)

// Error is returned by every failed bridge call.
type Error struct {
	Kind Kind
	// Address of the backend, empty for sentinels.
	Address string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tcpconnection: %s failure", e.Kind)
	}
	return fmt.Sprintf("tcpconnection: %s %s: %v", e.Kind, e.Address, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil && t.Address == ""
}

// KindOf returns the Kind of a bridge error, or "" if err did not come from the bridge.
func KindOf(err error) Kind {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Kind
	}
	return ""
}
