package tcpconnection

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
)

const (
	DefaultDialTimeout = 5 * time.Second
	DefaultReadTimeout = 5 * time.Second
	healthMethod       = "server.version"
)

type Options struct {
	// Address is the host:port of the ElectrumX TCP endpoint.
	Address     string
	DialTimeout time.Duration
	// ReadTimeout bounds every single read while waiting for the response line.
	ReadTimeout time.Duration
	Logger      logr.Logger
	// Metrics receives the bridge counters. A private set is used when nil.
	Metrics *metrics.Set
}

// Bridge owns the single long-lived connection to ElectrumX.
//
// Every call holds the connection exclusively from write to decode, so at most
// one request is on the wire and the constant request id is never ambiguous.
// Any I/O failure retires the connection and the next call dials again.
type Bridge struct {
	address     string
	dialTimeout time.Duration
	readTimeout time.Duration
	logger      logr.Logger
	metrics     *metrics.Set

	// lock is a one-slot semaphore so waiting callers can give up on ctx.
	lock chan struct{}
	conn net.Conn

	refresher *cron.Cron
}

func NewBridge(options Options) *Bridge {
	if options.DialTimeout <= 0 {
		options.DialTimeout = DefaultDialTimeout
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = DefaultReadTimeout
	}
	if options.Logger.GetSink() == nil {
		options.Logger = logr.Discard()
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewSet()
	}
	return &Bridge{
		address:     options.Address,
		dialTimeout: options.DialTimeout,
		readTimeout: options.ReadTimeout,
		logger:      options.Logger.WithName("tcpconnection"),
		metrics:     options.Metrics,
		lock:        make(chan struct{}, 1),
	}
}

func (b *Bridge) acquire(ctx context.Context) error {
	select {
	case b.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) release() {
	<-b.lock
}

// Connect establishes the shared connection eagerly. Calls connect lazily
// anyway, so a failure here is not fatal.
func (b *Bridge) Connect(ctx context.Context) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	_, err := b.connectLocked(ctx)
	return err
}

func (b *Bridge) connectLocked(ctx context.Context) (net.Conn, error) {
	if b.conn != nil {
		return b.conn, nil
	}
	conn, err := Connect(ctx, b.address, b.dialTimeout)
	if err != nil {
		return nil, err
	}
	b.conn = conn
	b.metrics.GetOrCreateCounter(`bridge_connects_total`).Inc()
	b.logger.Info("Connected to ElectrumX", "address", b.address)
	return conn, nil
}

func (b *Bridge) dropLocked(reason error) {
	if b.conn == nil {
		return
	}
	if err := Disconnect(b.conn); err != nil {
		b.logger.V(1).Info("Closing connection failed", "error", err.Error())
	}
	b.conn = nil
	b.logger.Info("Connection to ElectrumX dropped", "address", b.address, "reason", reason.Error())
}

/*
Call sends one JSON-RPC request to ElectrumX and waits for its response line

params:

	ctx: only bounds waiting for the connection; once the request is written the call runs until the response or the read timeout
	method: ElectrumX method, passed through verbatim
	params: positional parameters, nil is sent as []
*/
func (b *Bridge) Call(ctx context.Context, method string, params []json.RawMessage) (*RpcResponse, error) {
	start := time.Now()
	response, err := b.call(ctx, method, params)
	b.metrics.GetOrCreateHistogram(`bridge_call_duration_seconds`).UpdateDuration(start)
	if err != nil {
		if kind := KindOf(err); kind != "" {
			b.metrics.GetOrCreateCounter(fmt.Sprintf(`bridge_errors_total{kind=%q}`, kind)).Inc()
		}
		b.logger.V(1).Info("Call failed", "method", method, "error", err.Error())
		return nil, err
	}
	b.logger.V(1).Info("Call completed", "method", method, "elapsed", time.Since(start).String())
	return response, nil
}

func (b *Bridge) call(ctx context.Context, method string, params []json.RawMessage) (*RpcResponse, error) {
	line, err := encodeRequest(method, params)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	conn, err := b.connectLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := writeRequest(conn, line, b.readTimeout); err != nil {
		b.dropLocked(err)
		return nil, err
	}
	reply, closed, err := readLine(conn, b.readTimeout)
	if err != nil {
		b.dropLocked(err)
		return nil, err
	}
	if closed {
		b.dropLocked(fmt.Errorf("closed by peer"))
	}
	response, err := decodeResponse(reply)
	if err != nil {
		if bridgeErr, ok := err.(*Error); ok {
			bridgeErr.Address = b.address
		}
		return nil, err
	}
	return response, nil
}

// Ping issues server.version with no params, the cheapest call ElectrumX answers.
func (b *Bridge) Ping(ctx context.Context) error {
	_, err := b.Call(ctx, healthMethod, nil)
	return err
}

/*
Refreshing the TCP connection with ElectrumX, closes the current socket and dials again
*/
func (b *Bridge) Refresh(ctx context.Context) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	b.dropLocked(fmt.Errorf("scheduled refresh"))
	b.metrics.GetOrCreateCounter(`bridge_refreshes_total`).Inc()
	if _, err := b.connectLocked(ctx); err != nil {
		return err
	}
	b.logger.Info("Connection refreshed")
	return nil
}

// StartRefresh recycles the connection on a standard five-field cron schedule.
func (b *Bridge) StartRefresh(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.dialTimeout+b.readTimeout)
		defer cancel()
		if err := b.Refresh(ctx); err != nil {
			b.logger.Error(err, "Scheduled refresh failed, next call will reconnect")
		}
	})
	if err != nil {
		return fmt.Errorf("refresh schedule %q: %w", schedule, err)
	}
	b.refresher = c
	c.Start()
	b.logger.Info("Connection refresh scheduled", "schedule", schedule)
	return nil
}

// Close stops the refresh schedule and releases the connection.
func (b *Bridge) Close() error {
	if b.refresher != nil {
		<-b.refresher.Stop().Done()
	}
	b.lock <- struct{}{}
	defer b.release()
	err := Disconnect(b.conn)
	b.conn = nil
	return err
}
