// Package workspace is the primary-side handle on the analysis worker.
//
// A Client sends commands and queries over a protocol connection and
// correlates responses with waiting callers. Commands return as soon as
// they are written; queries block until their response, the caller's
// context, or the per-request deadline.
package workspace

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/protocol"
	"github.com/dshills/deuce/internal/worker"
)

// DefaultRequestTimeout bounds how long a query waits for its response.
const DefaultRequestTimeout = 10 * time.Second

// CommandFailure reports a command the worker could not apply.
type CommandFailure struct {
	Command  protocol.Kind
	FileName string
	Err      error
}

// Option configures a Client.
type Option func(*Client)

// WithRequestTimeout sets the per-query deadline. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger overrides the client's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithCommandFailedHandler sets the callback for failed commands.
func WithCommandFailedHandler(fn func(CommandFailure)) Option {
	return func(c *Client) {
		c.onCommandFailed = fn
	}
}

type pendingCall struct {
	expect protocol.Kind
	ch     chan protocol.Envelope
}

// Client is the primary side of the workspace channel.
type Client struct {
	conn    *protocol.Conn
	log     commonlog.Logger
	timeout time.Duration

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]*pendingCall

	onCommandFailed func(CommandFailure)

	readyOnce sync.Once
	ready     chan struct{}
	readyErr  error
	info      protocol.InitAfter

	closed     atomic.Bool
	done       chan struct{}
	workerDone chan error
}

// NewClient attaches a client to conn and starts reading from it.
func NewClient(conn *protocol.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		log:     commonlog.GetLogger("deuce.workspace"),
		timeout: DefaultRequestTimeout,
		pending: make(map[int64]*pendingCall),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Spawn starts a worker on an in-process pipe and returns a client for it.
// The worker stops when the client is closed or ctx is cancelled.
func Spawn(ctx context.Context, workerOpts []worker.Option, opts ...Option) (*Client, error) {
	clientConn, workerConn := protocol.Pipe()
	w, err := worker.New(workerConn, workerOpts...)
	if err != nil {
		clientConn.Close()
		return nil, err
	}

	c := NewClient(clientConn, opts...)
	c.workerDone = make(chan error, 1)
	go func() {
		err := w.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Errorf("worker stopped: %s", err)
		}
		c.workerDone <- err
		clientConn.Close()
	}()
	return c, nil
}

// Ready waits for the worker to finish initializing. It returns nil once
// the worker is ready and an EngineError if initialization failed. The
// outcome is decided once.
func (c *Client) Ready(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.readyErr
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case <-c.ready:
			return c.readyErr
		default:
			return protocol.ErrClosed
		}
	}
}

// Info returns what the worker reported when it became ready.
func (c *Client) Info() protocol.InitAfter {
	<-c.ready
	return c.info
}

func (c *Client) resolveReady(err error, info protocol.InitAfter) {
	resolved := false
	c.readyOnce.Do(func() {
		c.readyErr = err
		c.info = info
		close(c.ready)
		resolved = true
	})
	if !resolved {
		c.log.Warningf("ignoring repeated lifecycle message")
	}
}

// Pending returns the number of queries awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the channel. Outstanding queries fail with a ProtocolError.
// For a spawned worker, Close waits for it to stop.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	n := len(c.pending)
	c.pending = make(map[int64]*pendingCall)
	c.mu.Unlock()
	if n > 0 {
		c.log.Debugf("closing with %d pending queries", n)
	}

	err := c.conn.Close()
	if c.workerDone != nil {
		<-c.workerDone
	}
	return err
}

// Call sends a query of kind and decodes its response into result. The
// payload function receives the correlation id to embed.
func (c *Client) Call(ctx context.Context, kind protocol.Kind, payload func(id int64) any, result any) error {
	expect, ok := kind.ResponseKind()
	if !ok {
		return werrors.Newf(werrors.KindInvalidArgument, kind.String(), "%s is not a query", kind)
	}
	if c.closed.Load() {
		return protocol.ErrClosed
	}

	id := c.nextID.Add(1)
	call := &pendingCall{expect: expect, ch: make(chan protocol.Envelope, 1)}

	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.conn.SendPayload(kind, payload(id)); err != nil {
		return werrors.Classify(kind.String(), err)
	}

	var deadline <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline:
		c.log.Warningf("%s #%d timed out after %s", kind, id, c.timeout)
		return werrors.Newf(werrors.KindTimeout, kind.String(), "no response after %s", c.timeout)
	case <-c.done:
		return protocol.ErrClosed
	case env := <-call.ch:
		return decodeResponse(kind, call.expect, env, result)
	}
}

func decodeResponse(kind, expect protocol.Kind, env protocol.Envelope, result any) error {
	op := kind.String()
	if env.Kind != expect {
		return werrors.Newf(werrors.KindProtocol, op, "got %s, want %s", env.Kind, expect)
	}
	var reply protocol.Reply
	if err := env.Decode(&reply); err != nil {
		return err
	}
	if reply.Err != nil {
		return reply.Err.Err(op)
	}
	if result == nil {
		return nil
	}
	return env.Decode(result)
}

// send writes a command.
func (c *Client) send(kind protocol.Kind, payload any) error {
	if c.closed.Load() {
		return protocol.ErrClosed
	}
	if err := c.conn.SendPayload(kind, payload); err != nil {
		return werrors.Classify(kind.String(), err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		env, err := c.conn.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrClosed) {
				c.Close()
				return
			}
			if werrors.KindOf(err) == werrors.KindProtocol {
				c.log.Warningf("dropping undecodable message: %s", err)
				continue
			}
			c.log.Errorf("read: %s", err)
			c.Close()
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	switch {
	case env.Kind == protocol.KindInitAfter:
		var info protocol.InitAfter
		if len(env.Data) > 0 {
			if err := env.Decode(&info); err != nil {
				c.log.Warningf("bad initAfter: %s", err)
			}
		}
		c.resolveReady(nil, info)

	case env.Kind == protocol.KindInitFail:
		var fail protocol.InitFail
		if len(env.Data) > 0 {
			_ = env.Decode(&fail)
		}
		c.resolveReady(werrors.Newf(werrors.KindEngine, "initialize", "worker failed to initialize: %s", fail.Reason), protocol.InitAfter{})

	case env.Kind == protocol.KindCommandFailed:
		var cf protocol.CommandFailed
		if err := env.Decode(&cf); err != nil {
			c.log.Warningf("bad commandFailed: %s", err)
			return
		}
		failure := CommandFailure{Command: cf.Command, FileName: cf.FileName, Err: cf.Err.Err(cf.Command.String())}
		c.log.Warningf("%s %s failed: %s", failure.Command, failure.FileName, failure.Err)
		if c.onCommandFailed != nil {
			go c.onCommandFailed(failure)
		}

	case env.Kind.IsResponse():
		c.deliver(env)

	default:
		c.log.Warningf("ignoring unexpected %s from worker", env.Kind)
	}
}

// deliver hands a response to its caller. Responses with no matching
// pending call are dropped, so a caller is resolved at most once.
func (c *Client) deliver(env protocol.Envelope) {
	id, ok := env.CorrelationID()
	if !ok {
		c.log.Warningf("dropping %s without correlation id", env.Kind)
		return
	}

	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warningf("dropping %s #%d: unknown or already answered", env.Kind, id)
		return
	}
	call.ch <- env
}
