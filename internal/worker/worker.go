// Package worker runs the background side of the workspace.
//
// A Worker owns the script store and the analysis engine. It reads
// commands and queries from a protocol connection on its own goroutine and
// answers every query with exactly one response.
package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/protocol"
	"github.com/dshills/deuce/internal/store"
)

// ErrNoEngineFactory is returned by New when no engine factory is configured.
var ErrNoEngineFactory = errors.New("worker: no engine factory")

// Option configures a Worker.
type Option func(*Worker)

// WithBaselineLoader sets the loader run while initializing.
func WithBaselineLoader(l analysis.BaselineLoader) Option {
	return func(w *Worker) {
		w.loader = l
	}
}

// WithEngineFactory sets the factory that builds the engine once the
// baseline is loaded.
func WithEngineFactory(f analysis.EngineFactory) Option {
	return func(w *Worker) {
		w.factory = f
	}
}

// WithStoreOptions configures the script store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(w *Worker) {
		w.storeOpts = append(w.storeOpts, opts...)
	}
}

// WithLogger overrides the worker's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(w *Worker) {
		w.log = log
	}
}

// Worker is the background analysis loop.
type Worker struct {
	conn      *protocol.Conn
	store     *store.Store
	storeOpts []store.Option
	loader    analysis.BaselineLoader
	factory   analysis.EngineFactory
	log       commonlog.Logger

	state      atomic.Int32
	engine     analysis.Engine
	baseline   *analysis.Baseline
	failReason string

	// Messages received while initializing, replayed in order afterwards.
	queue []protocol.Envelope

	done chan struct{}
}

type initResult struct {
	engine   analysis.Engine
	baseline *analysis.Baseline
	err      error
}

// New creates a worker serving conn.
func New(conn *protocol.Conn, opts ...Option) (*Worker, error) {
	w := &Worker{
		conn:   conn,
		loader: analysis.DefaultBaselineLoader(),
		log:    commonlog.GetLogger("deuce.worker"),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.factory == nil {
		return nil, ErrNoEngineFactory
	}
	w.store = store.New(w.storeOpts...)
	return w, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	prev := State(w.state.Swap(int32(s)))
	if prev != s {
		w.log.Debugf("state %s -> %s", prev, s)
	}
}

// Run initializes the worker and serves the connection until it closes or
// ctx is cancelled. A peer closing the channel is not an error.
func (w *Worker) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return werrors.Newf(werrors.KindProtocol, "run", "worker already %s", w.State())
	}
	defer w.shutdown()

	inbox := make(chan protocol.Envelope)
	recvErr := make(chan error, 1)
	go w.readLoop(inbox, recvErr)

	initDone := make(chan initResult, 1)
	go w.initialize(ctx, initDone)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvErr:
			if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrClosed) {
				return nil
			}
			return err
		case res := <-initDone:
			w.finishInit(ctx, res)
		case env := <-inbox:
			w.handle(ctx, env)
		}
	}
}

func (w *Worker) readLoop(inbox chan<- protocol.Envelope, recvErr chan<- error) {
	for {
		env, err := w.conn.Recv()
		if err != nil {
			if werrors.KindOf(err) == werrors.KindProtocol && !errors.Is(err, protocol.ErrClosed) {
				w.log.Warningf("dropping undecodable message: %s", err)
				continue
			}
			recvErr <- err
			return
		}
		select {
		case inbox <- env:
		case <-w.done:
			return
		}
	}
}

func (w *Worker) initialize(ctx context.Context, done chan<- initResult) {
	baseline, err := w.loader.LoadBaseline(ctx)
	if err != nil {
		done <- initResult{err: err}
		return
	}
	engine, err := w.buildEngine(baseline)
	done <- initResult{engine: engine, baseline: baseline, err: err}
}

func (w *Worker) buildEngine(baseline *analysis.Baseline) (engine analysis.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = werrors.Newf(werrors.KindEngine, "newEngine", "panic: %v", r)
		}
	}()
	engine, err = w.factory(w.store, baseline)
	if err == nil && engine == nil {
		err = werrors.New(werrors.KindEngine, "newEngine", "factory returned no engine")
	}
	return engine, err
}

func (w *Worker) finishInit(ctx context.Context, res initResult) {
	if res.err != nil {
		w.failReason = res.err.Error()
		w.setState(StateFailed)
		w.log.Errorf("initialization failed: %s", res.err)
		w.send(protocol.KindInitFail, protocol.InitFail{Reason: w.failReason})
	} else {
		w.engine = res.engine
		w.baseline = res.baseline
		w.setState(StateReady)
		info := protocol.InitAfter{Engine: res.engine.Name()}
		if res.baseline != nil {
			info.Baseline = res.baseline.Name
			info.Libs = res.baseline.LibNames()
		}
		w.log.Infof("ready: engine %s, baseline %s", info.Engine, info.Baseline)
		w.send(protocol.KindInitAfter, info)
	}

	queued := w.queue
	w.queue = nil
	if len(queued) > 0 {
		w.log.Debugf("replaying %d queued messages", len(queued))
	}
	for _, env := range queued {
		w.dispatch(ctx, env)
	}
}

func (w *Worker) handle(ctx context.Context, env protocol.Envelope) {
	switch w.State() {
	case StateUninitialized, StateInitializing:
		w.queue = append(w.queue, env)
	default:
		w.dispatch(ctx, env)
	}
}

func (w *Worker) shutdown() {
	w.setState(StateClosed)
	close(w.done)
	w.conn.Close()
	if c, ok := w.engine.(analysis.Closer); ok {
		if err := c.Close(); err != nil {
			w.log.Warningf("closing engine: %s", err)
		}
	}
}

func (w *Worker) send(kind protocol.Kind, payload any) {
	if err := w.conn.SendPayload(kind, payload); err != nil {
		w.log.Warningf("send %s: %s", kind, err)
	}
}
