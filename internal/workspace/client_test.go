package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/position"
	"github.com/dshills/deuce/internal/protocol"
	"github.com/dshills/deuce/internal/worker"
)

// echoEngine reports each file's length as one diagnostic.
type echoEngine struct {
	host analysis.Host
}

func (e *echoEngine) Name() string { return "echo" }

func (e *echoEngine) SyntacticDiagnostics(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	snap, err := e.host.ScriptSnapshot(fileName)
	if err != nil {
		return nil, err
	}
	return []analysis.Diagnostic{{Message: fileName, Length: snap.Len()}}, nil
}

func (e *echoEngine) SemanticDiagnostics(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	return nil, nil
}

func (e *echoEngine) CompletionsAtPosition(ctx context.Context, fileName string, offset int, memberMode bool) (*analysis.CompletionInfo, error) {
	return &analysis.CompletionInfo{
		IsMemberCompletion: memberMode,
		Entries:            []analysis.CompletionEntry{{Name: fmt.Sprint(offset), Kind: analysis.KindVariable}},
	}, nil
}

func (e *echoEngine) TypeDefinitionAtPosition(ctx context.Context, fileName string, offset int) ([]analysis.DefinitionInfo, error) {
	if offset == 0 {
		return nil, nil
	}
	return []analysis.DefinitionInfo{{FileName: fileName, Name: "x", MinChar: offset}}, nil
}

func (e *echoEngine) EmitOutput(ctx context.Context, fileName string) (*analysis.EmitOutput, error) {
	return &analysis.EmitOutput{OutputFiles: []analysis.OutputFile{{Name: fileName + ".js"}}}, nil
}

func echoFactory(host analysis.Host, _ *analysis.Baseline) (analysis.Engine, error) {
	return &echoEngine{host: host}, nil
}

func spawn(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := Spawn(context.Background(), []worker.Option{worker.WithEngineFactory(echoFactory)}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	return c
}

func ctx5s(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestScenarioEnsureThenFileNames(t *testing.T) {
	c := spawn(t)
	if err := c.EnsureScript("a.ts", "let x=1;"); err != nil {
		t.Fatal(err)
	}
	names, err := c.GetFileNames(ctx5s(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "a.ts" {
		t.Errorf("names = %v, want [a.ts]", names)
	}
	if info := c.Info(); info.Engine != "echo" {
		t.Errorf("Info = %+v", info)
	}
}

func TestScenarioEditThenSnapshot(t *testing.T) {
	c := spawn(t)
	if err := c.EnsureScript("a.ts", "abcdef"); err != nil {
		t.Fatal(err)
	}
	if err := c.EditScript("a.ts", 2, 4, "XY"); err != nil {
		t.Fatal(err)
	}
	snap, err := c.GetScriptSnapshot(ctx5s(t), "a.ts")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Text() != "abXYef" || snap.Version() != 2 {
		t.Errorf("snapshot = %q v%d", snap.Text(), snap.Version())
	}
}

// slowEngine holds syntax queries until release is closed.
type slowEngine struct {
	echoEngine
	started chan struct{}
	release chan struct{}
}

func (e *slowEngine) SyntacticDiagnostics(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	close(e.started)
	<-e.release
	return e.echoEngine.SyntacticDiagnostics(ctx, fileName)
}

func TestCommandsDoNotWaitForBusyWorker(t *testing.T) {
	engine := &slowEngine{started: make(chan struct{}), release: make(chan struct{})}
	factory := func(host analysis.Host, _ *analysis.Baseline) (analysis.Engine, error) {
		engine.host = host
		return engine, nil
	}
	c, err := Spawn(context.Background(), []worker.Option{worker.WithEngineFactory(factory)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	ctx := ctx5s(t)
	if err := c.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if err := c.EnsureScript("a.ts", "abc"); err != nil {
		t.Fatal(err)
	}

	query := make(chan error, 1)
	go func() {
		_, err := c.GetSyntaxErrors(ctx, "a.ts")
		query <- err
	}()
	<-engine.started

	edits := make(chan error, 1)
	go func() {
		for i := 0; i < 20; i++ {
			if err := c.EditScript("a.ts", 0, 0, "x"); err != nil {
				edits <- err
				return
			}
		}
		edits <- nil
	}()
	select {
	case err := <-edits:
		if err != nil {
			t.Fatalf("EditScript: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("EditScript blocked while the worker was busy")
	}

	close(engine.release)
	if err := <-query; err != nil {
		t.Fatalf("GetSyntaxErrors: %v", err)
	}
	snap, err := c.GetScriptSnapshot(ctx, "a.ts")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version() != 21 || len(snap.Text()) != 23 {
		t.Errorf("snapshot = %q v%d", snap.Text(), snap.Version())
	}
}

func TestQueriesEndToEnd(t *testing.T) {
	c := spawn(t)
	ctx := ctx5s(t)
	if err := c.EnsureScript("a.ts", "abc\nde"); err != nil {
		t.Fatal(err)
	}

	diags, err := c.GetSyntaxErrors(ctx, "a.ts")
	if err != nil || len(diags) != 1 || diags[0].Length != 6 {
		t.Errorf("GetSyntaxErrors = %v, %v", diags, err)
	}
	sem, err := c.GetSemanticErrors(ctx, "a.ts")
	if err != nil || len(sem) != 0 {
		t.Errorf("GetSemanticErrors = %v, %v", sem, err)
	}
	info, err := c.GetCompletionsAtPosition(ctx, "a.ts", 3, true)
	if err != nil || !info.IsMemberCompletion || info.Entries[0].Name != "3" {
		t.Errorf("GetCompletionsAtPosition = %+v, %v", info, err)
	}
	def, err := c.GetTypeAtDocumentPosition(ctx, "a.ts", position.Position{Row: 1, Column: 1})
	if err != nil || def == nil || def.MinChar != 5 {
		t.Errorf("GetTypeAtDocumentPosition = %+v, %v", def, err)
	}
	none, err := c.GetTypeAtDocumentPosition(ctx, "a.ts", position.Position{})
	if err != nil || none != nil {
		t.Errorf("GetTypeAtDocumentPosition(0,0) = %+v, %v", none, err)
	}
	out, err := c.GetOutputFiles(ctx, "a.ts")
	if err != nil || len(out) != 1 || out[0].Name != "a.ts.js" {
		t.Errorf("GetOutputFiles = %+v, %v", out, err)
	}
	if err := c.SetAnalysisOptions(analysis.Options{Target: "es2015"}); err != nil {
		t.Errorf("SetAnalysisOptions = %v", err)
	}
	if err := c.RemoveScript("a.ts"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetSyntaxErrors(ctx, "a.ts"); !errors.Is(err, werrors.ErrUnknownFile) {
		t.Errorf("after remove: %v, want UnknownFile", err)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
}

func TestConcurrentQueriesResolveTheirOwnCaller(t *testing.T) {
	c := spawn(t)
	const n = 40
	for i := 0; i < n; i++ {
		if err := c.EnsureScript(fmt.Sprintf("f%02d.ts", i), fmt.Sprintf("%0*d", i+1, 0)); err != nil {
			t.Fatal(err)
		}
	}

	ctx := ctx5s(t)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("f%02d.ts", i)
			snap, err := c.GetScriptSnapshot(ctx, name)
			if err != nil {
				errs <- err
				return
			}
			if snap.FileName() != name || snap.Len() != i+1 {
				errs <- fmt.Errorf("caller %s got %s (len %d)", name, snap.FileName(), snap.Len())
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
}

func TestCommandFailedCallback(t *testing.T) {
	got := make(chan CommandFailure, 1)
	c := spawn(t, WithCommandFailedHandler(func(f CommandFailure) { got <- f }))

	if err := c.EditScript("missing.ts", 0, 0, "x"); err != nil {
		t.Fatal(err)
	}
	select {
	case f := <-got:
		if f.Command != protocol.KindEditScript || f.FileName != "missing.ts" || !werrors.IsUnknownFile(f.Err) {
			t.Errorf("failure = %+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no commandFailed callback")
	}
}

func TestReadyReportsInitFail(t *testing.T) {
	loader := analysis.BaselineLoaderFunc(func(ctx context.Context) (*analysis.Baseline, error) {
		return nil, errors.New("offline")
	})
	c, err := Spawn(context.Background(), []worker.Option{
		worker.WithEngineFactory(echoFactory),
		worker.WithBaselineLoader(loader),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := ctx5s(t)
	err = c.Ready(ctx)
	if !errors.Is(err, werrors.ErrEngine) {
		t.Fatalf("Ready = %v, want EngineError", err)
	}
	if again := c.Ready(ctx); again != err {
		t.Errorf("second Ready = %v, want same error", again)
	}
	if _, err := c.GetFileNames(ctx); !errors.Is(err, werrors.ErrEngine) {
		t.Errorf("query in failed state = %v, want EngineError", err)
	}
}

// fakeWorker drives the far end of a pipe by hand.
type fakeWorker struct {
	t    *testing.T
	conn *protocol.Conn
}

func newFake(t *testing.T, opts ...Option) (*Client, *fakeWorker) {
	t.Helper()
	clientConn, workerConn := protocol.Pipe()
	c := NewClient(clientConn, opts...)
	t.Cleanup(func() {
		c.Close()
		workerConn.Close()
	})
	return c, &fakeWorker{t: t, conn: workerConn}
}

func (f *fakeWorker) recv() (protocol.Envelope, int64) {
	f.t.Helper()
	env, err := f.conn.Recv()
	if err != nil {
		f.t.Errorf("fake worker recv: %v", err)
		return env, 0
	}
	id, _ := env.CorrelationID()
	return env, id
}

func (f *fakeWorker) fileNames(id int64, names ...string) {
	f.t.Helper()
	resp := protocol.FileNames{Reply: protocol.Reply{CorrelationID: id}, Names: names}
	if err := f.conn.SendPayload(protocol.KindFileNames, resp); err != nil {
		f.t.Errorf("fake worker send: %v", err)
	}
}

func TestOutOfOrderResponses(t *testing.T) {
	c, fw := newFake(t)
	ctx := ctx5s(t)

	type result struct {
		names []string
		err   error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		names, err := c.GetFileNames(ctx)
		first <- result{names, err}
	}()
	_, id1 := fw.recv()

	go func() {
		names, err := c.GetFileNames(ctx)
		second <- result{names, err}
	}()
	_, id2 := fw.recv()

	if id1 != 1 || id2 != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", id1, id2)
	}

	fw.fileNames(id2, "two")
	fw.fileNames(id1, "one")

	r1, r2 := <-first, <-second
	if r1.err != nil || len(r1.names) != 1 || r1.names[0] != "one" {
		t.Errorf("first = %+v", r1)
	}
	if r2.err != nil || len(r2.names) != 1 || r2.names[0] != "two" {
		t.Errorf("second = %+v", r2)
	}
}

func TestDuplicateAndUnknownResponsesDropped(t *testing.T) {
	c, fw := newFake(t)
	ctx := ctx5s(t)

	done := make(chan []string, 1)
	go func() {
		names, _ := c.GetFileNames(ctx)
		done <- names
	}()
	_, id := fw.recv()
	fw.fileNames(id, "first")
	fw.fileNames(id, "again")
	fw.fileNames(99, "stray")

	if names := <-done; len(names) != 1 || names[0] != "first" {
		t.Errorf("names = %v, want [first]", names)
	}

	// The client still works after dropping the extras.
	go func() {
		names, _ := c.GetFileNames(ctx)
		done <- names
	}()
	_, id = fw.recv()
	fw.fileNames(id, "next")
	if names := <-done; len(names) != 1 || names[0] != "next" {
		t.Errorf("names = %v, want [next]", names)
	}
}

func TestMismatchedResponseKind(t *testing.T) {
	c, fw := newFake(t)
	errc := make(chan error, 1)
	go func() {
		_, err := c.GetFileNames(ctx5s(t))
		errc <- err
	}()
	_, id := fw.recv()
	resp := protocol.Diagnostics{Reply: protocol.Reply{CorrelationID: id}}
	if err := fw.conn.SendPayload(protocol.KindSyntaxErrors, resp); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; !errors.Is(err, werrors.ErrProtocol) {
		t.Errorf("error = %v, want ProtocolError", err)
	}
}

func TestTimeoutDropsPendingEntry(t *testing.T) {
	c, fw := newFake(t, WithRequestTimeout(30*time.Millisecond))
	errc := make(chan error, 1)
	go func() {
		_, err := c.GetFileNames(context.Background())
		errc <- err
	}()
	_, id := fw.recv()

	err := <-errc
	if !werrors.IsTimeout(err) {
		t.Fatalf("error = %v, want Timeout", err)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d after timeout, want 0", c.Pending())
	}
	// A late response is dropped without effect.
	fw.fileNames(id, "late")
}

func TestContextCancelRejects(t *testing.T) {
	c, fw := newFake(t, WithRequestTimeout(0))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.GetFileNames(ctx)
		errc <- err
	}()
	fw.recv()
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCloseRejectsOutstanding(t *testing.T) {
	c, fw := newFake(t)
	errc := make(chan error, 1)
	go func() {
		_, err := c.GetFileNames(context.Background())
		errc <- err
	}()
	fw.recv()
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; !errors.Is(err, werrors.ErrProtocol) {
		t.Errorf("error = %v, want ProtocolError", err)
	}
	if err := c.EnsureScript("a.ts", ""); !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("command after Close = %v", err)
	}
	if _, err := c.GetFileNames(context.Background()); !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("query after Close = %v", err)
	}
	if err := c.Ready(context.Background()); !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("Ready after Close = %v", err)
	}
}

func TestPeerCloseClosesClient(t *testing.T) {
	c, fw := newFake(t)
	fw.conn.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not notice peer close")
	}
}

func TestCallRejectsNonQuery(t *testing.T) {
	c, _ := newFake(t)
	err := c.Call(context.Background(), protocol.KindEnsureScript, func(int64) any { return nil }, nil)
	if !errors.Is(err, werrors.ErrInvalidArgument) {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestRepeatedInitAfterIgnored(t *testing.T) {
	c, fw := newFake(t)
	if err := fw.conn.SendPayload(protocol.KindInitAfter, protocol.InitAfter{Engine: "one"}); err != nil {
		t.Fatal(err)
	}
	if err := fw.conn.SendPayload(protocol.KindInitFail, protocol.InitFail{Reason: "late"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Ready(ctx5s(t)); err != nil {
		t.Errorf("Ready = %v, want nil", err)
	}
	if c.Info().Engine != "one" {
		t.Errorf("Info = %+v", c.Info())
	}
}
