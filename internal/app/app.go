// Package app wires deuce together: configuration, logging, the analysis
// worker and its client, open documents and completions. The CLI and the
// language server both run on an Application.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/dshills/deuce/internal/analysis"
	"github.com/dshills/deuce/internal/analysis/lua"
	"github.com/dshills/deuce/internal/analysis/treesitter"
	"github.com/dshills/deuce/internal/completion"
	"github.com/dshills/deuce/internal/config"
	"github.com/dshills/deuce/internal/facade"
	"github.com/dshills/deuce/internal/position"
	"github.com/dshills/deuce/internal/store"
	"github.com/dshills/deuce/internal/worker"
	"github.com/dshills/deuce/internal/workspace"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// LogLevel overrides the configured log level when set.
	LogLevel string

	// Watch reloads the configuration file when it changes.
	Watch bool
}

// Application is the central coordinator for deuce's components.
type Application struct {
	mu  sync.RWMutex
	cfg *config.Config

	client     *workspace.Client
	completion *completion.Service
	documents  *DocumentManager
	watcher    *config.Watcher

	log      commonlog.Logger
	cancel   context.CancelFunc
	shutdown atomic.Bool
}

// New loads the configuration named by opts, configures logging and
// starts the application.
func New(ctx context.Context, opts Options) (*Application, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
		if err := cfg.Validate(); err != nil {
			return nil, &InitError{Component: "config", Err: err}
		}
	}
	ConfigureLogging(cfg.Logging)

	watchPath := ""
	if opts.Watch && opts.ConfigPath != "" {
		watchPath = opts.ConfigPath
	}
	return Start(ctx, cfg, watchPath)
}

// Start runs the application with cfg. When watchPath is set, changes to
// that file are applied while running.
func Start(ctx context.Context, cfg *config.Config, watchPath string) (*Application, error) {
	app := &Application{
		cfg: cfg,
		log: commonlog.GetLogger("deuce.app"),
	}
	if err := app.bootstrap(ctx, watchPath); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap(ctx context.Context, watchPath string) error {
	cfg := app.cfg

	// 1. Worker and client
	factory, err := EngineFactory(cfg.Workspace)
	if err != nil {
		return &InitError{Component: "engine", Err: err}
	}
	workerOpts := []worker.Option{
		worker.WithEngineFactory(factory),
		worker.WithBaselineLoader(BaselineLoader(cfg.Workspace)),
		worker.WithStoreOptions(
			store.WithMaxHistory(cfg.Workspace.MaxHistory),
			store.WithOptions(cfg.Analysis),
		),
	}
	runCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.client, err = workspace.Spawn(runCtx, workerOpts,
		workspace.WithRequestTimeout(cfg.Timeout()),
		workspace.WithCommandFailedHandler(func(f workspace.CommandFailure) {
			app.log.Warningf("%s %s failed: %v", f.Command, f.FileName, f.Err)
		}),
	)
	if err != nil {
		return &InitError{Component: "workspace", Err: err}
	}
	if err := app.client.Ready(ctx); err != nil {
		return &InitError{Component: "analysis worker", Err: err}
	}
	info := app.client.Info()
	app.log.Infof("worker ready: engine %s, libs %v", info.Engine, info.Libs)

	// 2. Documents and completions
	app.documents = NewDocumentManager(app.client)
	app.completion = completion.NewService(app.client)

	// 3. Config watcher
	if watchPath != "" {
		app.watcher, err = config.NewWatcher(watchPath, cfg, app.applyConfig)
		if err != nil {
			return &InitError{Component: "config watcher", Err: err}
		}
	}
	return nil
}

// EngineFactory returns the factory for the configured engine.
func EngineFactory(cfg config.WorkspaceConfig) (analysis.EngineFactory, error) {
	switch cfg.Engine {
	case config.EngineTreeSitter, "":
		return treesitter.New, nil
	case config.EngineLua:
		if cfg.LuaScript == "" {
			return nil, errors.New("lua engine needs a script")
		}
		var opts []lua.StateOption
		if t := cfg.EngineTimeout(); t > 0 {
			opts = append(opts, lua.WithCallTimeout(t))
		}
		return lua.FromFile(cfg.LuaScript, opts...), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

// BaselineLoader returns the loader for the configured baseline.
func BaselineLoader(cfg config.WorkspaceConfig) analysis.BaselineLoader {
	if cfg.Baseline == "" {
		return analysis.DefaultBaselineLoader()
	}
	return analysis.FileBaselineLoader{Path: cfg.Baseline}
}

// applyConfig handles a reloaded configuration. Only analysis options and
// logging take effect without a restart.
func (app *Application) applyConfig(old, updated *config.Config) {
	app.mu.Lock()
	app.cfg = updated
	app.mu.Unlock()

	if old.Logging != updated.Logging {
		ConfigureLogging(updated.Logging)
	}
	if !old.Analysis.Equal(updated.Analysis) {
		if err := app.client.SetAnalysisOptions(updated.Analysis); err != nil {
			app.log.Errorf("updating analysis options: %v", err)
		}
	}
	if old.Workspace != updated.Workspace {
		app.log.Warningf("workspace settings change after restart")
	}
}

// Config returns the current configuration.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.cfg
}

// Client returns the workspace client.
func (app *Application) Client() *workspace.Client {
	return app.client
}

// Documents returns the document manager.
func (app *Application) Documents() *DocumentManager {
	return app.documents
}

// Open opens a document with the given content.
func (app *Application) Open(name, content string) (*Document, error) {
	if app.shutdown.Load() {
		return nil, ErrShutdown
	}
	return app.documents.Open(name, "", content)
}

// OpenFile reads path and opens it under its path as given.
func (app *Application) OpenFile(path string) (*Document, error) {
	if app.shutdown.Load() {
		return nil, ErrShutdown
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &OperationError{Op: "open", Target: path, Err: err}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return app.documents.Open(filepath.ToSlash(path), abs, string(data))
}

// Close closes a document.
func (app *Application) Close(name string) error {
	return app.documents.Close(name)
}

// Diagnostics refreshes and returns the annotations of a document.
func (app *Application) Diagnostics(ctx context.Context, name string) ([]facade.Annotation, error) {
	doc, err := app.documents.Get(name)
	if err != nil {
		return nil, err
	}
	return doc.Facade().RefreshDiagnostics(ctx, doc.Lines())
}

// Complete returns the completions at cursor in a document.
func (app *Application) Complete(ctx context.Context, name string, cursor position.Position) (completion.Result, error) {
	doc, err := app.documents.Get(name)
	if err != nil {
		return completion.Result{}, err
	}
	return app.completion.Complete(ctx, name, doc, cursor)
}

// TypeAt describes the declaration at pos in a document, or returns nil.
func (app *Application) TypeAt(ctx context.Context, name string, pos position.Position) (*analysis.DefinitionInfo, error) {
	if _, err := app.documents.Get(name); err != nil {
		return nil, err
	}
	return app.client.GetTypeAtDocumentPosition(ctx, name, pos)
}

// Emit returns the output files of a document.
func (app *Application) Emit(ctx context.Context, name string) ([]analysis.OutputFile, error) {
	doc, err := app.documents.Get(name)
	if err != nil {
		return nil, err
	}
	return doc.Facade().OutputFiles(ctx)
}

// Shutdown stops the watcher and the worker. It is safe to call more
// than once.
func (app *Application) Shutdown() {
	if !app.shutdown.CompareAndSwap(false, true) {
		return
	}
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			app.log.Warningf("closing config watcher: %v", err)
		}
	}
	if app.client != nil {
		if err := app.client.Close(); err != nil {
			app.log.Debugf("closing workspace client: %v", err)
		}
	}
	if app.cancel != nil {
		app.cancel()
	}
}
