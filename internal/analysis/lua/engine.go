// Package lua implements an analysis engine whose rules are written in Lua.
//
// A script defines any of these global functions:
//
//	syntax_errors(file)             -> { {message=, start=, length=, code=}, ... }
//	semantic_errors(file)           -> same shape
//	completions(file, offset, member) -> { entries = {...} } or a list of entries or names
//	type_at(file, offset)           -> { kind=, name=, ... } or a list of them
//	emit(file)                      -> text, or { outputFiles = {...}, emitSkipped = }
//
// and reads the workspace through the global host table:
//
//	host.file_names(), host.version(f), host.text(f), host.options(), host.globals()
//
// Functions the script leaves out answer empty results.
package lua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/tliron/commonlog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
)

// Name identifies the engine.
const Name = "lua"

// Engine runs analysis queries through a Lua script.
type Engine struct {
	name     string
	state    *State
	host     analysis.Host
	baseline *analysis.Baseline
	log      commonlog.Logger
}

// FromString returns a factory for engines running code. chunk names the
// code in error messages.
func FromString(chunk, code string, opts ...StateOption) analysis.EngineFactory {
	return func(host analysis.Host, baseline *analysis.Baseline) (analysis.Engine, error) {
		return NewEngine(chunk, code, host, baseline, opts...)
	}
}

// FromFile returns a factory for engines running the script at path. The
// file is read when the factory runs.
func FromFile(path string, opts ...StateOption) analysis.EngineFactory {
	return func(host analysis.Host, baseline *analysis.Baseline) (analysis.Engine, error) {
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read analysis script: %w", err)
		}
		return NewEngine(path, string(code), host, baseline, opts...)
	}
}

// NewEngine loads code and binds it to host.
func NewEngine(chunk, code string, host analysis.Host, baseline *analysis.Baseline, opts ...StateOption) (*Engine, error) {
	e := &Engine{
		name:     chunk,
		state:    NewState(opts...),
		host:     host,
		baseline: baseline,
		log:      commonlog.GetLogger("deuce.lua"),
	}
	e.state.SetGlobal("host", e.hostTable())
	if err := e.state.DoString(code); err != nil {
		e.state.Close()
		return nil, werrors.Wrap(werrors.KindEngine, "load "+chunk, err)
	}
	return e, nil
}

// Name implements analysis.Engine.
func (e *Engine) Name() string {
	return Name
}

// Close releases the Lua state.
func (e *Engine) Close() error {
	return e.state.Close()
}

func (e *Engine) hostTable() *lua.LTable {
	L := e.state.L
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"file_names": func(L *lua.LState) int {
			L.Push(toLua(L, e.host.ScriptFileNames()))
			return 1
		},
		"version": func(L *lua.LState) int {
			v, err := e.host.ScriptVersion(L.CheckString(1))
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			L.Push(lua.LNumber(v))
			return 1
		},
		"text": func(L *lua.LState) int {
			snap, err := e.host.ScriptSnapshot(L.CheckString(1))
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			L.Push(lua.LString(snap.Text()))
			return 1
		},
		"options": func(L *lua.LState) int {
			opts := e.host.AnalysisOptions()
			L.Push(toLua(L, map[string]any{
				"target":         opts.Target,
				"module":         opts.Module,
				"noImplicitAny":  opts.NoImplicitAny,
				"removeComments": opts.RemoveComments,
				"lib":            opts.Lib,
			}))
			return 1
		},
		"globals": func(L *lua.LState) int {
			var names []string
			for _, g := range e.baseline.Globals(e.host.AnalysisOptions()) {
				names = append(names, g.Name)
			}
			L.Push(toLua(L, names))
			return 1
		},
	})
}

// call runs the script function fn. The boolean is false when the script
// does not define it.
func (e *Engine) call(ctx context.Context, op, fn string, args ...lua.LValue) (lua.LValue, bool, error) {
	f := e.state.Func(fn)
	if f == nil {
		return lua.LNil, false, nil
	}
	ret, err := e.state.Call(ctx, f, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return lua.LNil, true, werrors.Wrap(werrors.KindTimeout, op, err)
		}
		e.log.Debugf("%s: %s failed: %v", e.name, fn, err)
		return lua.LNil, true, werrors.Wrap(werrors.KindEngine, op, err)
	}
	return ret, true, nil
}

func (e *Engine) checkFile(op, fileName string, offset int) error {
	snap, err := e.host.ScriptSnapshot(fileName)
	if err != nil {
		return err
	}
	if offset < 0 || offset > snap.Len() {
		return werrors.Newf(werrors.KindInvalidRange, op, "offset %d outside [0,%d]", offset, snap.Len())
	}
	return nil
}

func (e *Engine) diagnostics(ctx context.Context, op, fn, fileName string) ([]analysis.Diagnostic, error) {
	if _, err := e.host.ScriptVersion(fileName); err != nil {
		return nil, err
	}
	ret, _, err := e.call(ctx, op, fn, lua.LString(fileName))
	if err != nil {
		return nil, err
	}
	diags := []analysis.Diagnostic{}
	if _, err := decode(ret, &diags); err != nil {
		return nil, werrors.Wrap(werrors.KindEngine, op, err)
	}
	for i := range diags {
		if diags[i].Category == "" {
			diags[i].Category = analysis.CategoryError
		}
	}
	return diags, nil
}

// SyntacticDiagnostics calls syntax_errors.
func (e *Engine) SyntacticDiagnostics(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	return e.diagnostics(ctx, "getSyntacticDiagnostics", "syntax_errors", fileName)
}

// SemanticDiagnostics calls semantic_errors.
func (e *Engine) SemanticDiagnostics(ctx context.Context, fileName string) ([]analysis.Diagnostic, error) {
	return e.diagnostics(ctx, "getSemanticDiagnostics", "semantic_errors", fileName)
}

// CompletionsAtPosition calls completions.
func (e *Engine) CompletionsAtPosition(ctx context.Context, fileName string, offset int, memberMode bool) (*analysis.CompletionInfo, error) {
	const op = "getCompletionsAtPosition"
	if err := e.checkFile(op, fileName, offset); err != nil {
		return nil, err
	}
	ret, _, err := e.call(ctx, op, "completions", lua.LString(fileName), lua.LNumber(offset), lua.LBool(memberMode))
	if err != nil {
		return nil, err
	}

	info := &analysis.CompletionInfo{IsMemberCompletion: memberMode, Entries: []analysis.CompletionEntry{}}
	switch v := toGo(ret).(type) {
	case nil:
	case []any:
		for _, item := range v {
			if name, ok := item.(string); ok {
				info.Entries = append(info.Entries, analysis.CompletionEntry{Name: name, Kind: analysis.KindVariable})
				continue
			}
			var entry analysis.CompletionEntry
			if _, err := decodeValue(item, &entry); err != nil {
				return nil, werrors.Wrap(werrors.KindEngine, op, err)
			}
			info.Entries = append(info.Entries, entry)
		}
	default:
		if _, err := decode(ret, info); err != nil {
			return nil, werrors.Wrap(werrors.KindEngine, op, err)
		}
		if info.Entries == nil {
			info.Entries = []analysis.CompletionEntry{}
		}
	}
	return info, nil
}

// TypeDefinitionAtPosition calls type_at.
func (e *Engine) TypeDefinitionAtPosition(ctx context.Context, fileName string, offset int) ([]analysis.DefinitionInfo, error) {
	const op = "getTypeAtDocumentPosition"
	if err := e.checkFile(op, fileName, offset); err != nil {
		return nil, err
	}
	ret, _, err := e.call(ctx, op, "type_at", lua.LString(fileName), lua.LNumber(offset))
	if err != nil {
		return nil, err
	}

	switch toGo(ret).(type) {
	case nil:
		return nil, nil
	case []any:
		var defs []analysis.DefinitionInfo
		if _, err := decode(ret, &defs); err != nil {
			return nil, werrors.Wrap(werrors.KindEngine, op, err)
		}
		return defs, nil
	}
	var def analysis.DefinitionInfo
	if _, err := decode(ret, &def); err != nil {
		return nil, werrors.Wrap(werrors.KindEngine, op, err)
	}
	if def.FileName == "" {
		def.FileName = fileName
	}
	if def.FullSymbolName == "" {
		def.FullSymbolName = def.Name
	}
	return []analysis.DefinitionInfo{def}, nil
}

// EmitOutput calls emit.
func (e *Engine) EmitOutput(ctx context.Context, fileName string) (*analysis.EmitOutput, error) {
	const op = "getOutputFiles"
	if _, err := e.host.ScriptVersion(fileName); err != nil {
		return nil, err
	}
	ret, defined, err := e.call(ctx, op, "emit", lua.LString(fileName))
	if err != nil {
		return nil, err
	}
	out := &analysis.EmitOutput{OutputFiles: []analysis.OutputFile{}}
	if !defined {
		out.EmitSkipped = true
		return out, nil
	}
	if text, ok := ret.(lua.LString); ok {
		out.OutputFiles = append(out.OutputFiles, analysis.OutputFile{Name: jsName(fileName), Text: string(text)})
		return out, nil
	}
	ok, err := decode(ret, out)
	if err != nil {
		return nil, werrors.Wrap(werrors.KindEngine, op, err)
	}
	if !ok {
		out.EmitSkipped = true
	}
	if out.OutputFiles == nil {
		out.OutputFiles = []analysis.OutputFile{}
	}
	return out, nil
}

func jsName(fileName string) string {
	return strings.TrimSuffix(fileName, path.Ext(fileName)) + ".js"
}
