package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"math"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/position"
	"github.com/dshills/deuce/internal/protocol"
)

func (w *Worker) dispatch(ctx context.Context, env protocol.Envelope) {
	if env.Kind.IsCommand() && w.State() == StateFailed {
		w.log.Warningf("dropping %s: worker failed to initialize", env.Kind)
		return
	}
	if env.Kind.IsQuery() && w.State() == StateFailed {
		w.rejectFailed(env)
		return
	}

	switch env.Kind {
	case protocol.KindEnsureScript:
		w.ensureScript(env)
	case protocol.KindEditScript:
		w.editScript(env)
	case protocol.KindRemoveScript:
		w.removeScript(env)
	case protocol.KindSetAnalysisOptions:
		w.setAnalysisOptions(env)
	case protocol.KindGetFileNames:
		w.getFileNames(env)
	case protocol.KindGetSyntaxErrors:
		w.getDiagnostics(ctx, env, w.engine.SyntacticDiagnostics)
	case protocol.KindGetSemanticErrors:
		w.getDiagnostics(ctx, env, w.engine.SemanticDiagnostics)
	case protocol.KindGetCompletionsAtPosition:
		w.getCompletions(ctx, env)
	case protocol.KindGetTypeAtDocumentPosition:
		w.getTypeAtDocumentPosition(ctx, env)
	case protocol.KindGetOutputFiles:
		w.getOutputFiles(ctx, env)
	case protocol.KindGetScriptSnapshot:
		w.getScriptSnapshot(env)
	case protocol.KindInitAfter, protocol.KindInitFail, protocol.KindCommandFailed,
		protocol.KindFileNames, protocol.KindSyntaxErrors, protocol.KindSemanticErrors,
		protocol.KindCompletions, protocol.KindTypeAtDocumentPosition,
		protocol.KindOutputFiles, protocol.KindScriptSnapshot:
		w.log.Warningf("ignoring %s: not a worker message", env.Kind)
	case protocol.KindInvalid:
		w.log.Warningf("ignoring message with no kind")
	default:
		w.log.Warningf("ignoring unknown message kind %d", uint8(env.Kind))
	}
}

// Commands.

func (w *Worker) ensureScript(env protocol.Envelope) {
	var msg protocol.EnsureScript
	if err := env.Decode(&msg); err != nil {
		w.commandFailed(env.Kind, "", err)
		return
	}
	w.store.EnsureScript(msg.FileName, msg.Content)
}

func (w *Worker) editScript(env protocol.Envelope) {
	var msg protocol.EditScript
	if err := env.Decode(&msg); err != nil {
		w.commandFailed(env.Kind, "", err)
		return
	}
	if err := w.store.EditScript(msg.FileName, msg.Start, msg.End, msg.Text); err != nil {
		w.commandFailed(env.Kind, msg.FileName, err)
	}
}

func (w *Worker) removeScript(env protocol.Envelope) {
	var msg protocol.RemoveScript
	if err := env.Decode(&msg); err != nil {
		w.commandFailed(env.Kind, "", err)
		return
	}
	w.store.RemoveScript(msg.FileName)
}

func (w *Worker) setAnalysisOptions(env protocol.Envelope) {
	var msg protocol.SetAnalysisOptions
	if err := env.Decode(&msg); err != nil {
		w.commandFailed(env.Kind, "", err)
		return
	}
	w.store.SetAnalysisOptions(msg.Options)
	w.log.Infof("analysis options set: target=%s module=%s", msg.Options.Target, msg.Options.Module)
}

func (w *Worker) commandFailed(cmd protocol.Kind, fileName string, err error) {
	w.log.Warningf("%s %s failed: %s", cmd, fileName, err)
	w.send(protocol.KindCommandFailed, protocol.CommandFailed{
		Command:  cmd,
		FileName: fileName,
		Err:      protocol.NewErrorPayload(err),
	})
}

// Queries.

// reply sends the response to a query of kind query.
func (w *Worker) reply(query protocol.Kind, payload any) {
	kind, _ := query.ResponseKind()
	w.send(kind, payload)
}

// fail answers a query with an error.
func (w *Worker) fail(query protocol.Kind, id int64, err error) {
	w.log.Debugf("%s #%d failed: %s", query, id, err)
	w.reply(query, protocol.Reply{CorrelationID: id, Err: protocol.NewErrorPayload(err)})
}

// decodeQuery decodes a query payload. When that fails the query is
// answered with an error if it carries an id at all; the boolean reports
// whether decoding succeeded.
func (w *Worker) decodeQuery(env protocol.Envelope, v any) bool {
	err := env.Decode(v)
	if err == nil {
		return true
	}
	if id, ok := env.CorrelationID(); ok {
		w.fail(env.Kind, id, werrors.Wrap(werrors.KindInvalidArgument, env.Kind.String(), err))
	} else {
		w.log.Warningf("dropping %s without correlation id: %s", env.Kind, err)
	}
	return false
}

func (w *Worker) rejectFailed(env protocol.Envelope) {
	id, ok := env.CorrelationID()
	if !ok {
		w.log.Warningf("dropping %s without correlation id", env.Kind)
		return
	}
	w.fail(env.Kind, id, werrors.Newf(werrors.KindEngine, env.Kind.String(),
		"worker failed to initialize: %s", w.failReason))
}

// guard runs an engine call, turning a panic into an EngineError.
func (w *Worker) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorf("%s: engine panic: %v", op, r)
			err = werrors.Newf(werrors.KindEngine, op, "engine panic: %v", r)
		}
	}()
	if err := fn(); err != nil {
		return werrors.Classify(op, err)
	}
	return nil
}

func (w *Worker) requireScript(op, fileName string) error {
	if !w.store.HasScript(fileName) {
		return werrors.Newf(werrors.KindUnknownFile, op, "no script named %q", fileName)
	}
	return nil
}

func (w *Worker) getFileNames(env protocol.Envelope) {
	var req protocol.GetFileNames
	if !w.decodeQuery(env, &req) {
		return
	}
	w.reply(env.Kind, protocol.FileNames{
		Reply: protocol.Reply{CorrelationID: req.CorrelationID},
		Names: w.store.ScriptFileNames(),
	})
}

type diagnosticsFunc func(ctx context.Context, fileName string) ([]analysis.Diagnostic, error)

func (w *Worker) getDiagnostics(ctx context.Context, env protocol.Envelope, query diagnosticsFunc) {
	var req protocol.GetDiagnostics
	if !w.decodeQuery(env, &req) {
		return
	}
	op := env.Kind.String()
	if err := w.requireScript(op, req.FileName); err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}

	var diags []analysis.Diagnostic
	err := w.guard(op, func() error {
		var err error
		diags, err = query(ctx, req.FileName)
		return err
	})
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}
	if diags == nil {
		diags = []analysis.Diagnostic{}
	}
	w.reply(env.Kind, protocol.Diagnostics{
		Reply:  protocol.Reply{CorrelationID: req.CorrelationID},
		Errors: diags,
	})
}

// parseOffset accepts a JSON number that is finite, integral and
// non-negative.
func parseOffset(raw json.RawMessage) (int, error) {
	const op = "getCompletionsAtPosition"
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, werrors.New(werrors.KindInvalidArgument, op, "position is missing")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, werrors.Newf(werrors.KindInvalidArgument, op, "position %s is not a number", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, werrors.Newf(werrors.KindInvalidArgument, op, "position %s is not a valid offset", raw)
	}
	return int(f), nil
}

func (w *Worker) getCompletions(ctx context.Context, env protocol.Envelope) {
	var req protocol.GetCompletionsAtPosition
	if !w.decodeQuery(env, &req) {
		return
	}
	op := env.Kind.String()
	offset, err := parseOffset(req.Position)
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}
	snap, err := w.store.ScriptSnapshot(req.FileName)
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}
	if offset > snap.Len() {
		w.fail(env.Kind, req.CorrelationID, werrors.Newf(werrors.KindInvalidRange, op,
			"offset %d past end of %s (length %d)", offset, req.FileName, snap.Len()))
		return
	}

	var info *analysis.CompletionInfo
	err = w.guard(op, func() error {
		var err error
		info, err = w.engine.CompletionsAtPosition(ctx, req.FileName, offset, req.MemberMode)
		return err
	})
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}
	if info == nil {
		info = &analysis.CompletionInfo{IsMemberCompletion: req.MemberMode}
	}
	if info.Entries == nil {
		info.Entries = []analysis.CompletionEntry{}
	}
	w.reply(env.Kind, protocol.Completions{
		Reply:       protocol.Reply{CorrelationID: req.CorrelationID},
		Completions: info,
	})
}

func (w *Worker) getTypeAtDocumentPosition(ctx context.Context, env protocol.Envelope) {
	var req protocol.GetTypeAtDocumentPosition
	if !w.decodeQuery(env, &req) {
		return
	}
	op := env.Kind.String()
	snap, err := w.store.ScriptSnapshot(req.FileName)
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}
	offset, err := position.ToOffset(snap.Lines(), req.DocumentPosition)
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}

	var defs []analysis.DefinitionInfo
	err = w.guard(op, func() error {
		var err error
		defs, err = w.engine.TypeDefinitionAtPosition(ctx, req.FileName, offset)
		return err
	})
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}

	resp := protocol.TypeAtDocumentPosition{Reply: protocol.Reply{CorrelationID: req.CorrelationID}}
	if len(defs) > 0 {
		resp.Results = &defs[0]
	}
	w.reply(env.Kind, resp)
}

func (w *Worker) getOutputFiles(ctx context.Context, env protocol.Envelope) {
	var req protocol.GetOutputFiles
	if !w.decodeQuery(env, &req) {
		return
	}
	op := env.Kind.String()
	if err := w.requireScript(op, req.FileName); err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}

	var out *analysis.EmitOutput
	err := w.guard(op, func() error {
		var err error
		out, err = w.engine.EmitOutput(ctx, req.FileName)
		return err
	})
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}

	resp := protocol.OutputFiles{
		Reply:   protocol.Reply{CorrelationID: req.CorrelationID},
		Results: []analysis.OutputFile{},
	}
	if out != nil && out.OutputFiles != nil {
		resp.Results = out.OutputFiles
	}
	w.reply(env.Kind, resp)
}

func (w *Worker) getScriptSnapshot(env protocol.Envelope) {
	var req protocol.GetScriptSnapshot
	if !w.decodeQuery(env, &req) {
		return
	}
	snap, err := w.store.ScriptSnapshot(req.FileName)
	if err != nil {
		w.fail(env.Kind, req.CorrelationID, err)
		return
	}
	w.reply(env.Kind, protocol.ScriptSnapshot{
		Reply:    protocol.Reply{CorrelationID: req.CorrelationID},
		FileName: snap.FileName(),
		Version:  snap.Version(),
		Content:  snap.Text(),
	})
}
