// Package lsp serves the workspace to editors over the Language Server
// Protocol. Open documents are mirrored into the analysis worker; changes
// are applied incrementally and diagnostics are published after each one.
package lsp

import (
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/dshills/deuce/internal/app"
)

// Name is the server name reported to clients.
const Name = "deuce"

// Server adapts an Application to LSP requests.
type Server struct {
	app     *app.Application
	version string
	handler protocol.Handler
	log     commonlog.Logger

	mu   sync.Mutex
	uris map[string]protocol.DocumentUri
}

// New creates a server for application.
func New(application *app.Application, version string) *Server {
	s := &Server{
		app:     application,
		version: version,
		log:     commonlog.GetLogger("deuce.lsp"),
		uris:    make(map[string]protocol.DocumentUri),
	}
	s.handler = protocol.Handler{
		Initialize:             s.initialize,
		Initialized:            s.initialized,
		Shutdown:               s.shutdown,
		SetTrace:               s.setTrace,
		TextDocumentDidOpen:    s.textDocumentDidOpen,
		TextDocumentDidChange:  s.textDocumentDidChange,
		TextDocumentDidClose:   s.textDocumentDidClose,
		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}
	return s
}

// RunStdio serves requests on stdin and stdout until the client exits.
func (s *Server) RunStdio() error {
	return server.NewServer(&s.handler, Name, false).RunStdio()
}

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	if params.ClientInfo != nil {
		s.log.Infof("client %s connected", params.ClientInfo.Name)
	}
	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    Name,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *Server) shutdown(ctx *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// track records the URI a document was opened with.
func (s *Server) track(uri protocol.DocumentUri) string {
	name := FileName(uri)
	s.mu.Lock()
	s.uris[name] = uri
	s.mu.Unlock()
	return name
}

func (s *Server) untrack(name string) {
	s.mu.Lock()
	delete(s.uris, name)
	s.mu.Unlock()
}

func (s *Server) uriOf(name string) protocol.DocumentUri {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uri, ok := s.uris[name]; ok {
		return uri
	}
	return URI(name)
}
