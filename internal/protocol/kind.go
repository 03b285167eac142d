package protocol

import "fmt"

// Kind identifies a message on the workspace channel.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Lifecycle, worker to client.
	KindInitAfter
	KindInitFail

	// Commands, client to worker. No response on success.
	KindEnsureScript
	KindEditScript
	KindRemoveScript
	KindSetAnalysisOptions

	// Queries, client to worker.
	KindGetFileNames
	KindGetSyntaxErrors
	KindGetSemanticErrors
	KindGetCompletionsAtPosition
	KindGetTypeAtDocumentPosition
	KindGetOutputFiles
	KindGetScriptSnapshot

	// Responses, worker to client.
	KindFileNames
	KindSyntaxErrors
	KindSemanticErrors
	KindCompletions
	KindTypeAtDocumentPosition
	KindOutputFiles
	KindScriptSnapshot

	// Notifications, worker to client.
	KindCommandFailed

	kindCount
)

var kindNames = [...]string{
	KindInvalid:                   "invalid",
	KindInitAfter:                 "initAfter",
	KindInitFail:                  "initFail",
	KindEnsureScript:              "ensureScript",
	KindEditScript:                "editScript",
	KindRemoveScript:              "removeScript",
	KindSetAnalysisOptions:        "setAnalysisOptions",
	KindGetFileNames:              "getFileNames",
	KindGetSyntaxErrors:           "getSyntaxErrors",
	KindGetSemanticErrors:         "getSemanticErrors",
	KindGetCompletionsAtPosition:  "getCompletionsAtPosition",
	KindGetTypeAtDocumentPosition: "getTypeAtDocumentPosition",
	KindGetOutputFiles:            "getOutputFiles",
	KindGetScriptSnapshot:         "getScriptSnapshot",
	KindFileNames:                 "fileNames",
	KindSyntaxErrors:              "syntaxErrors",
	KindSemanticErrors:            "semanticErrors",
	KindCompletions:               "completions",
	KindTypeAtDocumentPosition:    "typeAtDocumentPosition",
	KindOutputFiles:               "outputFiles",
	KindScriptSnapshot:            "scriptSnapshot",
	KindCommandFailed:             "commandFailed",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		if Kind(k) != KindInvalid {
			m[name] = Kind(k)
		}
	}
	return m
}()

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind looks up a kind by its wire name.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// MarshalText encodes the kind as its wire name.
func (k Kind) MarshalText() ([]byte, error) {
	if k == KindInvalid || k >= kindCount {
		return nil, fmt.Errorf("protocol: cannot encode %s", k)
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText decodes a wire name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("protocol: unknown message kind %q", text)
	}
	*k = parsed
	return nil
}

// IsCommand reports whether k is a fire-and-forget command.
func (k Kind) IsCommand() bool {
	return k >= KindEnsureScript && k <= KindSetAnalysisOptions
}

// IsQuery reports whether k expects exactly one response.
func (k Kind) IsQuery() bool {
	return k >= KindGetFileNames && k <= KindGetScriptSnapshot
}

// IsResponse reports whether k answers a query.
func (k Kind) IsResponse() bool {
	return k >= KindFileNames && k <= KindScriptSnapshot
}

// ResponseKind returns the kind that answers the query k.
func (k Kind) ResponseKind() (Kind, bool) {
	if !k.IsQuery() {
		return KindInvalid, false
	}
	return k - KindGetFileNames + KindFileNames, true
}
