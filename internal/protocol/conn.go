// Package protocol defines the messages exchanged between the workspace
// client and the analysis worker, and the framed connection that carries
// them.
//
// Messages are JSON envelopes {kind, data}, framed with a Content-Length
// header as in the LSP base protocol. Each direction is ordered.
package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	werrors "github.com/dshills/deuce/internal/errors"
)

// ErrClosed is returned by Send and Recv once the connection is closed.
var ErrClosed = werrors.New(werrors.KindProtocol, "conn", "connection closed")

// maxMessageSize bounds a single frame body.
const maxMessageSize = 64 << 20

// Conn is one endpoint of the workspace channel. Send is safe for
// concurrent use; Recv must be called from a single goroutine.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	mu     sync.Mutex
	closed atomic.Bool
}

// NewConn creates a connection reading frames from r and writing frames to
// w. Closing the connection closes c, if non-nil.
func NewConn(r io.Reader, w io.Writer, c io.Closer) *Conn {
	return &Conn{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		closer: c,
	}
}

type pipeCloser struct {
	r    *io.PipeReader
	w    *queueWriter
	peer *queueWriter
}

func (p pipeCloser) Close() error {
	p.w.Close()
	// Nothing reads what the peer sends from here on.
	p.peer.abort(io.ErrClosedPipe)
	return p.r.Close()
}

// Pipe returns two connected in-process endpoints. Sends never wait for
// the peer to read: each endpoint queues outgoing frames and delivers
// them in order from its own goroutine. Closing either endpoint ends the
// stream for both once the frames it already sent are delivered.
func Pipe() (*Conn, *Conn) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	qa := newQueueWriter(aw)
	qb := newQueueWriter(bw)
	a := NewConn(ar, qa, pipeCloser{r: ar, w: qa, peer: qb})
	b := NewConn(br, qb, pipeCloser{r: br, w: qb, peer: qa})
	return a, b
}

// Send writes one envelope.
func (c *Conn) Send(env Envelope) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.writer, header); err != nil {
		return c.writeErr("write header", err)
	}
	if _, err := c.writer.Write(data); err != nil {
		return c.writeErr("write body", err)
	}
	return nil
}

// SendPayload encodes payload under kind and sends it.
func (c *Conn) SendPayload(kind Kind, payload any) error {
	env, err := NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	return c.Send(env)
}

func (c *Conn) writeErr(op string, err error) error {
	if c.closed.Load() || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return werrors.Wrap(werrors.KindProtocol, op, err)
}

// Recv reads the next envelope. It returns io.EOF when the peer closed the
// stream and ErrClosed after Close. A frame that does not decode yields a
// ProtocolError; the stream stays usable.
func (c *Conn) Recv() (Envelope, error) {
	body, err := c.readMessage()
	if err != nil {
		if c.closed.Load() || errors.Is(err, io.ErrClosedPipe) {
			return Envelope{}, ErrClosed
		}
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, werrors.Wrap(werrors.KindProtocol, "decode message", err)
	}
	return env, nil
}

func (c *Conn) readMessage() ([]byte, error) {
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, werrors.Newf(werrors.KindProtocol, "read header", "bad Content-Length %q", value)
		}
		contentLength = n
	}

	if contentLength < 0 {
		return nil, werrors.New(werrors.KindProtocol, "read header", "missing Content-Length header")
	}
	if contentLength > maxMessageSize {
		return nil, werrors.Newf(werrors.KindProtocol, "read header", "message of %d bytes exceeds limit", contentLength)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}
