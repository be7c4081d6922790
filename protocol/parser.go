// File: protocol/parser.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental HTTP/1.x request parser. Bytes are pushed in as they arrive
// off a non-blocking socket; the parser reports an api.Outcome once a full
// request (header and body) is buffered, or an error outcome as soon as the
// input is known to be malformed.

package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/momentics/hioload-http/api"
)

const (
	DefaultMaxHeaderBytes = 8192
	DefaultMaxBodyBytes   = 1 << 20

	// Buffers grown past this are dropped on Reset instead of reused.
	maxRetainedBuffer = 64 * 1024

	// Longest chunk-size line, extensions included.
	maxChunkLine = 4096
)

var (
	blankLineLF   = []byte("\n\n")
	blankLineCRLF = []byte("\n\r\n")

	errChunkLineTooLong = errors.New("chunk size line too long")
	errChunkTerminator  = errors.New("missing CRLF after chunk data")
)

// Config bounds what a single request may occupy.
type Config struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64
	Classifier     api.Classifier // nil classifies every request as OutcomeOK
}

// Parser accumulates request bytes for one connection.
type Parser struct {
	cfg Config

	buf       []byte
	headerEnd int // offset of the body, 0 while the header is incomplete
	chunkOff  int    // offset of the next undecoded chunk
	body      []byte // decoded chunked body so far
	req       *http.Request
	outcome   api.Outcome
	err       error
}

// NewParser returns a parser expecting a request line.
func NewParser(cfg Config) *Parser {
	p := &Parser{}
	p.Init(cfg)
	return p
}

// Init (re)configures p and resets it to expect a request line.
func (p *Parser) Init(cfg Config) {
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	p.cfg = cfg
	p.Reset()
}

// Reset drops all parsed state.
func (p *Parser) Reset() {
	if cap(p.buf) > maxRetainedBuffer {
		p.buf = nil
	}
	p.buf = p.buf[:0]
	p.headerEnd = 0
	p.chunkOff = 0
	p.body = nil
	p.req = nil
	p.outcome = api.OutcomeIncomplete
	p.err = nil
}

// Outcome returns the current outcome without consuming input.
func (p *Parser) Outcome() api.Outcome { return p.outcome }

// Request returns the parsed request once the outcome is final and parsing
// succeeded.
func (p *Parser) Request() *http.Request { return p.req }

// Err returns the pending *api.ParseError, if any.
func (p *Parser) Err() error { return p.err }

// Buffered reports how many request bytes are held.
func (p *Parser) Buffered() int { return len(p.buf) }

// Feed appends b (which is not retained) and advances the parse. It returns
// OutcomeIncomplete until a final outcome is known; bytes fed after that are
// ignored.
func (p *Parser) Feed(b []byte) api.Outcome {
	if p.outcome != api.OutcomeIncomplete {
		return p.outcome
	}
	p.buf = append(p.buf, b...)

	if p.headerEnd == 0 {
		if !p.parseHeader() {
			return p.outcome
		}
	}
	p.parseBody()
	return p.outcome
}

// Finish is called when the peer closed its side. A request that is still
// incomplete becomes an internal error.
func (p *Parser) Finish() api.Outcome {
	if p.outcome == api.OutcomeIncomplete {
		if len(p.buf) == 0 {
			p.fail(fmt.Errorf("%w: connection closed before request line", api.ErrIncompleteRequest))
		} else {
			p.fail(fmt.Errorf("%w: connection closed after %d bytes", api.ErrIncompleteRequest, len(p.buf)))
		}
	}
	return p.outcome
}

// headerBlockEnd returns the offset just past the blank line closing the
// header block, or -1. Lines may end in CRLF or a bare LF.
func headerBlockEnd(b []byte) int {
	end := -1
	if i := bytes.Index(b, blankLineCRLF); i >= 0 {
		end = i + len(blankLineCRLF)
	}
	if i := bytes.Index(b, blankLineLF); i >= 0 && (end < 0 || i+len(blankLineLF) < end) {
		end = i + len(blankLineLF)
	}
	return end
}

// parseHeader returns true once the header block is parsed.
func (p *Parser) parseHeader() bool {
	end := headerBlockEnd(p.buf)
	if end < 0 {
		if len(p.buf) > p.cfg.MaxHeaderBytes {
			p.fail(api.ErrHeaderTooLarge)
		}
		return false
	}
	if end > p.cfg.MaxHeaderBytes {
		p.fail(api.ErrHeaderTooLarge)
		return false
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(p.buf[:end])))
	if err != nil {
		p.fail(fmt.Errorf("read request: %w", err))
		return false
	}
	if req.ContentLength > p.cfg.MaxBodyBytes {
		p.fail(api.ErrBodyTooLarge)
		return false
	}
	p.req = req
	p.headerEnd = end
	p.chunkOff = end
	return true
}

func isChunked(r *http.Request) bool {
	for _, te := range r.TransferEncoding {
		if strings.EqualFold(te, "chunked") {
			return true
		}
	}
	return false
}

func (p *Parser) parseBody() {
	var body []byte
	switch {
	case isChunked(p.req):
		done, err := p.decodeChunks()
		if err != nil {
			p.fail(fmt.Errorf("chunked body: %w", err))
			return
		}
		if !done {
			return
		}
		// the decoded body is handed over, Reset starts a new one
		body = p.body
		p.body = nil
		p.req.ContentLength = int64(len(body))
	case p.req.ContentLength > 0:
		raw := p.buf[p.headerEnd:]
		if int64(len(raw)) < p.req.ContentLength {
			return
		}
		// The buffer is reused after Reset, the request gets its own copy.
		body = bytes.Clone(raw[:p.req.ContentLength])
	}

	if len(body) > 0 {
		p.req.Body = io.NopCloser(bytes.NewReader(body))
	} else {
		p.req.Body = http.NoBody
	}
	p.classify()
}

// decodeChunks decodes every complete chunk after chunkOff. Each byte is
// copied once; a chunk whose data has not fully arrived is left in place.
// It reports true once the last chunk and its trailer are in.
func (p *Parser) decodeChunks() (bool, error) {
	for {
		rest := p.buf[p.chunkOff:]
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			if len(rest) > maxChunkLine {
				return false, errChunkLineTooLong
			}
			return false, nil
		}
		size, err := parseChunkSize(rest[:nl])
		if err != nil {
			return false, err
		}

		if size == 0 {
			end, ok, err := trailerEnd(rest[nl+1:], p.cfg.MaxHeaderBytes)
			if err != nil || !ok {
				return false, err
			}
			p.chunkOff += nl + 1 + end
			return true, nil
		}
		if size > p.cfg.MaxBodyBytes-int64(len(p.body)) {
			return false, api.ErrBodyTooLarge
		}

		start := nl + 1
		stop := start + int(size)
		if len(rest) <= stop {
			return false, nil
		}
		n := 0
		switch rest[stop] {
		case '\n':
			n = 1
		case '\r':
			if len(rest) < stop+2 {
				return false, nil
			}
			if rest[stop+1] != '\n' {
				return false, errChunkTerminator
			}
			n = 2
		default:
			return false, errChunkTerminator
		}
		p.body = append(p.body, rest[start:stop]...)
		p.chunkOff += stop + n
	}
}

// parseChunkSize reads the hex size from a chunk-size line, ignoring
// extensions.
func parseChunkSize(line []byte) (int64, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, errors.New("empty chunk size")
	}
	size, err := strconv.ParseUint(string(line), 16, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid chunk size %q", line)
	}
	return int64(size), nil
}

// trailerEnd finds the blank line closing the trailer section of b.
// Trailer fields are skipped.
func trailerEnd(b []byte, limit int) (int, bool, error) {
	off := 0
	for {
		nl := bytes.IndexByte(b[off:], '\n')
		if nl < 0 {
			if len(b) > limit {
				return 0, false, api.ErrHeaderTooLarge
			}
			return 0, false, nil
		}
		line := b[off : off+nl]
		off += nl + 1
		if len(line) == 0 || (len(line) == 1 && line[0] == '\r') {
			return off, true, nil
		}
		if off > limit {
			return 0, false, api.ErrHeaderTooLarge
		}
	}
}

func (p *Parser) classify() {
	if p.cfg.Classifier == nil {
		p.outcome = api.OutcomeOK
		return
	}
	switch o := p.cfg.Classifier.Classify(p.req); o {
	case api.OutcomeOK, api.OutcomeNotFound, api.OutcomeCacheable, api.OutcomeInternalError:
		p.outcome = o
	default:
		p.outcome = api.OutcomeOK
	}
}

// fail records err and drops any partially parsed request.
func (p *Parser) fail(err error) {
	p.err = &api.ParseError{Cause: err}
	p.outcome = api.OutcomeInternalError
	p.req = nil
	p.headerEnd = 0
	p.chunkOff = 0
	p.body = nil
}
