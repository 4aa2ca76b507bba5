// Package sniff extracts the first request's header block from a raw byte
// stream without losing a single byte: everything read during scanning is
// pushed back onto the source so a later relay forwards the stream unchanged.
package sniff

import (
	"bytes"
	"io"
	"strings"
)

// MaxHeaderBytes caps how much of the stream is accumulated while looking for
// the end of the header block. Reaching the cap hands the buffer off as-is,
// which protects against header floods from slow or hostile clients.
const MaxHeaderBytes = 1000

const readChunkSize = 512

var (
	crlfTerminator = []byte("\r\n\r\n")
	lfTerminator   = []byte("\n\n")
)

// Header is one name/value pair. Names are case-folded to lowercase; values
// keep their bytes except for one leading run of whitespace and a trailing CR.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Duplicates are allowed and preserved in
// arrival order.
type Headers []Header

// Get returns the first value for name (lowercase) and whether it was present.
func (hs Headers) Get(name string) (string, bool) {
	for _, h := range hs {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Values returns all values for name (lowercase) in arrival order.
func (hs Headers) Values(name string) []string {
	var vals []string
	for _, h := range hs {
		if h.Name == name {
			vals = append(vals, h.Value)
		}
	}
	return vals
}

// ScanHeaders accumulates bytes from src until the buffer contains a blank-line
// terminator ("\r\n\r\n" or "\n\n"), the buffer reaches MaxHeaderBytes, or the
// stream ends. Whichever triggers first, the entire accumulated buffer is
// pushed back onto src before returning, so the request line, terminator and
// any overshoot bytes all remain readable.
//
// A stream that ends before any terminator is not an error at this layer: the
// accumulated bytes are treated as the full, final chunk and parsed as-is.
// Whether that is acceptable is the resolver's call. Read failures other than
// EOF propagate, with the buffer still pushed back first.
func ScanHeaders(src *Source) (Headers, error) {
	var acc []byte
	chunk := make([]byte, readChunkSize)
	for {
		if bytes.Contains(acc, crlfTerminator) || bytes.Contains(acc, lfTerminator) {
			break
		}
		if len(acc) >= MaxHeaderBytes {
			// Cap reached without a terminator. The buffer is handed off
			// for parsing as if complete; a header split exactly at the
			// boundary parses truncated.
			break
		}
		n, err := src.Read(chunk)
		if n > 0 {
			acc = append(acc, chunk[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			src.Unread(acc)
			return nil, err
		}
	}
	src.Unread(acc)
	return parseHeaderBlock(acc), nil
}

// parseHeaderBlock splits the accumulated buffer into lines, discards the
// request line, and collects name/value pairs up to the first empty line.
// Lines without a colon are skipped.
func parseHeaderBlock(block []byte) Headers {
	lines := strings.Split(string(block), "\n")
	if len(lines) < 2 {
		return nil
	}
	var hs Headers
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		hs = append(hs, Header{
			Name:  strings.ToLower(name),
			Value: strings.TrimLeft(value, " \t"),
		})
	}
	return hs
}
