package sniff

import "io"

// Source wraps a byte stream so that bytes consumed during inspection can be
// pushed back and observed by the next consumer. It is a cursor over an
// in-memory prefix followed by the live reader: Read drains the prefix first,
// Unread prepends to it.
//
// Source is not safe for concurrent use; each connection owns exactly one.
type Source struct {
	prefix []byte
	r      io.Reader
}

// NewSource returns a Source reading from r with an empty prefix.
func NewSource(r io.Reader) *Source {
	return &Source{r: r}
}

// Read drains pushed-back bytes before touching the underlying reader.
func (s *Source) Read(p []byte) (int, error) {
	if len(s.prefix) > 0 {
		n := copy(p, s.prefix)
		s.prefix = s.prefix[n:]
		return n, nil
	}
	return s.r.Read(p)
}

// Unread pushes b back onto the source. The next reads observe b in order
// before any bytes not yet consumed from the underlying reader. The slice is
// copied; the caller may reuse it.
func (s *Source) Unread(b []byte) {
	if len(b) == 0 {
		return
	}
	buf := make([]byte, 0, len(b)+len(s.prefix))
	buf = append(buf, b...)
	buf = append(buf, s.prefix...)
	s.prefix = buf
}

// Buffered reports how many pushed-back bytes remain unconsumed.
func (s *Source) Buffered() int {
	return len(s.prefix)
}
