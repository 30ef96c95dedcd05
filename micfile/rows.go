package micfile

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

const maxLineLength = 1 << 20

// rowReader splits input into comma-separated fields one physical line at a
// time. Quotes carry no meaning: converter output never quotes, and a stray
// quote in a free-text value must not swallow the following lines.
type rowReader struct {
	sc     *bufio.Scanner
	line   int
	fields []string
}

func newReader(r io.Reader) *rowReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)
	return &rowReader{sc: sc}
}

// Read returns the fields of the next line, or io.EOF. The returned slice is
// reused by the next call.
func (rr *rowReader) Read() ([]string, error) {
	if !rr.sc.Scan() {
		if err := rr.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	rr.line++
	text := strings.TrimSuffix(rr.sc.Text(), "\r")
	if rr.line == 1 {
		text = strings.TrimPrefix(text, "\ufeff")
	}

	rr.fields = rr.fields[:0]
	for _, f := range strings.Split(text, ",") {
		rr.fields = append(rr.fields, strings.TrimLeftFunc(f, unicode.IsSpace))
	}
	return rr.fields, nil
}

// Line returns the one-based line number of the last row read.
func (rr *rowReader) Line() int { return rr.line }
