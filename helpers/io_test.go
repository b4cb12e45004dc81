package helpers

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteAll(t *testing.T) {
	t.Parallel()
	frame := []byte("N0CALL-1>APRS:T#001,055,000,000,000,000,00000000\r")

	cases := []struct {
		name   string
		w      func(*bytes.Buffer) io.Writer
		expect string
		err    error
	}{
		{"whole", func(b *bytes.Buffer) io.Writer { return b }, string(frame), nil},
		{"short-7", func(b *bytes.Buffer) io.Writer { return &chunkWriter{w: b, n: 7} }, string(frame), nil},
		{"short-1", func(b *bytes.Buffer) io.Writer { return &chunkWriter{w: b, n: 1} }, string(frame), nil},
		{"stuck", func(b *bytes.Buffer) io.Writer { return &chunkWriter{w: b, n: 0} }, "", io.ErrShortWrite},
		{"fail", func(b *bytes.Buffer) io.Writer { return &chunkWriter{w: b, n: 5, err: errClosedPipe} }, "", errClosedPipe},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			buf := bytes.NewBuffer(nil)
			err := WriteAll(c.w(buf), frame)
			assert.Equal(t, c.err, err)
			assert.Equal(t, c.expect, buf.String())
		})
	}
}

var errClosedPipe = errors.New("closed pipe")

// chunkWriter accepts at most n bytes per Write.
type chunkWriter struct {
	w   io.Writer
	n   int
	err error
}

func (cw *chunkWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	if len(p) > cw.n {
		p = p[:cw.n]
	}
	return cw.w.Write(p)
}
