package log2

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"log"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog2(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fun  func(t testing.TB, l *Log) string
	}{
		{"caller/debug", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Debugf("low level var=%d", 42)
			return formatCallerShort(1) + "debug: low level var=42\n"
		}},
		{"caller/info", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Infof("regular state=%s", "ok")
			return formatCallerShort(1) + "regular state=ok\n"
		}},
		{"caller/error", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Errorf("problem")
			return formatCallerShort(1) + "error: problem\n"
		}},
		{"caller/warning", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Warningf("node=%s no fix", "N0CALL-1")
			return formatCallerShort(1) + "warning: node=N0CALL-1 no fix\n"
		}},
		{"level/skip", func(t testing.TB, l *Log) string {
			l.SetFlags(0)
			l.SetLevel(LInfo)
			l.Debugf("hidden")
			l.Infof("visible")
			return "visible\n"
		}},
		{"error-func/error", func(t testing.TB, l *Log) string {
			ech := make(chan error, 1)
			l.SetErrorFunc(func(e error) { ech <- e })
			l.SetFlags(0)
			exactError := fmt.Errorf("one particular issue")
			l.Error(exactError)
			close(ech)
			e := <-ech
			if l == nil {
				assert.Nil(t, e)
			} else {
				assert.Equal(t, exactError, e)
			}
			return "error: one particular issue\n"
		}},
		{"error-func/string", func(t testing.TB, l *Log) string {
			ech := make(chan error, 1)
			l.SetErrorFunc(func(e error) { ech <- e })
			l.SetFlags(0)
			l.Errorf("trouble var=%.1f", 3.4)
			close(ech)
			e := <-ech
			if l == nil {
				assert.Nil(t, e)
			} else {
				assert.Equal(t, "trouble var=3.4", e.Error())
			}
			return "error: trouble var=3.4\n"
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name+"/logger=nil", func(t *testing.T) {
			c.fun(t, nil)
		})
		t.Run(c.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			l := NewWriter(buf, LAll)
			expect := c.fun(t, l)
			assert.Equal(t, expect, buf.String())
		})
	}
}

func TestClone(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LInfo)
	l.SetFlags(0)
	l.SetPrefix("aprsgate ")
	c := l.Clone(LDebug)
	require.NotNil(t, c)
	c.Debugf("cycle samples=%d", 3)
	l.Debugf("hidden")
	assert.Equal(t, "aprsgate debug: cycle samples=3\n", buf.String())
	assert.True(t, c.Enabled(LDebug))
	assert.False(t, l.Enabled(LDebug))
}

func TestNilLog(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewWriter(ioutil.Discard, LAll))
	var l *Log
	assert.Nil(t, l.Clone(LAll))
	assert.False(t, l.Enabled(LError))
	l.SetLevel(LDebug)
	l.Printf("session state=%s", "authenticated")
}

func TestFuncWriter(t *testing.T) {
	t.Parallel()
	lines := []string{}
	l := NewFunc(func(format string, args ...interface{}) { lines = append(lines, fmt.Sprintf(format, args...)) }, LWarning)
	l.SetFlags(0)
	l.Infof("hidden")
	l.Warningf("node=%s no fix", "N0CALL-2")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "warning: node=N0CALL-2"))
}

func callerShort(depth int) (file string, line int) {
	var ok bool
	_, file, line, ok = runtime.Caller(depth)
	if !ok {
		file = "???"
		line = 0
	}

	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	file = short

	return
}

func formatCallerShort(depth int) string {
	file, line := callerShort(depth + 1)
	return fmt.Sprintf("%s:%d: ", file, line-1)
}
