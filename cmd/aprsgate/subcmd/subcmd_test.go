package subcmd

import (
	"context"
	"testing"

	"github.com/faradayrf/aprsgate/internal/config"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, *config.Config, *log2.Log) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "dump", Main: noop}}

	m, err := Parse("dump", mods)
	require.NoError(t, err)
	assert.Equal(t, "dump", m.Name)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("serve", mods)
	assert.EqualError(t, err, "unknown command='serve'")
	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{}}) })
}

func TestSdNotifyNoSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	assert.False(t, SdNotify("STATUS=test"))
}
