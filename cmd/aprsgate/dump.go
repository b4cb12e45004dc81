package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/faradayrf/aprsgate/cmd/aprsgate/subcmd"
	"github.com/faradayrf/aprsgate/internal/config"
	"github.com/faradayrf/aprsgate/internal/gate"
	"github.com/faradayrf/aprsgate/log2"
)

var dumpMod = subcmd.Mod{Name: "dump", Main: dumpMain}

// dump runs one cycle with frames written to stdout, useful to check configuration.
func dumpMain(ctx context.Context, cfg *config.Config, log *log2.Log) error {
	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		return err
	}
	g, err := gate.New(gate.Options{
		Fetcher: fetcher,
		Sender:  lineWriter{os.Stdout},
		Config:  &cfg.Aprs,
		Log:     log,
	})
	if err != nil {
		return err
	}
	st, err := g.Cycle(ctx)
	log.Infof("dump %s", st)
	return err
}

// lineWriter replaces APRS-IS CR line end with LF for terminal output.
type lineWriter struct{ w io.Writer }

func (lw lineWriter) Send(ctx context.Context, frame string) error {
	_, err := fmt.Fprintln(lw.w, strings.TrimRight(frame, "\r"))
	return err
}
