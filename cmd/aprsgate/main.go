// aprsgate relays telemetry of FaradayRF stations to APRS-IS.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/faradayrf/aprsgate/cmd/aprsgate/subcmd"
	"github.com/faradayrf/aprsgate/internal/config"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
)

var BuildVersion = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	runMod,
	dumpMod,
}

func main() {
	flagset := flag.NewFlagSet("aprsgate", flag.ExitOnError)
	flagConfig := flagset.String("config", "aprsgate.hcl", "path to HCL config file")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "usage: aprsgate [-config aprsgate.hcl] [run|dump]\n")
		flagset.PrintDefaults()
	}
	_ = flagset.Parse(os.Args[1:])

	command := "run"
	if flagset.NArg() > 0 {
		command = flagset.Arg(0)
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify("STATUS=start") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		log.SetFlags(log2.LStdFlags)
	}
	log.Infof("aprsgate version=%s command=%s", BuildVersion, mod.Name)

	cfg := config.MustReadConfigFile(*flagConfig, log)
	if cfg.LogDebug {
		log.SetLevel(log2.LDebug)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := mod.Main(ctx, cfg, log); err != nil {
		cancel()
		log.Fatal(errors.ErrorStack(err))
	}
}
