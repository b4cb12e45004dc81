package main

import (
	"context"
	"fmt"

	"github.com/256dpi/gomqtt/packet"
	"github.com/coreos/go-systemd/daemon"
	"github.com/faradayrf/aprsgate/aprsis"
	"github.com/faradayrf/aprsgate/cmd/aprsgate/subcmd"
	"github.com/faradayrf/aprsgate/internal/config"
	"github.com/faradayrf/aprsgate/internal/gate"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/faradayrf/aprsgate/mirror"
	"github.com/faradayrf/aprsgate/station"
	"github.com/juju/errors"
)

var runMod = subcmd.Mod{Name: "run", Main: runMain}

func runMain(ctx context.Context, cfg *config.Config, log *log2.Log) error {
	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		return err
	}

	session, err := aprsis.NewSession(&aprsis.SessionOptions{
		Server:         cfg.AprsisServer(),
		Callsign:       cfg.Aprsis.Callsign,
		Passcode:       cfg.Aprsis.Passcode,
		ClientID:       aprsis.DefaultClientID + " " + BuildVersion,
		RetryDelay:     cfg.RetryDelay(),
		NetworkTimeout: cfg.NetworkTimeout(),
		Log:            log,
	})
	if err != nil {
		return errors.Annotate(err, "aprsis")
	}
	defer session.Close()

	subcmd.SdNotify("STATUS=connecting " + cfg.AprsisServer())
	if err = session.Connect(ctx); err != nil {
		if err == context.Canceled {
			return nil
		}
		return errors.Annotate(err, "aprsis connect")
	}

	var sender gate.Sender = session
	if cfg.Mirror.Enable {
		mc, err := mirror.NewClient(mirror.ClientOptions{
			BrokerURL:    cfg.Mirror.BrokerURL,
			ClientID:     "aprsgate-" + cfg.Aprsis.Callsign,
			KeepaliveSec: uint16(mirrorKeepalive(cfg.Mirror.KeepaliveSec)),
			TopicPrefix:  cfg.Mirror.TopicPrefix,
			QOS:          packet.QOS(cfg.Mirror.Qos),
			Log:          log.Clone(log2.LInfo),
		})
		if err != nil {
			return errors.Annotate(err, "mirror")
		}
		defer mc.Close()
		sender = &mirror.Tee{Relay: session, Mirror: mc, Log: log}
	}

	g, err := gate.New(gate.Options{
		Fetcher: fetcher,
		Sender:  sender,
		Config:  &cfg.Aprs,
		Rate:    cfg.Rate(),
		Log:     log,
		OnCycle: func(st gate.CycleStat, err error) {
			status := st.String()
			if err != nil {
				status = fmt.Sprintf("error: %v", err)
			}
			subcmd.SdNotify(fmt.Sprintf("STATUS=%s aprsis=%s", status, session.Stat()))
		},
	})
	if err != nil {
		return err
	}
	subcmd.SdNotify(daemon.SdNotifyReady)
	log.Infof("running rate=%s", cfg.Rate())

	err = g.Run(ctx)
	subcmd.SdNotify(daemon.SdNotifyStopping)
	switch err {
	case context.Canceled, gate.ErrStopped:
		log.Infof("shutdown aprsis=%s", session.Stat())
		return nil
	}
	return err
}

func newFetcher(cfg *config.Config, log *log2.Log) (*station.Client, error) {
	c, err := station.NewClient(&station.ClientOptions{
		BaseURL:  cfg.TelemetryURL(),
		Timespan: cfg.Telemetry.Timespan,
		Log:      log,
	})
	return c, errors.Annotate(err, "telemetry")
}

func mirrorKeepalive(sec int) int {
	if sec <= 0 {
		return mirror.DefaultKeepaliveSec
	}
	return sec
}
