// Package config reads aprsgate HCL configuration file, applies defaults
// and validates everything at once so operator sees all mistakes together.
package config

import (
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/faradayrf/aprsgate/aprs"
	"github.com/faradayrf/aprsgate/helpers"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

const (
	DefaultAprsisPort     = 14580
	DefaultRateSec        = 60
	DefaultRetryDelaySec  = 10
	DefaultNetworkTimeout = 30
	DefaultTimespanSec    = 600
	DefaultTopicPrefix    = "aprsgate"
)

type Config struct {
	LogDebug bool `hcl:"log_debug"`

	Telemetry struct {
		Host     string `hcl:"host"`
		Port     int    `hcl:"port"`
		Timespan int    `hcl:"timespan"` // seconds, maximum sample age
	} `hcl:"telemetry"`

	Aprsis struct { //nolint:maligned
		Server            string `hcl:"server"`
		Port              int    `hcl:"port"`
		RateSec           int    `hcl:"rate_sec"`
		Callsign          string `hcl:"callsign"`
		Passcode          int    `hcl:"passcode"`
		RetryDelaySec     int    `hcl:"retry_delay_sec"`
		NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	} `hcl:"aprsis"`

	Aprs aprs.Config `hcl:"aprs"`

	Mirror struct {
		Enable       bool   `hcl:"enable"`
		BrokerURL    string `hcl:"broker_url"`
		TopicPrefix  string `hcl:"topic_prefix"`
		Qos          int    `hcl:"qos"`
		KeepaliveSec int    `hcl:"keepalive_sec"`
	} `hcl:"mirror"`
}

func (c *Config) TelemetryURL() string {
	return "http://" + net.JoinHostPort(c.Telemetry.Host, strconv.Itoa(c.Telemetry.Port))
}

func (c *Config) AprsisServer() string {
	return net.JoinHostPort(c.Aprsis.Server, strconv.Itoa(c.Aprsis.Port))
}

func (c *Config) Rate() time.Duration {
	return helpers.IntSecondDefault(c.Aprsis.RateSec, DefaultRateSec*time.Second)
}

func (c *Config) RetryDelay() time.Duration {
	return helpers.IntSecondDefault(c.Aprsis.RetryDelaySec, DefaultRetryDelaySec*time.Second)
}

func (c *Config) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Aprsis.NetworkTimeoutSec, DefaultNetworkTimeout*time.Second)
}

func (c *Config) init() error {
	if c.Aprsis.Port == 0 {
		c.Aprsis.Port = DefaultAprsisPort
	}
	if c.Aprsis.RateSec <= 0 {
		c.Aprsis.RateSec = DefaultRateSec
	}
	if c.Aprsis.RetryDelaySec <= 0 {
		c.Aprsis.RetryDelaySec = DefaultRetryDelaySec
	}
	if c.Aprsis.NetworkTimeoutSec <= 0 {
		c.Aprsis.NetworkTimeoutSec = DefaultNetworkTimeout
	}
	if c.Telemetry.Timespan <= 0 {
		c.Telemetry.Timespan = DefaultTimespanSec
	}
	if c.Aprs.DataTypeIdent == "" {
		c.Aprs.DataTypeIdent = aprs.DefaultDataTypeIdent
	}
	if len(c.Aprs.Equations) == 0 {
		c.Aprs.Equations = aprs.DefaultEquations()
	}
	c.Aprs.IOSource = strings.ToLower(c.Aprs.IOSource)
	if c.Mirror.TopicPrefix == "" {
		c.Mirror.TopicPrefix = DefaultTopicPrefix
	}
	return helpers.FoldErrors(c.validate())
}

func (c *Config) validate() []error {
	errs := make([]error, 0, 8)
	notSet := func(name string) { errs = append(errs, errors.Errorf("%s is not set", name)) }
	if c.Telemetry.Host == "" {
		notSet("telemetry.host")
	}
	if !validPort(c.Telemetry.Port) {
		errs = append(errs, errors.NotValidf("telemetry.port=%d", c.Telemetry.Port))
	}
	if c.Aprsis.Server == "" {
		notSet("aprsis.server")
	}
	if !validPort(c.Aprsis.Port) {
		errs = append(errs, errors.NotValidf("aprsis.port=%d", c.Aprsis.Port))
	}
	if c.Aprsis.Callsign == "" {
		notSet("aprsis.callsign")
	} else if strings.ContainsAny(c.Aprsis.Callsign, " \t") {
		errs = append(errs, errors.NotValidf("aprsis.callsign=%q contains space", c.Aprsis.Callsign))
	}
	if c.Aprs.DestAddress == "" {
		notSet("aprs.dest_address")
	}
	switch c.Aprs.IOSource {
	case aprs.IOSourceGPIO, aprs.IOSourceRF:
	default:
		errs = append(errs, errors.NotValidf("aprs.io_source=%q (valid: %s, %s)", c.Aprs.IOSource, aprs.IOSourceGPIO, aprs.IOSourceRF))
	}
	for _, l := range []struct {
		name string
		ss   []string
		max  int
	}{
		{"aprs.units", c.Aprs.Units, aprs.NumAnalog},
		{"aprs.labels", c.Aprs.Labels, aprs.NumDigital},
		{"aprs.analog_params", c.Aprs.AnalogParams, aprs.NumAnalog},
		{"aprs.digital_params", c.Aprs.DigitalParams, aprs.NumDigital},
	} {
		if len(l.ss) > l.max {
			errs = append(errs, errors.NotValidf("%s length=%d max=%d", l.name, len(l.ss), l.max))
		}
	}
	if len(c.Aprs.Equations) != aprs.NumEquation {
		errs = append(errs, errors.NotValidf("aprs.equations length=%d expected=%d", len(c.Aprs.Equations), aprs.NumEquation))
	}
	for _, eq := range c.Aprs.Equations {
		if _, err := strconv.ParseFloat(strings.TrimSpace(eq), 64); err != nil {
			errs = append(errs, errors.NotValidf("aprs.equations value=%q", eq))
		}
	}
	for name, s := range c.frameStrings() {
		if strings.ContainsAny(s, "\r\n") {
			errs = append(errs, errors.NotValidf("%s=%q contains line terminator", name, s))
		}
	}
	if c.Mirror.Enable {
		if c.Mirror.BrokerURL == "" {
			notSet("mirror.broker_url")
		}
		if c.Mirror.Qos < 0 || c.Mirror.Qos > 1 {
			errs = append(errs, errors.NotValidf("mirror.qos=%d (valid: 0, 1)", c.Mirror.Qos))
		}
	}
	return errs
}

// frameStrings lists every configured value that ends up in frames or login line.
func (c *Config) frameStrings() map[string]string {
	m := map[string]string{
		"aprsis.callsign":       c.Aprsis.Callsign,
		"aprs.qconstruct":       c.Aprs.QConstruct,
		"aprs.datatype_ident":   c.Aprs.DataTypeIdent,
		"aprs.dest_address":     c.Aprs.DestAddress,
		"aprs.symbol_table":     c.Aprs.SymbolTable,
		"aprs.symbol":           c.Aprs.Symbol,
		"aprs.alt_symbol_table": c.Aprs.AltSymbolTable,
		"aprs.alt_symbol":       c.Aprs.AltSymbol,
		"aprs.comment":          c.Aprs.Comment,
		"aprs.alt_comment":      c.Aprs.AltComment,
	}
	for name, ss := range map[string][]string{
		"aprs.units":          c.Aprs.Units,
		"aprs.labels":         c.Aprs.Labels,
		"aprs.analog_params":  c.Aprs.AnalogParams,
		"aprs.digital_params": c.Aprs.DigitalParams,
		"aprs.equations":      c.Aprs.Equations,
	} {
		for i, s := range ss {
			m[fmt.Sprintf("%s[%d]", name, i)] = s
		}
	}
	return m
}

func validPort(p int) bool { return p > 0 && p <= 0xffff }

func ReadConfig(r io.Reader, log *log2.Log) (*Config, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c := new(Config)
	if err = hcl.Unmarshal(b, c); err != nil {
		return nil, errors.Annotate(err, "config parse")
	}
	if err = c.init(); err != nil {
		return nil, errors.Annotate(err, "config")
	}
	log.Debugf("config telemetry=%s aprsis=%s callsign=%s rate=%s", c.TelemetryURL(), c.AprsisServer(), c.Aprsis.Callsign, c.Rate())
	return c, nil
}

func ReadConfigFile(path string, log *log2.Log) (*Config, error) {
	if pathAbs, err := filepath.Abs(path); err != nil {
		log.Errorf("filepath.Abs(%s) error=%v", path, err)
	} else {
		path = pathAbs
	}
	log.Debugf("reading config file %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	return ReadConfig(f, log)
}

func MustReadConfigFile(path string, log *log2.Log) *Config {
	c, err := ReadConfigFile(path, log)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
