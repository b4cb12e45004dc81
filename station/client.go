// Package station fetches active stations and their latest telemetry
// samples from the local telemetry store HTTP API.
package station

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/faradayrf/aprsgate/aprs"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultTimespan = 600

	readLimit = 1 << 20
)

type ClientOptions struct {
	BaseURL    string // http://host:port
	Timespan   int    // seconds, maximum sample age
	HTTPClient *http.Client
	Log        *log2.Log
}

type Client struct {
	base *url.URL
	hc   *http.Client
	log  *log2.Log
	opt  *ClientOptions
}

func NewClient(opt *ClientOptions) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opt.BaseURL, "/"))
	if err != nil {
		return nil, errors.Annotatef(err, "config error telemetry url=%s", opt.BaseURL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.NotValidf("config error telemetry url=%s", opt.BaseURL)
	}
	if opt.Timespan <= 0 {
		opt.Timespan = DefaultTimespan
	}
	c := &Client{
		base: base,
		hc:   opt.HTTPClient,
		log:  opt.Log,
		opt:  opt,
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: DefaultTimeout}
	}
	return c, nil
}

// Stations returns nodes heard recently, as listed by the store.
func (c *Client) Stations(ctx context.Context) ([]Station, error) {
	b, err := c.get(ctx, "/stations", nil)
	if err != nil {
		return nil, errors.Annotate(err, "stations")
	}
	ss, err := decodeStations(b, c.log)
	return ss, errors.Annotate(err, "stations")
}

// Latest returns most recent sample of station within configured timespan.
func (c *Client) Latest(ctx context.Context, st Station) (aprs.Sample, error) {
	q := url.Values{}
	q.Set("callsign", st.Node.Callsign)
	q.Set("nodeid", strconv.Itoa(st.Node.ID))
	q.Set("timespan", strconv.Itoa(c.opt.Timespan))
	q.Set("limit", "1")
	b, err := c.get(ctx, "/", q)
	if err != nil {
		return aprs.Sample{}, errors.Annotatef(err, "latest station=%s", st)
	}
	s, err := decodeSample(b)
	if err != nil {
		return aprs.Sample{}, errors.Annotatef(err, "latest station=%s", st)
	}
	return s, nil
}

// Samples fetches station list then latest sample of each.
// Failed station is logged and omitted, order follows station list.
// Error is returned only when station list is unavailable.
func (c *Client) Samples(ctx context.Context) ([]aprs.Sample, error) {
	stations, err := c.Stations(ctx)
	if err != nil {
		return nil, err
	}
	samples := make([]aprs.Sample, 0, len(stations))
	for _, st := range stations {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		s, err := c.Latest(ctx, st)
		if err != nil {
			if errors.Cause(err) == ErrNoSample {
				c.log.Debugf("station=%s no sample in timespan=%ds", st, c.opt.Timespan)
			} else {
				c.log.Errorf("station=%s err=%v", st, err)
			}
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("Accept", "application/json")
	c.log.Debugf("http get url=%s", u.String())
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer resp.Body.Close()
	b, err := ioutil.ReadAll(io.LimitReader(resp.Body, readLimit))
	if err != nil {
		return nil, errors.Annotate(err, "read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("http status=%s url=%s", resp.Status, u.String())
	}
	return b, nil
}
