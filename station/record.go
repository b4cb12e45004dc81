package station

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/faradayrf/aprsgate/aprs"
	"github.com/faradayrf/aprsgate/log2"
	"github.com/juju/errors"
)

var ErrNoSample = errors.New("no sample in timespan")

var (
	errMissing = errors.New("missing")
	errNull    = errors.New("null")
)

// ParseError is returned for sample records that miss required keys or carry wrong types.
type ParseError struct {
	Key string
	Err error
}

// No Cause method: errors.Cause of annotated fetch error must return *ParseError.
func (e *ParseError) Error() string { return fmt.Sprintf("parse key=%s: %v", e.Key, e.Err) }

type Station struct {
	Node  aprs.Node
	Epoch float64
}

func (s Station) String() string { return s.Node.String() }

type stationRecord struct {
	Callsign *string  `json:"SOURCECALLSIGN"`
	ID       *int     `json:"SOURCEID"`
	Epoch    *float64 `json:"EPOCH"`
}

// Store keeps numeric fields as numbers, but sensor values went through
// text in some versions. Any JSON value decodes, validation is left to encoder
// so that null or garbage only skips position frame. Null becomes empty.
type measure aprs.Measure

func (m *measure) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*m = ""
	case len(b) != 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = measure(s)
	default:
		*m = measure(b)
	}
	return nil
}

type sampleRecord struct {
	SourceCallsign *string `json:"SOURCECALLSIGN"`
	SourceID       *int    `json:"SOURCEID"`
	DestCallsign   *string `json:"DESTINATIONCALLSIGN"`
	DestID         *int    `json:"DESTINATIONID"`

	Latitude     *string  `json:"GPSLATITUDE"`
	Longitude    *string  `json:"GPSLONGITUDE"`
	LatitudeDir  *string  `json:"GPSLATITUDEDIR"`
	LongitudeDir *string  `json:"GPSLONGITUDEDIR"`
	Altitude     measure  `json:"GPSALTITUDE"`
	Speed        measure  `json:"GPSSPEED"`
	Fix          *int     `json:"GPSFIX"`

	ADC0      *int `json:"ADC0"`
	ADC1      *int `json:"ADC1"`
	ADC3      *int `json:"ADC3"`
	ADC6      *int `json:"ADC6"`
	BoardTemp *int `json:"BOARDTEMP"`
	GPIO      *int `json:"GPIOSTATE"`
	RF        *int `json:"RFSTATE"`
}

// checkKeys returns ParseError for first key of v absent in raw record,
// or present as null in pointer field.
func checkKeys(raw map[string]json.RawMessage, v interface{}) error {
	rv := reflect.ValueOf(v).Elem()
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		key := rt.Field(i).Tag.Get("json")
		if _, ok := raw[key]; !ok {
			return &ParseError{Key: key, Err: errMissing}
		}
		if f := rv.Field(i); f.Kind() == reflect.Ptr && f.IsNil() {
			return &ParseError{Key: key, Err: errNull}
		}
	}
	return nil
}

func decodeRecord(b []byte, v interface{}) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return parseError(err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return parseError(err)
	}
	return checkKeys(raw, v)
}

// decodeStations skips malformed entries, only unparsable list is an error.
func decodeStations(b []byte, log *log2.Log) ([]Station, error) {
	var rs []json.RawMessage
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, parseError(err)
	}
	ss := make([]Station, 0, len(rs))
	for i, b := range rs {
		var r stationRecord
		if err := decodeRecord(b, &r); err != nil {
			log.Errorf("station list index=%d skip err=%v", i, err)
			continue
		}
		ss = append(ss, Station{
			Node:  aprs.Node{Callsign: *r.Callsign, ID: *r.ID},
			Epoch: *r.Epoch,
		})
	}
	return ss, nil
}

// decodeSample takes first element of JSON array.
func decodeSample(b []byte) (aprs.Sample, error) {
	var rs []json.RawMessage
	if err := json.Unmarshal(b, &rs); err != nil {
		return aprs.Sample{}, parseError(err)
	}
	if len(rs) == 0 {
		return aprs.Sample{}, ErrNoSample
	}
	var r sampleRecord
	if err := decodeRecord(rs[0], &r); err != nil {
		return aprs.Sample{}, err
	}
	for _, d := range []struct {
		key string
		v   int
	}{{"GPIOSTATE", *r.GPIO}, {"RFSTATE", *r.RF}} {
		if d.v < 0 || d.v > 0xff {
			return aprs.Sample{}, &ParseError{Key: d.key, Err: errors.NotValidf("value=%d out of 0-255", d.v)}
		}
	}
	return aprs.Sample{
		Source:       aprs.Node{Callsign: *r.SourceCallsign, ID: *r.SourceID},
		Dest:         aprs.Node{Callsign: *r.DestCallsign, ID: *r.DestID},
		Latitude:     *r.Latitude,
		Longitude:    *r.Longitude,
		LatitudeDir:  *r.LatitudeDir,
		LongitudeDir: *r.LongitudeDir,
		Altitude:     aprs.Measure(r.Altitude),
		Speed:        aprs.Measure(r.Speed),
		Fix:          *r.Fix,
		Analog:       [4]int{*r.ADC0, *r.ADC1, *r.ADC3, *r.ADC6},
		BoardTemp:    *r.BoardTemp,
		GPIO:         uint8(*r.GPIO),
		RF:           uint8(*r.RF),
	}, nil
}

func parseError(err error) error {
	if te, ok := err.(*json.UnmarshalTypeError); ok && te.Field != "" {
		return &ParseError{Key: te.Field, Err: err}
	}
	return &ParseError{Key: "", Err: err}
}
