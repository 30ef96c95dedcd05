// Package micfile reads launch-noise microphone recordings.
//
// A recording is comma-separated text in two sections. The header holds
// "label,value" rows giving the microphone position, the launch time (UTC)
// and the vehicle name. A marker row opens the numeric block, whose rows
// carry a time of day followed by linear, A-weighted and B-weighted sound
// pressure levels:
//
//	;LATITUDE......................,37.8312
//	;LONGITUDE.....................,-75.4903
//	;LAUNCH TIME  (UTC ZULU).......,16:01:32.000000
//	;VEHICLE NAME..................,ANTARES 230
//	AMBIENT
//	16:01:20.000000,101.2,96.4,99.0
//	16:01:21.000000,102.8,97.1,99.6
//
// [ParseHeader] extracts the metadata and [ParseSeries] the launch-relative
// level series. A file whose first level is the "NaN" sentinel yields
// [ErrNoData].
package micfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/launchnoise/geodesy"
)

// Header is the metadata block of one recording.
type Header struct {
	Position   geodesy.Coordinate
	StartIndex int     // zero-based line of the data marker
	LaunchTime float64 // seconds since midnight UTC
	Vehicle    string
}

// ParseHeader reads the metadata block using [DefaultSchema].
func ParseHeader(r io.Reader) (Header, error) {
	return DefaultSchema.ParseHeader(r)
}

// ReadHeader parses the metadata block of the file at path.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	return ParseHeader(f)
}

// ParseHeader scans rows top to bottom and fills every field the schema
// declares. The first occurrence of a label wins. Scanning stops once all
// fields and the data marker are found; otherwise it runs to the end of the
// input and reports every absent field in a [*MissingFieldError].
func (s Schema) ParseHeader(r io.Reader) (Header, error) {
	s = s.withDefaults()
	labels := s.lookup()
	cr := newReader(r)

	var (
		h       Header
		found   = make(map[Field]bool, len(fieldNames))
		rawTime string
		timeAt  int
	)

	for len(found) < len(fieldNames) {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Header{}, fmt.Errorf("micfile: read header: %w", err)
		}
		if len(rec) == 0 {
			continue
		}

		field, ok := labels[NormalizeLabel(rec[0])]
		if !ok || found[field] {
			continue
		}
		line := cr.Line()
		value := ""
		if len(rec) > 1 {
			value = strings.TrimSpace(rec[1])
		}

		switch field {
		case FieldLatitude:
			h.Position.Lat, err = parseDegrees("latitude", value, line, 90)
		case FieldLongitude:
			h.Position.Lon, err = parseDegrees("longitude", value, line, 180)
		case FieldLaunchTime:
			rawTime, timeAt = value, line
		case FieldVehicle:
			h.Vehicle = value
		case FieldDataMarker:
			h.StartIndex = line - 1
		}
		if err != nil {
			return Header{}, err
		}
		found[field] = true
	}

	if missing := missingFields(found); len(missing) > 0 {
		return Header{}, &MissingFieldError{Fields: missing}
	}

	t, err := ParseTimeOfDay(rawTime)
	if err != nil {
		var tpe *TimeParseError
		if errors.As(err, &tpe) {
			tpe.Line = timeAt
		}
		return Header{}, err
	}
	h.LaunchTime = t

	return h, nil
}

// ParseTimeOfDay converts "HH:MM:SS" with an optional fractional second to
// seconds since midnight.
func ParseTimeOfDay(s string) (float64, error) {
	v := strings.TrimSpace(s)
	// time.Parse accepts a fractional second after the seconds field even
	// though the layout does not spell it out.
	t, err := time.Parse("15:04:05", v)
	if err != nil {
		return 0, &TimeParseError{Value: s, Err: err}
	}
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return float64(secs) + float64(t.Nanosecond())/1e9, nil
}

// FormatTimeOfDay renders seconds since midnight as HH:MM:SS.ffffff.
func FormatTimeOfDay(secs float64) string {
	d := time.Duration(secs * float64(time.Second)).Round(time.Microsecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%06d", int64(h), int64(m), int64(sec), int64(d/time.Microsecond))
}

func parseDegrees(name, value string, line int, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &FieldError{Field: name, Value: value, Line: line, Err: err}
	}
	if v < -limit || v > limit {
		return 0, &FieldError{Field: name, Value: value, Line: line, Err: geodesy.ErrOutOfRange}
	}
	return v, nil
}

func missingFields(found map[Field]bool) []Field {
	var missing []Field
	for f := range fieldNames {
		if !found[f] {
			missing = append(missing, f)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// Load reads the file at path once and parses both sections.
func Load(path string) (Header, Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, Series{}, err
	}
	h, err := ParseHeader(bytes.NewReader(data))
	if err != nil {
		return Header{}, Series{}, err
	}
	s, err := ParseSeries(bytes.NewReader(data), h)
	if err != nil {
		return h, Series{}, err
	}
	return h, s, nil
}
