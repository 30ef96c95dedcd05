package micfile

import (
	"strings"
	"unicode"
)

// Field identifies a required header entry.
type Field int

const (
	FieldLatitude Field = iota
	FieldLongitude
	FieldLaunchTime
	FieldVehicle
	FieldDataMarker
)

var fieldNames = map[Field]string{
	FieldLatitude:   "latitude",
	FieldLongitude:  "longitude",
	FieldLaunchTime: "launch time",
	FieldVehicle:    "vehicle name",
	FieldDataMarker: "data marker",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "unknown"
}

// Schema declares how a recording is laid out: which header labels carry
// which field, the label that opens the numeric block, and which data
// columns hold the time of day and the level of record.
//
// Labels are compared after [NormalizeLabel], so ";LATITUDE......" and
// "Latitude" select the same field.
type Schema struct {
	Labels      map[Field][]string
	DataMarker  string
	TimeColumn  int
	LevelColumn int
	Sentinel    string
}

// DefaultSchema matches the CSV files produced by the launch-noise
// text-to-CSV converters. Data rows are
// [time of day, linear SPL, A-weighted SPL, B-weighted SPL]; the A-weighted
// level is the series of record.
var DefaultSchema = Schema{
	Labels: map[Field][]string{
		FieldLatitude:   {"LATITUDE", "LAT"},
		FieldLongitude:  {"LONGITUDE", "LON", "LONG"},
		FieldLaunchTime: {"LAUNCH TIME (UTC ZULU)", "LAUNCH TIME (UTC)", "LAUNCH TIME"},
		FieldVehicle:    {"VEHICLE NAME", "VEHICLE"},
	},
	DataMarker:  "AMBIENT",
	TimeColumn:  0,
	LevelColumn: 2,
	Sentinel:    "NaN",
}

// ColumnLinear, ColumnAWeighted and ColumnBWeighted index the level columns
// of a data row.
const (
	ColumnLinear    = 1
	ColumnAWeighted = 2
	ColumnBWeighted = 3
)

// NormalizeLabel canonicalizes a header label: surrounding whitespace, a
// leading comment marker and trailing fill dots are removed, inner runs of
// whitespace collapse to one space and letters are upper-cased.
func NormalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ";#")
	s = strings.TrimRight(s, ". :\t")
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// lookup maps normalized labels to fields.
func (s Schema) lookup() map[string]Field {
	m := make(map[string]Field)
	for f, labels := range s.Labels {
		for _, l := range labels {
			m[NormalizeLabel(l)] = f
		}
	}
	m[NormalizeLabel(s.DataMarker)] = FieldDataMarker
	return m
}

func (s Schema) withDefaults() Schema {
	if s.Labels == nil {
		s.Labels = DefaultSchema.Labels
	}
	if s.DataMarker == "" {
		s.DataMarker = DefaultSchema.DataMarker
	}
	if s.LevelColumn == 0 && s.TimeColumn == 0 {
		s.LevelColumn = DefaultSchema.LevelColumn
	}
	if s.Sentinel == "" {
		s.Sentinel = DefaultSchema.Sentinel
	}
	return s
}
