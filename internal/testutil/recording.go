package testutil

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/cwbudde/launchnoise/geodesy"
	"github.com/cwbudde/launchnoise/micfile"
)

// Recording describes a synthetic microphone file in the converter layout.
type Recording struct {
	Position   geodesy.Coordinate
	LaunchTime float64 // seconds since midnight UTC
	Vehicle    string

	// Start is the time of the first data row relative to launch, Step the
	// spacing between rows. Levels holds the A-weighted column; the linear
	// and B-weighted columns are derived from it.
	Start  float64
	Step   float64
	Levels []float64

	// NoData writes the sentinel into the first row's level columns.
	NoData bool

	// Omit drops header rows for the listed fields.
	Omit []micfile.Field

	// LaunchTimeText overrides the formatted launch time.
	LaunchTimeText string
}

var headerLabels = []struct {
	field micfile.Field
	label string
}{
	{micfile.FieldLatitude, ";LATITUDE......................"},
	{micfile.FieldLongitude, ";LONGITUDE....................."},
	{micfile.FieldLaunchTime, ";LAUNCH TIME  (UTC ZULU)......."},
	{micfile.FieldVehicle, ";VEHICLE NAME.................."},
}

// Bytes renders the recording as CSV text.
func (r Recording) Bytes() []byte {
	var b bytes.Buffer
	b.WriteString(";SITE..........................,SYNTHETIC\n")

	omit := make(map[micfile.Field]bool, len(r.Omit))
	for _, f := range r.Omit {
		omit[f] = true
	}

	launch := r.LaunchTimeText
	if launch == "" {
		launch = micfile.FormatTimeOfDay(r.LaunchTime)
	}
	values := map[micfile.Field]string{
		micfile.FieldLatitude:   strconv.FormatFloat(r.Position.Lat, 'f', -1, 64),
		micfile.FieldLongitude:  strconv.FormatFloat(r.Position.Lon, 'f', -1, 64),
		micfile.FieldLaunchTime: launch,
		micfile.FieldVehicle:    r.Vehicle,
	}
	for _, hl := range headerLabels {
		if omit[hl.field] {
			continue
		}
		fmt.Fprintf(&b, "%s,%s\n", hl.label, values[hl.field])
	}
	b.WriteString(";UNITS.........................,dB re 20uPa\n")
	if !omit[micfile.FieldDataMarker] {
		b.WriteString("AMBIENT\n")
	}

	step := r.Step
	if step == 0 {
		step = 1
	}
	for i, lvl := range r.Levels {
		tod := micfile.FormatTimeOfDay(r.LaunchTime + r.Start + float64(i)*step)
		if i == 0 && r.NoData {
			fmt.Fprintf(&b, "%s,NaN,NaN,NaN\n", tod)
			continue
		}
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f\n", tod, lvl+4, lvl, lvl+2.5)
	}
	return b.Bytes()
}

// WriteRecording writes r into dir under name and returns the path.
func WriteRecording(t testing.TB, dir, name string, r Recording) string {
	t.Helper()
	return WriteFile(t, dir, name, r.Bytes())
}

// WriteFile writes data into dir under name and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// LaunchProfile returns n levels that sit at ambient before launchIdx, rise
// over rise samples to peak and then decay exponentially back toward ambient.
// The maximum of the profile is exactly peak.
func LaunchProfile(ambient, peak float64, n, launchIdx, rise int) []float64 {
	out := make([]float64, n)
	if rise < 1 {
		rise = 1
	}
	top := launchIdx + rise
	for i := range out {
		switch {
		case i < launchIdx:
			out[i] = ambient
		case i < top:
			out[i] = ambient + (peak-ambient)*float64(i-launchIdx)/float64(rise)
		default:
			out[i] = ambient + (peak-ambient)*math.Exp(-float64(i-top)/float64(4*rise))
		}
	}
	if top < n {
		out[top] = peak
	}
	return out
}

// DeterministicNoise returns uniform noise in [-amplitude, amplitude] with a
// fixed seed.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// DC generates a constant-valued sequence.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}
