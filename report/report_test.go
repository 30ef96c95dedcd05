package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/launchnoise/aggregate"
	"github.com/cwbudde/launchnoise/attenuation"
	"github.com/cwbudde/launchnoise/micfile"
	"github.com/cwbudde/launchnoise/stats/level"
)

var model = attenuation.Model{A: 10, B: 1, C: 1, D: 130}

func fixture() (aggregate.Result, attenuation.Result) {
	entry := func(path string, km float64, levels ...float64) aggregate.Entry {
		offsets := make([]float64, len(levels))
		for i := range offsets {
			offsets[i] = float64(i) - 1
		}
		s := micfile.Series{Offsets: offsets, Levels: levels}
		st := level.Calculate(levels, offsets)
		return aggregate.Entry{Path: path, Vehicle: "Antares 230", DistanceKm: km, Series: s, MaxLevel: st.Max, Stats: st}
	}
	res := aggregate.Result{
		RunID: "run-1",
		Dataset: aggregate.Dataset{Entries: []aggregate.Entry{
			entry("/data/a.csv", 1, 90, 123.456, 110),
			entry("/data/b.csv", 5, 80, 112.5),
		}},
		Skipped: []aggregate.Skip{{Path: "/data/c.csv", Reason: "micfile: no data"}},
	}
	return res, attenuation.Result{Model: model, RSS: 0.25, R2: 0.99}
}

func TestNewSummary(t *testing.T) {
	res, fit := fixture()
	s := NewSummary(res, fit, Pad{Name: "marspad-0a", Lat: 37.833879, Lon: -75.487709}, 100)

	assert.Equal(t, "Antares 230", s.Vehicle)
	require.Len(t, s.Microphones, 2)
	assert.Equal(t, "a.csv", s.Microphones[0].File)
	assert.Equal(t, 123.456, s.Microphones[0].MaxSPL)
	assert.Equal(t, 0.0, s.Microphones[0].MaxOffset)
	assert.InDelta(t, model.Evaluate(5), s.Microphones[1].Fitted, 1e-12)
	assert.Equal(t, 2, s.Microphones[1].Samples)

	// exp(3) - 1
	require.NotNil(t, s.SafeRadiusKm)
	assert.InDelta(t, 19.0855369, *s.SafeRadiusKm, 1e-6)

	unreachable := NewSummary(res, fit, Pad{}, 200)
	assert.Nil(t, unreachable.SafeRadiusKm)
	flat := NewSummary(res, attenuation.Result{Model: attenuation.Model{D: 95}}, Pad{}, 100)
	assert.Nil(t, flat.SafeRadiusKm)
}

func TestWriteSeries(t *testing.T) {
	res, _ := fixture()
	var buf bytes.Buffer
	require.NoError(t, WriteSeries(&buf, res.Dataset))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"file", "distance_km", "time_s", "spl_dba"}, rows[0])
	assert.Equal(t, []string{"a.csv", "1", "0", "123.456"}, rows[2])
	assert.Equal(t, []string{"b.csv", "5", "-1", "80"}, rows[4])
}

func TestWriteCurve(t *testing.T) {
	res, fit := fixture()
	var buf bytes.Buffer
	require.NoError(t, WriteCurve(&buf, NewSummary(res, fit, Pad{}, 100)))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "distance_km", rows[0][0])
	assert.Equal(t, "112.5", rows[2][1])
}

func TestWriteDenseCurve(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDenseCurve(&buf, model, 0, 10, 11))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 12)
	assert.Equal(t, []string{"0", "130"}, rows[1])
	assert.Equal(t, "10", rows[11][0])
}

func TestWriteDenseCurve_ZeroOffsetModel(t *testing.T) {
	// With c = 0 the model diverges at the pad.
	m := attenuation.Model{A: 12.4855, B: 1, C: 0, D: 120.4231}
	var buf bytes.Buffer
	require.NoError(t, WriteDenseCurve(&buf, m, 0, 20, 5))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "5", rows[1][0])
	for _, row := range rows[1:] {
		assert.NotContains(t, row[1], "Inf")
		assert.NotContains(t, row[1], "NaN")
	}
}

func TestWriteAll_DenseCurveSpansObservedDistances(t *testing.T) {
	res, fit := fixture()
	fit.Model = attenuation.Model{A: 12.4855, B: 1, C: 0, D: 120.4231}
	dir := t.TempDir()
	_, err := WriteAll(dir, res, NewSummary(res, fit, Pad{}, 100), fit.Model)
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, DenseCurveFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, DenseSamples+1)
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "5", rows[DenseSamples][0])
	for _, row := range rows[1:] {
		assert.NotContains(t, row[1], "Inf")
	}
}

func TestWriteJSON(t *testing.T) {
	res, fit := fixture()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, NewSummary(res, fit, Pad{Name: "x"}, 100)))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, 10.0, got["params"].(map[string]any)["a"])
	assert.Len(t, got["microphones"], 2)
	assert.Len(t, got["skipped"], 1)
	assert.Contains(t, got, "safe_radius_km")
}

func TestWriteAll(t *testing.T) {
	res, fit := fixture()
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteAll(dir, res, NewSummary(res, fit, Pad{}, 100), fit.Model)
	require.NoError(t, err)
	require.Len(t, paths, 4)
	for _, name := range []string{SeriesFile, CurveFile, DenseCurveFile, SummaryFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}
}

func TestPrint(t *testing.T) {
	res, fit := fixture()
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, NewSummary(res, fit, Pad{}, 100)))
	out := buf.String()

	assert.Contains(t, out, "Max SPL in each microphone around the launch pad: [123.46 112.5]")
	assert.Contains(t, out, "Function format: -a * ln(b*x + c) + d")
	assert.Contains(t, out, "where: a = 10.0000, b = 1.0000, c = 1.0000, d = 130.0000")
	assert.Contains(t, out, "For max sound level of 100[dBa], use range of 19.09[km].")
	assert.Contains(t, out, "skipped c.csv: micfile: no data")
	assert.True(t, strings.HasPrefix(out, "File"))

	buf.Reset()
	require.NoError(t, Print(&buf, NewSummary(res, fit, Pad{}, 150)))
	assert.Contains(t, buf.String(), "No safe range")
}
