package acquisition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OskarRg/neurohackathon/internal/eeg"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDefaultScenario_Phases(t *testing.T) {
	sc := DefaultScenario()
	require.NoError(t, sc.Validate())

	tests := []struct {
		at   time.Duration
		want float64
		mood eeg.Mood
	}{
		{0, 0.2, eeg.MoodRelax},
		{1999 * time.Millisecond, 0.2, eeg.MoodRelax},
		{2 * time.Second, 1.0, eeg.MoodFocus},
		{4 * time.Second, 1.0, eeg.MoodFocus},
		{5 * time.Second, 2.5, eeg.MoodHighStress},
		{9 * time.Second, 2.5, eeg.MoodHighStress},
		{10 * time.Second, 0.2, eeg.MoodRelax},
		{time.Hour, 0.2, eeg.MoodRelax},
	}
	for _, tc := range tests {
		p := sc.At(tc.at)
		assert.Equal(t, tc.want, p.Ratio, "at %s", tc.at)
		assert.Equal(t, tc.mood, p.Mood, "at %s", tc.at)
	}
	assert.Equal(t, 10*time.Second, sc.Duration())
}

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(`
jitter: 0.05
phases:
  - until: 3s
    ratio: 0.5
    mood: RELAX
  - until: 1m
    ratio: 3
    mood: HIGH_STRESS
`))
	require.NoError(t, err)
	assert.Equal(t, 0.05, sc.Jitter)
	require.Len(t, sc.Phases, 2)
	assert.Equal(t, time.Minute, sc.Phases[1].Until)
	assert.Equal(t, 3.0, sc.At(2*time.Hour).Ratio)

	_, err = ParseScenario([]byte("phases:\n  - {until: 5s, ratio: 1}\n  - {until: 1s, ratio: 1}\n"))
	assert.Error(t, err)

	_, err = ParseScenario([]byte("phases:\n  - {until: 5s, ratio: -1}\n"))
	assert.Error(t, err)

	_, err = ParseScenario([]byte("jitter: 0.1\n"))
	assert.Error(t, err)
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("final: {ratio: 2, mood: HIGH_STRESS}\n"), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, sc.At(0).Ratio)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSyntheticSource_Lifecycle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	src := NewSyntheticSource(250, DefaultScenario(), WithClock(clock.now))

	_, err := src.Latest(10)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, src.Start(), ErrNotConnected)

	require.NoError(t, src.Connect(context.Background()))
	require.NoError(t, src.Start())

	clock.advance(time.Second)
	w, err := src.Latest(1000)
	require.NoError(t, err)
	assert.Len(t, w.Data, len(MiniCapChannels))
	assert.Equal(t, 250, w.Samples())

	clock.advance(5 * time.Second)
	w, err = src.Latest(1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, w.Samples())

	require.NoError(t, src.Stop())
	assert.ErrorIs(t, src.Stop(), ErrNotStarted)
	require.NoError(t, src.Close())
}

func TestSyntheticSource_OverlappingReadsAgree(t *testing.T) {
	src := NewSyntheticSource(250, DefaultScenario())
	a := src.Generate(0, 600)
	b := src.Generate(400, 1000)

	for c := range a.Data {
		assert.Equal(t, a.Data[c][400:], b.Data[c][:200])
	}
}

func TestSyntheticSource_RatioTracksScenario(t *testing.T) {
	analyzer, err := eeg.NewAnalyzer(eeg.DefaultConfig())
	require.NoError(t, err)

	for _, ratio := range []float64{0.25, 1.0, 2.5} {
		src := NewSyntheticSource(250, Scenario{Final: &Phase{Ratio: ratio}}, WithNoise(0.01))
		result, err := analyzer.Analyze(src.Generate(0, 1000))
		require.NoError(t, err)
		assert.InDelta(t, ratio, result.StressRatio, ratio*0.2+0.05, "ratio %v", ratio)
	}
}

func TestHashNoise_Range(t *testing.T) {
	for i := uint64(0); i < 1000; i++ {
		v := hashNoise(3, i)
		assert.GreaterOrEqual(t, v, -1.0)
		assert.Less(t, v, 1.0)
	}
	assert.Equal(t, hashNoise(1, 2), hashNoise(1, 2))
	assert.NotEqual(t, hashNoise(1, 2), hashNoise(2, 1))
}

func csvRecording(channels []string, samples int, withTimestamp bool) string {
	var sb strings.Builder
	if withTimestamp {
		sb.WriteString("timestamp,")
	}
	sb.WriteString(strings.Join(channels, ","))
	sb.WriteString("\n")
	for i := 0; i < samples; i++ {
		if withTimestamp {
			fmt.Fprintf(&sb, "%d,", i*4)
		}
		for c := range channels {
			if c > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "%d.%d", i, c)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestReadRecording(t *testing.T) {
	rec, err := ReadRecording(strings.NewReader(csvRecording([]string{"F3", "F4"}, 5, true)), 250)
	require.NoError(t, err)
	assert.Equal(t, []string{"F3", "F4"}, rec.Channels)
	assert.Equal(t, 5, rec.Samples())
	assert.Equal(t, 3.1, rec.Data[1][3])

	_, err = ReadRecording(strings.NewReader(""), 250)
	assert.ErrorIs(t, err, ErrEmptyRecording)

	_, err = ReadRecording(strings.NewReader("F3,F4\n"), 250)
	assert.ErrorIs(t, err, ErrEmptyRecording)

	_, err = ReadRecording(strings.NewReader("F3,F4\n1,abc\n"), 250)
	assert.ErrorContains(t, err, "line 2 column F4")
}

func TestLoadRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvRecording(MiniCapChannels, 20, false)), 0o644))

	rec, err := LoadRecording(path, 250)
	require.NoError(t, err)
	assert.Len(t, rec.Data, 8)

	var offsets []int
	err = rec.Windows(8, 4, func(off int, w eeg.Window) error {
		offsets = append(offsets, off)
		assert.Equal(t, 8, w.Samples())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 8, 12}, offsets)

	assert.Error(t, rec.Windows(0, 1, func(int, eeg.Window) error { return nil }))
}

func TestWriteRecording_ReadsBack(t *testing.T) {
	src := NewSyntheticSource(250, DefaultScenario())
	win := src.Generate(0, 500)

	var buf strings.Builder
	require.NoError(t, WriteRecording(&buf, src.Channels(), win))
	assert.True(t, strings.HasPrefix(buf.String(), "timestamp,F3,F4,"))

	rec, err := ReadRecording(strings.NewReader(buf.String()), 250)
	require.NoError(t, err)
	assert.Equal(t, MiniCapChannels, rec.Channels)
	assert.Equal(t, win.Data, rec.Data)

	err = WriteRecording(&buf, []string{"F3"}, win)
	assert.Error(t, err)
}

func TestReplaySource(t *testing.T) {
	rec, err := ReadRecording(strings.NewReader(csvRecording([]string{"O1"}, 10, false)), 10)
	require.NoError(t, err)

	clock := &fakeClock{t: time.Unix(0, 0)}
	src := NewReplaySource(rec, false)
	src.now = clock.now

	require.NoError(t, src.Connect(context.Background()))
	require.NoError(t, src.Start())

	clock.advance(500 * time.Millisecond)
	w, err := src.Latest(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.0, 3.0, 4.0}, w.Data[0])

	clock.advance(5 * time.Second)
	w, err = src.Latest(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{7.0, 8.0, 9.0}, w.Data[0])

	looping := NewReplaySource(rec, true)
	looping.now = clock.now
	require.NoError(t, looping.Connect(context.Background()))
	require.NoError(t, looping.Start())
	clock.advance(1200 * time.Millisecond) // 12 samples: wrapped by 2
	w, err = looping.Latest(4)
	require.NoError(t, err)
	assert.Equal(t, []float64{8.0, 9.0, 0.0, 1.0}, w.Data[0])

	require.NoError(t, looping.Stop())
	require.NoError(t, looping.Close())
	_, err = looping.Latest(1)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestScriptedReader(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := NewScriptedReader(DefaultScenario(), zerolog.Nop())
	r.now = clock.now

	assert.Equal(t, StatusDisconnected, r.GetData().Status)

	r.Start()
	snap := r.GetData()
	assert.Equal(t, StatusSimulated, snap.Status)
	assert.True(t, snap.Connected)
	assert.True(t, snap.IsReady)
	assert.InDelta(t, 0.2, snap.StressIndex, 0.1+1e-9)
	assert.Equal(t, 0.5, snap.AlphaRel)

	clock.advance(6 * time.Second)
	snap = r.GetData()
	assert.InDelta(t, 2.5, snap.StressIndex, 0.1+1e-9)
	assert.Equal(t, eeg.MoodHighStress, snap.Mood)

	require.NoError(t, r.Stop())
	assert.Equal(t, StatusDisconnected, r.GetData().Status)
}
