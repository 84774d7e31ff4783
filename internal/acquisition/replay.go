package acquisition

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OskarRg/neurohackathon/internal/eeg"
)

// ErrEmptyRecording is returned for a recording with no samples.
var ErrEmptyRecording = errors.New("recording has no samples")

// Recording is a recorded session: a header of channel names and one CSV
// row per sample. An optional leading "timestamp" column is ignored.
type Recording struct {
	Channels   []string
	SampleRate float64
	Data       [][]float64
}

// LoadRecording reads a CSV recording from path.
func LoadRecording(path string, sampleRate float64) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	return ReadRecording(f, sampleRate)
}

// ReadRecording parses CSV recording data.
func ReadRecording(r io.Reader, sampleRate float64) (*Recording, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyRecording
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	skip := 0
	if len(header) > 0 && strings.EqualFold(header[0], "timestamp") {
		skip = 1
	}
	channels := append([]string(nil), header[skip:]...)
	if len(channels) == 0 {
		return nil, fmt.Errorf("recording header has no channels")
	}

	rec := &Recording{Channels: channels, SampleRate: sampleRate, Data: make([][]float64, len(channels))}
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for c := range channels {
			v, err := strconv.ParseFloat(row[c+skip], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, channels[c], err)
			}
			rec.Data[c] = append(rec.Data[c], v)
		}
	}
	if rec.Samples() == 0 {
		return nil, ErrEmptyRecording
	}
	return rec, nil
}

// WriteRecording writes win as CSV in the layout ReadRecording accepts, with a
// leading timestamp column in seconds.
func WriteRecording(w io.Writer, channels []string, win eeg.Window) error {
	if len(channels) != len(win.Data) {
		return fmt.Errorf("%d channel names for %d channels", len(channels), len(win.Data))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"timestamp"}, channels...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(channels)+1)
	for i := 0; i < win.Samples(); i++ {
		row[0] = strconv.FormatFloat(float64(i)/win.SampleRate, 'f', 4, 64)
		for c, ch := range win.Data {
			row[c+1] = strconv.FormatFloat(ch[i], 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write sample %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Samples returns the per-channel sample count.
func (r *Recording) Samples() int {
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// Slice returns samples [begin, end) as a window. The data is shared.
func (r *Recording) Slice(begin, end int) eeg.Window {
	w := eeg.Window{SampleRate: r.SampleRate, Data: make([][]float64, len(r.Data))}
	for c, ch := range r.Data {
		w.Data[c] = ch[begin:end]
	}
	return w
}

// Windows calls fn for each window of size samples, advancing by step.
// Iteration stops at the first error fn returns.
func (r *Recording) Windows(size, step int, fn func(offset int, w eeg.Window) error) error {
	if size <= 0 || step <= 0 {
		return fmt.Errorf("window size %d and step %d must be positive", size, step)
	}
	for off := 0; off+size <= r.Samples(); off += step {
		if err := fn(off, r.Slice(off, off+size)); err != nil {
			return err
		}
	}
	return nil
}

// ReplaySource plays a Recording back in real time. Once the end is reached
// it either wraps around or keeps serving the final window.
type ReplaySource struct {
	rec  *Recording
	loop bool
	now  func() time.Time

	mu      sync.Mutex
	ready   bool
	started bool
	startAt time.Time
}

// NewReplaySource wraps rec. loop selects wrap-around playback.
func NewReplaySource(rec *Recording, loop bool) *ReplaySource {
	return &ReplaySource{rec: rec, loop: loop, now: time.Now}
}

func (s *ReplaySource) SampleRate() float64 { return s.rec.SampleRate }

func (s *ReplaySource) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.rec == nil || s.rec.Samples() == 0 {
		return ErrEmptyRecording
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *ReplaySource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrNotConnected
	}
	s.started = true
	s.startAt = s.now()
	return nil
}

func (s *ReplaySource) Latest(n int) (eeg.Window, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return eeg.Window{}, ErrNotStarted
	}
	elapsed := s.now().Sub(s.startAt)
	s.mu.Unlock()

	total := s.rec.Samples()
	end := int(elapsed.Seconds() * s.rec.SampleRate)

	if !s.loop || end <= total {
		end = min(end, total)
		return s.rec.Slice(max(end-n, 0), end), nil
	}

	// Wrapped: stitch the tail of the previous pass to the head of this one.
	pos := end % total
	if n > total {
		n = total
	}
	w := eeg.Window{SampleRate: s.rec.SampleRate, Data: make([][]float64, len(s.rec.Data))}
	for c, ch := range s.rec.Data {
		out := make([]float64, 0, n)
		if pos < n {
			out = append(out, ch[total-(n-pos):]...)
			out = append(out, ch[:pos]...)
		} else {
			out = append(out, ch[pos-n:pos]...)
		}
		w.Data[c] = out
	}
	return w, nil
}

func (s *ReplaySource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	return nil
}

func (s *ReplaySource) Close() error {
	s.mu.Lock()
	s.ready = false
	s.started = false
	s.mu.Unlock()
	return nil
}
