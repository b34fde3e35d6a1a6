package audio_test

import (
	"errors"
	"testing"
	"time"

	"github.com/room4-2/gensyn-guide/audio"
	"github.com/room4-2/gensyn-guide/audio/mock"
)

func silence(t *testing.T, d time.Duration) *audio.Buffer {
	t.Helper()
	frames := int(d * audio.OutputSampleRate / time.Second)
	buf, err := audio.DecodeToBuffer(make([]byte, frames*2), audio.OutputSampleRate, 1)
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	return buf
}

func TestSchedulerPlaysBackToBack(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	s := audio.NewScheduler(out)
	durations := []time.Duration{100 * time.Millisecond, 40 * time.Millisecond, 250 * time.Millisecond, 10 * time.Millisecond}

	var total time.Duration
	for _, d := range durations {
		if err := s.Enqueue(silence(t, d)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		total += d
	}

	plays := out.Playbacks()
	if len(plays) != len(durations) {
		t.Fatalf("playbacks = %d, want %d", len(plays), len(durations))
	}
	for i := 1; i < len(plays); i++ {
		prevEnd := plays[i-1].Start + plays[i-1].Duration
		if plays[i].Start != prevEnd {
			t.Errorf("playback %d starts at %v, previous ends at %v", i, plays[i].Start, prevEnd)
		}
	}
	last := plays[len(plays)-1]
	if span := last.Start + last.Duration - plays[0].Start; span != total {
		t.Errorf("span = %v, want %v", span, total)
	}
	if s.Active() != len(durations) {
		t.Errorf("active = %d, want %d", s.Active(), len(durations))
	}
}

func TestSchedulerCatchesUpWithOutputClock(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	s := audio.NewScheduler(out)
	if err := s.Enqueue(silence(t, 50*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	out.Advance(time.Second)
	if err := s.Enqueue(silence(t, 50*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	plays := out.Playbacks()
	if plays[1].Start != time.Second {
		t.Errorf("late chunk starts at %v, want output clock 1s", plays[1].Start)
	}
}

func TestSchedulerRemovesFinishedSources(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	s := audio.NewScheduler(out)
	s.Enqueue(silence(t, 100*time.Millisecond))
	s.Enqueue(silence(t, 100*time.Millisecond))

	out.Advance(150 * time.Millisecond)
	if s.Active() != 1 {
		t.Errorf("active after first ends = %d, want 1", s.Active())
	}
	out.Advance(100 * time.Millisecond)
	if s.Active() != 0 {
		t.Errorf("active after all end = %d, want 0", s.Active())
	}
}

func TestSchedulerInterruptAll(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	s := audio.NewScheduler(out)
	for i := 0; i < 3; i++ {
		s.Enqueue(silence(t, 200*time.Millisecond))
	}
	out.Advance(120 * time.Millisecond)

	s.InterruptAll()
	if s.Active() != 0 {
		t.Fatalf("active after interrupt = %d", s.Active())
	}
	if s.NextStart() != 0 {
		t.Fatalf("clock after interrupt = %v, want 0", s.NextStart())
	}
	for i, p := range out.Playbacks() {
		if !p.Stopped {
			t.Errorf("playback %d not stopped", i)
		}
	}

	if err := s.Enqueue(silence(t, 100*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	plays := out.Playbacks()
	if got := plays[len(plays)-1].Start; got < out.CurrentTime() {
		t.Errorf("post-interrupt chunk starts at %v, before clock %v", got, out.CurrentTime())
	}
}

func TestSchedulerInterruptWhenEmpty(t *testing.T) {
	t.Parallel()

	s := audio.NewScheduler(mock.NewOutput())
	s.InterruptAll()
	s.InterruptAll()
	if s.Active() != 0 || s.NextStart() != 0 {
		t.Errorf("empty interrupt changed state")
	}
}

func TestSchedulerPlayFailureLeavesClock(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	out.PlayErr = errors.New("device gone")
	s := audio.NewScheduler(out)
	if err := s.Enqueue(silence(t, 100*time.Millisecond)); err == nil {
		t.Fatal("expected error")
	}
	if s.Active() != 0 || s.NextStart() != 0 {
		t.Errorf("failed enqueue left active=%d next=%v", s.Active(), s.NextStart())
	}
}
