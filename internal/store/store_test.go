package store

import (
	"errors"
	"fmt"
	"testing"
)

func scalarObs(id, value string) Observation {
	return Observation{
		Time:       "2014-08-11T08:32:54.028533Z",
		DataItemID: id,
		Name:       id,
		Type:       "AVAILABILITY",
		Category:   "EVENT",
		Value:      Scalar(value),
	}
}

func TestUpdateAssignsConsecutiveSequences(t *testing.T) {
	s := New(Options{})

	seq1, ok := s.Update(scalarObs("avail", "AVAILABLE"))
	if !ok || seq1 != 1 {
		t.Fatalf("first update seq = %d, %v", seq1, ok)
	}
	seq2, ok := s.Update(scalarObs("estop", "ARMED"))
	if !ok || seq2 != 2 {
		t.Fatalf("second update seq = %d, %v", seq2, ok)
	}

	first, last, next := s.Sequence()
	if first != 1 || last != 2 || next != 3 {
		t.Errorf("Sequence = %d,%d,%d, want 1,2,3", first, last, next)
	}
}

func TestDuplicateSuppression(t *testing.T) {
	s := New(Options{})

	s.Update(scalarObs("avail", "AVAILABLE"))
	if _, ok := s.Update(scalarObs("avail", "AVAILABLE")); ok {
		t.Error("unchanged VALUE observation not suppressed")
	}
	if _, ok := s.Update(scalarObs("avail", "UNAVAILABLE")); !ok {
		t.Error("changed VALUE observation suppressed")
	}

	_, last, _ := s.Sequence()
	if last != 2 {
		t.Errorf("last sequence = %d, want 2 (suppressed update consumed one)", last)
	}
}

func TestDiscreteNeverSuppressed(t *testing.T) {
	s := New(Options{})
	obs := scalarObs("dev_asset_chg", "EM233")
	obs.Discrete = true

	s.Update(obs)
	if _, ok := s.Update(obs); !ok {
		t.Error("discrete observation suppressed on identical value")
	}
}

func TestConditionAlwaysRecords(t *testing.T) {
	s := New(Options{})
	obs := Observation{
		Time:       "t1",
		DataItemID: "htemp",
		Category:   "CONDITION",
		Value: Condition{
			Level: "WARNING", NativeCode: "HTEMP", NativeSeverity: "1",
			Qualifier: "HIGH", Message: "Oil Temperature High",
		},
	}
	s.Update(obs)
	if _, ok := s.Update(obs); !ok {
		t.Error("repeated CONDITION suppressed")
	}
}

func TestTimeSeriesNeverSuppressed(t *testing.T) {
	s := New(Options{})
	obs := Observation{
		Time: "2", DataItemID: "va_1", Representation: "TIME_SERIES", Category: "SAMPLE",
		Value: TimeSeries{SampleCount: "10", SampleRate: "", Samples: "1 2 3"},
	}
	s.Update(obs)
	if _, ok := s.Update(obs); !ok {
		t.Error("byte-identical TIME_SERIES suppressed")
	}
}

func TestHashLastTrailsCurrent(t *testing.T) {
	s := New(Options{})
	s.Update(scalarObs("avail", "AVAILABLE"))
	s.Update(scalarObs("avail", "UNAVAILABLE"))
	s.Update(scalarObs("avail", "AVAILABLE"))

	cur, ok := s.CurrentValue("avail")
	if !ok {
		t.Fatal("no current value")
	}
	prev, ok := s.LastValue("avail")
	if !ok {
		t.Fatal("no last value")
	}
	if prev.Sequence >= cur.Sequence {
		t.Errorf("last.seq %d >= current.seq %d", prev.Sequence, cur.Sequence)
	}
	if cur.Value.Text() != "AVAILABLE" || prev.Value.Text() != "UNAVAILABLE" {
		t.Errorf("current=%q last=%q", cur.Value.Text(), prev.Value.Text())
	}
}

func TestRingEvictionRetainsCurrent(t *testing.T) {
	s := New(Options{BufferSize: 4})

	s.Update(scalarObs("avail", "AVAILABLE")) // seq 1, evicted later
	for i := 0; i < 6; i++ {
		s.Update(scalarObs("load", fmt.Sprintf("%d", i))) // seq 2..7
	}

	first, last, _ := s.Sequence()
	if last != 7 {
		t.Fatalf("last = %d", last)
	}
	if first != 4 {
		t.Errorf("firstSequence = %d, want 4 after eviction", first)
	}

	// avail's only observation was evicted from the ring, but current
	// still serves it.
	cur, ok := s.CurrentValue("avail")
	if !ok || cur.Sequence != 1 {
		t.Errorf("evicted current lost: %+v, %v", cur, ok)
	}

	if _, err := s.Sample(nil, 1, 10); !errors.Is(err, ErrOutOfRange) {
		t.Error("Sample before firstSequence did not fail OUT_OF_RANGE")
	}
}

func TestSampleWindow(t *testing.T) {
	s := New(Options{BufferSize: 100})
	for i := 0; i < 10; i++ {
		s.Update(scalarObs("load", fmt.Sprintf("%d", i))) // seq 1..10
	}

	obs, err := s.Sample(nil, 4, 3)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(obs) != 3 || obs[0].Sequence != 4 || obs[2].Sequence != 6 {
		t.Fatalf("Sample window = %+v", obs)
	}

	// Restricted to an id set.
	s.Update(scalarObs("avail", "AVAILABLE")) // seq 11
	obs, _ = s.Sample([]string{"avail"}, 1, 100)
	if len(obs) != 1 || obs[0].DataItemID != "avail" {
		t.Errorf("id-filtered sample = %+v", obs)
	}

	// from == nextSequence is legal and empty.
	obs, err = s.Sample(nil, 12, 5)
	if err != nil || len(obs) != 0 {
		t.Errorf("Sample(next) = %v, %v", obs, err)
	}

	// Beyond next fails.
	if _, err := s.Sample(nil, 13, 1); !errors.Is(err, ErrOutOfRange) {
		t.Error("Sample past nextSequence did not fail")
	}
}

func TestSampleCountTruncated(t *testing.T) {
	s := New(Options{BufferSize: 5})
	for i := 0; i < 5; i++ {
		s.Update(scalarObs("load", fmt.Sprintf("%d", i)))
	}
	obs, err := s.Sample(nil, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 5 {
		t.Errorf("truncated sample = %d observations, want 5", len(obs))
	}
}

func TestCurrentDefaultsUnavailable(t *testing.T) {
	s := New(Options{})
	s.Update(scalarObs("avail", "AVAILABLE"))

	obs := s.Current([]string{"avail", "never_seen"})
	if len(obs) != 2 {
		t.Fatalf("Current = %d entries", len(obs))
	}
	if obs[0].Value.Text() != "AVAILABLE" {
		t.Errorf("observed item = %q", obs[0].Value.Text())
	}
	if obs[1].Value.Text() != "UNAVAILABLE" || obs[1].Sequence != 0 {
		t.Errorf("unobserved item = %+v", obs[1])
	}
}

func TestConditionSet(t *testing.T) {
	s := New(Options{})
	cond := func(level, code string) Observation {
		return Observation{
			Time: "t", DataItemID: "htemp", Category: "CONDITION",
			Value: Condition{Level: level, NativeCode: code},
		}
	}

	s.Update(cond("WARNING", "HTEMP"))
	s.Update(cond("FAULT", "OVERTEMP"))
	if got := s.ActiveConditions("htemp"); len(got) != 2 {
		t.Fatalf("active = %d, want 2", len(got))
	}

	// Replace by nativeCode, order preserved.
	s.Update(cond("FAULT", "HTEMP"))
	got := s.ActiveConditions("htemp")
	if len(got) != 2 || got[0].Value.(Condition).Level != "FAULT" {
		t.Fatalf("replace by nativeCode: %+v", got)
	}

	// NORMAL with a code clears only that channel.
	s.Update(cond("NORMAL", "HTEMP"))
	got = s.ActiveConditions("htemp")
	if len(got) != 1 || got[0].Value.(Condition).NativeCode != "OVERTEMP" {
		t.Fatalf("per-channel clear: %+v", got)
	}

	// NORMAL with no code clears everything.
	s.Update(cond("NORMAL", ""))
	if got := s.ActiveConditions("htemp"); len(got) != 0 {
		t.Fatalf("full clear: %+v", got)
	}
}

func TestCurrentAt(t *testing.T) {
	s := New(Options{BufferSize: 100})
	s.Update(scalarObs("a", "1")) // seq 1
	s.Update(scalarObs("b", "x")) // seq 2
	s.Update(scalarObs("a", "2")) // seq 3

	obs, err := s.CurrentAt([]string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("CurrentAt: %v", err)
	}
	if obs[0].Value.Text() != "1" || obs[0].Sequence != 1 {
		t.Errorf("a at seq 2 = %+v, want value 1 seq 1", obs[0])
	}
	if obs[1].Value.Text() != "x" {
		t.Errorf("b at seq 2 = %q, want x", obs[1].Value.Text())
	}
	if obs[2].Value.Text() != "UNAVAILABLE" {
		t.Errorf("unseen c = %q, want UNAVAILABLE", obs[2].Value.Text())
	}

	for _, at := range []int64{0, 4} {
		if _, err := s.CurrentAt([]string{"a"}, at); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("CurrentAt(%d) err = %v, want ErrOutOfRange", at, err)
		}
	}
}

func TestCurrentAtFallsBackToEvicted(t *testing.T) {
	s := New(Options{BufferSize: 3})
	s.Update(scalarObs("old", "kept")) // seq 1, evicted below
	for i := 0; i < 3; i++ {
		s.Update(scalarObs("filler", fmt.Sprintf("%d", i)))
	}

	obs, err := s.CurrentAt([]string{"old"}, 3)
	if err != nil {
		t.Fatalf("CurrentAt: %v", err)
	}
	if obs[0].Value.Text() != "kept" {
		t.Errorf("evicted current = %q, want kept", obs[0].Value.Text())
	}
}
