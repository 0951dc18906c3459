package tokens

import "testing"

func TestCountEmpty(t *testing.T) {
	e := NewEstimator()
	if got := e.Count(""); got != 0 {
		t.Fatalf("Count(\"\") = %d, want 0", got)
	}
}

func TestCountDeterministic(t *testing.T) {
	e := NewEstimator()
	a := e.Count("track a trip to Lisbon in June")
	b := e.Count("track a trip to Lisbon in June")
	if a != b {
		t.Fatalf("same input counted differently: %d vs %d", a, b)
	}
	if a <= 0 {
		t.Fatalf("expected positive count, got %d", a)
	}
}

func TestCountMonotone(t *testing.T) {
	e := NewEstimator()
	short := e.Count("hello")
	long := e.Count("hello hello hello hello hello hello")
	if long <= short {
		t.Fatalf("longer text should count more tokens: short=%d long=%d", short, long)
	}
}

func TestCountMessagesOverheads(t *testing.T) {
	e := NewEstimator()

	empty := e.CountMessages(nil)
	if empty != primingOverhead {
		t.Fatalf("empty batch = %d, want priming overhead %d", empty, primingOverhead)
	}

	one := e.CountMessages([]CountedMessage{{Role: "user", Content: "hi"}})
	if one <= empty {
		t.Fatalf("one message should cost more than empty batch: %d <= %d", one, empty)
	}

	// A named message carries a surcharge over the same message unnamed.
	unnamed := e.CountMessages([]CountedMessage{{Role: "tool", Content: "{}"}})
	named := e.CountMessages([]CountedMessage{{Role: "tool", Content: "{}", Name: "list_trips"}})
	if named <= unnamed {
		t.Fatalf("named message should cost more: named=%d unnamed=%d", named, unnamed)
	}
}

func TestCountMessagesToolCalls(t *testing.T) {
	e := NewEstimator()
	without := e.CountMessages([]CountedMessage{{Role: "assistant"}})
	with := e.CountMessages([]CountedMessage{{
		Role:      "assistant",
		ToolCalls: []CountedToolCall{{Name: "create_trip", Arguments: `{"name":"Hawaii"}`}},
	}})
	if with <= without {
		t.Fatalf("tool calls should add tokens: with=%d without=%d", with, without)
	}
}

func TestCountMessagesAdditive(t *testing.T) {
	e := NewEstimator()
	m1 := CountedMessage{Role: "user", Content: "find flights to OGG"}
	m2 := CountedMessage{Role: "assistant", Content: "Searching now."}

	batch := e.CountMessages([]CountedMessage{m1, m2})
	parts := e.CountMessage(m1) + e.CountMessage(m2) + primingOverhead
	if batch != parts {
		t.Fatalf("batch count %d != sum of parts %d", batch, parts)
	}
}

func TestCountTools(t *testing.T) {
	e := NewEstimator()
	if got := e.CountTools(nil); got != 0 {
		t.Fatalf("CountTools(nil) = %d, want 0", got)
	}
	got := e.CountTools([]string{`{"name":"list_trips"}`, `{"name":"create_trip"}`})
	if got <= 0 {
		t.Fatalf("expected positive tool schema count, got %d", got)
	}
}
