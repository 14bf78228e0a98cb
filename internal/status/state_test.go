package status

import (
	"errors"
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	for _, s := range []string{"sent", "delivered", "read"} {
		if _, err := Parse(s); err != nil {
			t.Errorf("Parse(%q) error = %v", s, err)
		}
	}
	if _, err := Parse("seen"); err == nil {
		t.Error("Parse(seen) should fail")
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{Sent, Delivered},
		{Sent, Read},
		{Delivered, Read},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := Advance(tt.from, tt.to)
			if err != nil {
				t.Fatalf("Advance(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if got != tt.to {
				t.Errorf("state = %s, want %s", got, tt.to)
			}
		})
	}
}

func TestRegressionRejected(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{Read, Delivered},
		{Read, Sent},
		{Delivered, Sent},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := Advance(tt.from, tt.to)
			if !errors.Is(err, ErrRegression) {
				t.Fatalf("Advance(%s -> %s) error = %v, want ErrRegression", tt.from, tt.to, err)
			}
			if got != tt.from {
				t.Errorf("state = %s, want unchanged %s", got, tt.from)
			}
		})
	}
}

func TestSameStateIsNoop(t *testing.T) {
	for _, s := range []Status{Sent, Delivered, Read} {
		got, err := Advance(s, s)
		if err != nil || got != s {
			t.Errorf("Advance(%s, %s) = %s, %v", s, s, got, err)
		}
	}
}

func TestPredecessors(t *testing.T) {
	if got := Predecessors(Read); !slices.Equal(got, []Status{Sent, Delivered}) {
		t.Errorf("Predecessors(read) = %v", got)
	}
	if got := Predecessors(Delivered); !slices.Equal(got, []Status{Sent}) {
		t.Errorf("Predecessors(delivered) = %v", got)
	}
	if got := Predecessors(Sent); len(got) != 0 {
		t.Errorf("Predecessors(sent) = %v, want none", got)
	}
}

// TestObservedSequenceIsMonotonic walks arbitrary requested transitions and
// checks the accepted ones only ever move forward.
func TestObservedSequenceIsMonotonic(t *testing.T) {
	rank := map[Status]int{Sent: 0, Delivered: 1, Read: 2}
	requests := []Status{Delivered, Sent, Read, Delivered, Read, Sent}

	cur := Sent
	for _, to := range requests {
		next, err := Advance(cur, to)
		if err == nil && rank[next] < rank[cur] {
			t.Fatalf("regressed from %s to %s", cur, next)
		}
		cur = next
	}
	if cur != Read {
		t.Errorf("final = %s, want read", cur)
	}
}
