package domain

import "testing"

func TestStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusSuspended, false},
		{StatusActive, StatusSuspended, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusPending, false},
		{StatusSuspended, StatusActive, true},
		{StatusSuspended, StatusCancelled, true},
		{StatusCancelled, StatusActive, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusSuspended, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestStatus_IsKnown(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusActive, StatusSuspended, StatusCancelled} {
		if !s.IsKnown() {
			t.Errorf("%s should be known", s)
		}
	}
	if Status("past_due").IsKnown() {
		t.Error("gateway vocabulary must not leak into the local enum")
	}
}
