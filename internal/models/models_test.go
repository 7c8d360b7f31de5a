package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RideStatus
		want     bool
	}{
		{StatusRequested, StatusAssigned, true},
		{StatusRequested, StatusCancelled, true},
		{StatusRequested, StatusOngoing, false},
		{StatusAssigned, StatusAccepted, true},
		{StatusAssigned, StatusArrived, false},
		{StatusAccepted, StatusArrived, true},
		{StatusAccepted, StatusOngoing, false},
		{StatusArrived, StatusOngoing, true},
		{StatusOngoing, StatusCompleted, true},
		{StatusOngoing, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusAssigned, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for _, st := range []RideStatus{StatusCompleted, StatusCancelled} {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
		if len(AllowedTransitions[st]) != 0 {
			t.Errorf("%s has outgoing transitions %v", st, AllowedTransitions[st])
		}
	}
}

func TestNonTerminalStatesHaveOutgoingEdges(t *testing.T) {
	for _, st := range []RideStatus{StatusRequested, StatusAssigned, StatusAccepted, StatusArrived, StatusOngoing} {
		if st.Terminal() {
			t.Errorf("%s should not be terminal", st)
		}
		if len(AllowedTransitions[st]) == 0 {
			t.Errorf("%s has no outgoing transitions", st)
		}
	}
}

func TestCoordValid(t *testing.T) {
	valid := []Coord{{0, 0}, {90, 180}, {-90, -180}, {25.03, 121.56}}
	for _, c := range valid {
		if !c.Valid() {
			t.Errorf("%+v should be valid", c)
		}
	}
	invalid := []Coord{{91, 0}, {-91, 0}, {0, 181}, {0, -181}}
	for _, c := range invalid {
		if c.Valid() {
			t.Errorf("%+v should be invalid", c)
		}
	}
}
