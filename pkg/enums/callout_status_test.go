package enums

import "testing"

func TestCalloutTransitions(t *testing.T) {
	cases := []struct {
		from    CalloutStatus
		to      CalloutStatus
		allowed bool
	}{
		{CalloutStatusOpen, CalloutStatusAssigned, true},
		{CalloutStatusOpen, CalloutStatusCancelled, true},
		{CalloutStatusOpen, CalloutStatusResolved, false},
		{CalloutStatusOpen, CalloutStatusInProgress, false},
		{CalloutStatusAssigned, CalloutStatusInProgress, true},
		{CalloutStatusAssigned, CalloutStatusResolved, true},
		{CalloutStatusAssigned, CalloutStatusCancelled, false},
		{CalloutStatusAssigned, CalloutStatusOpen, false},
		{CalloutStatusInProgress, CalloutStatusResolved, true},
		{CalloutStatusInProgress, CalloutStatusCancelled, false},
		{CalloutStatusResolved, CalloutStatusOpen, false},
		{CalloutStatusCancelled, CalloutStatusAssigned, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestCalloutTerminalStates(t *testing.T) {
	if !CalloutStatusResolved.IsTerminal() || !CalloutStatusCancelled.IsTerminal() {
		t.Fatal("resolved and cancelled must be terminal")
	}
	if CalloutStatusOpen.IsTerminal() || CalloutStatusAssigned.IsTerminal() || CalloutStatusInProgress.IsTerminal() {
		t.Fatal("open/assigned/in_progress must not be terminal")
	}
}

func TestParseCalloutStatus(t *testing.T) {
	if _, err := ParseCalloutStatus("open"); err != nil {
		t.Fatalf("open should parse: %v", err)
	}
	if _, err := ParseCalloutStatus("reopened"); err == nil {
		t.Fatal("unknown status must not parse")
	}
}

func TestResponseStatusGuards(t *testing.T) {
	for _, s := range []ResponseStatus{ResponseStatusPending, ResponseStatusAcknowledged} {
		if !s.CanRespond() || !s.CanDecline() || !s.CanAcknowledge() {
			t.Errorf("%s should permit partner actions", s)
		}
	}
	for _, s := range []ResponseStatus{ResponseStatusResponded, ResponseStatusDeclined, ResponseStatusSelected, ResponseStatusNotSelected} {
		if s.CanRespond() {
			t.Errorf("%s should not permit respond", s)
		}
	}
	if !ResponseStatusDeclined.IsTerminal() || !ResponseStatusSelected.IsTerminal() || !ResponseStatusNotSelected.IsTerminal() {
		t.Fatal("declined/selected/not_selected must be terminal")
	}
	if ResponseStatusResponded.IsTerminal() {
		t.Fatal("responded is not terminal; the arbiter still acts on it")
	}
}
