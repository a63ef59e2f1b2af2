package domain

import "testing"

func TestGameStateString(t *testing.T) {
	cases := map[GameState]string{
		Disconnected: "DISCONNECTED",
		Joining:      "JOINING",
		Waiting:      "WAITING",
		Starting:     "STARTING",
		Playing:      "PLAYING",
		Paused:       "PAUSED",
		GameState(99): "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("GameState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewPlayerStateDefaultsNoTeam(t *testing.T) {
	p := NewPlayerState("A", NewClientID())
	if p.TeamNumber != NoTeam {
		t.Errorf("TeamNumber = %d, want %d", p.TeamNumber, NoTeam)
	}
	if p.IsReady || p.HasFoundObject {
		t.Error("new PlayerState should not be ready or found")
	}
}

func TestPlayerStateCloneIsIndependent(t *testing.T) {
	p := NewPlayerState("A", NewClientID())
	p.HasFoundObject = true
	cp := p.Clone()
	cp.HasFoundObject = false
	if !p.HasFoundObject {
		t.Error("mutating the clone affected the original")
	}
}

func TestNewClientIDUnique(t *testing.T) {
	a := NewClientID()
	b := NewClientID()
	if a == b {
		t.Error("NewClientID produced a duplicate")
	}
}
