package main

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// envRecorder collects lobby broadcasts from any goroutine
type envRecorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *envRecorder) record(env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
}

func (r *envRecorder) countType(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.T == msgType {
			n++
		}
	}
	return n
}

// lobbyTestConfig keeps the real timers out of the way unless a test
// shortens them explicitly
func lobbyTestConfig() GameConfig {
	cfg := testConfig()
	cfg.GraceDuration = time.Hour
	cfg.CountdownDuration = time.Hour
	return cfg
}

func waitForPhase(t *testing.T, l *Lobby, want Phase, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if l.Phase() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("phase never reached %v, still %v", want, l.Phase())
}

func TestLobbyJoinAssignsSlots(t *testing.T) {
	rec := &envRecorder{}
	l := NewLobby(lobbyTestConfig(), rec.record)

	var welcomes []*WelcomeMsg
	for i := 0; i < 4; i++ {
		w, err := l.Join(&mockBroadcaster{}, "player", 0)
		if err != nil {
			t.Fatalf("join %d failed: %v", i+1, err)
		}
		welcomes = append(welcomes, w)
	}
	for i, w := range welcomes {
		if w.Number != i+1 {
			t.Errorf("join %d got slot %d", i+1, w.Number)
		}
		if w.Color != PlayerColors[i] {
			t.Errorf("slot %d got color %s", w.Number, w.Color)
		}
	}

	if _, err := l.Join(&mockBroadcaster{}, "fifth", 0); err == nil || !strings.Contains(err.Error(), "full") {
		t.Errorf("fifth join should be refused as full, got %v", err)
	}
	if rec.countType(MsgLobbyUpdate) < 4 {
		t.Error("each join should broadcast a roster update")
	}
}

func TestLobbySlotReuse(t *testing.T) {
	rec := &envRecorder{}
	l := NewLobby(lobbyTestConfig(), rec.record)

	w1, _ := l.Join(&mockBroadcaster{}, "a", 0)
	w2, _ := l.Join(&mockBroadcaster{}, "b", 0)
	l.Join(&mockBroadcaster{}, "c", 0)

	l.Leave(w2.ID)
	w4, err := l.Join(&mockBroadcaster{}, "d", 0)
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if w4.Number != 2 {
		t.Errorf("freed slot 2 should be reused, got %d", w4.Number)
	}
	if w1.Number != 1 {
		t.Errorf("existing slots must not shift, got %d", w1.Number)
	}
}

func TestLobbyGraceTimerStartsCountdown(t *testing.T) {
	cfg := lobbyTestConfig()
	cfg.GraceDuration = 50 * time.Millisecond
	rec := &envRecorder{}
	l := NewLobby(cfg, rec.record)

	l.Join(&mockBroadcaster{}, "a", 0)
	if l.Phase() != PhaseWaiting {
		t.Fatal("one player should not arm anything")
	}
	l.Join(&mockBroadcaster{}, "b", 0)
	if l.Phase() != PhaseWaiting {
		t.Fatal("grace period should still be waiting")
	}

	waitForPhase(t, l, PhaseCountdown, time.Second)
	if rec.countType(MsgCountdown) == 0 {
		t.Error("countdown start should broadcast game:countdown")
	}
}

func TestLobbyFullLobbySkipsGrace(t *testing.T) {
	rec := &envRecorder{}
	l := NewLobby(lobbyTestConfig(), rec.record)

	for i := 0; i < 4; i++ {
		l.Join(&mockBroadcaster{}, "p", 0)
	}
	if l.Phase() != PhaseCountdown {
		t.Errorf("fourth join should start the countdown immediately, phase %v", l.Phase())
	}
}

func TestLobbyCountdownAbortsBelowMin(t *testing.T) {
	rec := &envRecorder{}
	l := NewLobby(lobbyTestConfig(), rec.record)

	w1, _ := l.Join(&mockBroadcaster{}, "a", 0)
	l.Join(&mockBroadcaster{}, "b", 0)
	if err := l.RequestStart(w1.ID, false); err != nil {
		t.Fatalf("start with two players should be accepted: %v", err)
	}
	if l.Phase() != PhaseCountdown {
		t.Fatal("explicit start should enter countdown")
	}

	l.Leave(w1.ID)
	if l.Phase() != PhaseWaiting {
		t.Errorf("dropping below two players should abort the countdown, phase %v", l.Phase())
	}
}

func TestLobbyAllReadySkipsGrace(t *testing.T) {
	rec := &envRecorder{}
	l := NewLobby(lobbyTestConfig(), rec.record)

	w1, _ := l.Join(&mockBroadcaster{}, "a", 0)
	w2, _ := l.Join(&mockBroadcaster{}, "b", 0)

	l.SetReady(w1.ID, true)
	if l.Phase() != PhaseWaiting {
		t.Fatal("one ready player is not enough")
	}
	l.SetReady(w2.ID, true)
	if l.Phase() != PhaseCountdown {
		t.Errorf("all ready should start the countdown, phase %v", l.Phase())
	}
}

func TestLobbyRequestStartValidation(t *testing.T) {
	rec := &envRecorder{}
	l := NewLobby(lobbyTestConfig(), rec.record)

	if err := l.RequestStart("nobody", false); err == nil {
		t.Error("start from a non-member should be refused")
	}

	w1, _ := l.Join(&mockBroadcaster{}, "a", 0)
	err := l.RequestStart(w1.ID, false)
	if err == nil || !strings.Contains(err.Error(), "need at least") {
		t.Errorf("start below the minimum should be refused, got %v", err)
	}
}

func TestLobbySinglePlayerStart(t *testing.T) {
	rec := &envRecorder{}
	l := NewLobby(lobbyTestConfig(), rec.record)

	w1, _ := l.Join(&mockBroadcaster{}, "solo", 0)
	if err := l.RequestStart(w1.ID, true); err != nil {
		t.Fatalf("single-player start failed: %v", err)
	}
	if l.Phase() != PhasePlaying {
		t.Fatalf("single-player start should skip the countdown, phase %v", l.Phase())
	}
	if l.Game() == nil {
		t.Fatal("a match should be running")
	}
	if rec.countType(MsgGameStarted) != 1 {
		t.Error("game:started should broadcast once")
	}

	if _, err := l.Join(&mockBroadcaster{}, "late", 0); err == nil || !strings.Contains(err.Error(), "in progress") {
		t.Errorf("joins during a match should be refused, got %v", err)
	}
}

func TestLobbyResetsAfterMatch(t *testing.T) {
	rec := &envRecorder{}
	l := NewLobby(lobbyTestConfig(), rec.record)

	w1, _ := l.Join(&mockBroadcaster{}, "solo", 0)
	l.SetReady(w1.ID, true)
	if err := l.RequestStart(w1.ID, true); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	l.EndMatch()
	waitForPhase(t, l, PhaseWaiting, time.Second)

	if l.Game() != nil {
		t.Error("game reference should clear after the match")
	}
	l.mu.Lock()
	for _, lp := range l.players {
		if lp.Ready {
			t.Error("ready flags should reset between matches")
		}
	}
	l.mu.Unlock()

	// Lobby is usable again
	if _, err := l.Join(&mockBroadcaster{}, "next", 0); err != nil {
		t.Errorf("join after match end should succeed: %v", err)
	}
}

func TestLobbyCountdownRunsToStart(t *testing.T) {
	cfg := lobbyTestConfig()
	cfg.CountdownDuration = time.Second
	rec := &envRecorder{}
	l := NewLobby(cfg, rec.record)

	w1, _ := l.Join(&mockBroadcaster{}, "a", 0)
	l.Join(&mockBroadcaster{}, "b", 0)
	if err := l.RequestStart(w1.ID, false); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitForPhase(t, l, PhasePlaying, 3*time.Second)
	if rec.countType(MsgGameStarted) != 1 {
		t.Error("game:started should broadcast once")
	}
}
