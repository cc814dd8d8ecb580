package main

import (
	"encoding/json"
	"testing"
	"time"
)

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func startedView(t *testing.T, localID string) *LocalView {
	t.Helper()
	v := NewLocalView(localID)
	v.Apply(MsgGameStarted, mustJSON(t, GameStartedMsg{
		MapSeed: 42,
		Players: []PlayerInfo{
			{ID: "p1", Nickname: "a", Number: 1, X: 1, Y: 1, Lives: 3, Alive: true},
			{ID: "p2", Nickname: "b", Number: 2, X: 13, Y: 1, Lives: 3, Alive: true},
		},
	}))
	return v
}

func TestViewGridMatchesSeed(t *testing.T) {
	v := startedView(t, "p1")
	cfg := DefaultConfig()
	want := NewGrid(cfg.GridWidth, cfg.GridHeight, cfg.BlockDensity, 42)

	for y := 0; y < cfg.GridHeight; y++ {
		for x := 0; x < cfg.GridWidth; x++ {
			if v.Grid.At(x, y) != want.At(x, y) {
				t.Fatalf("replica grid diverged at (%d,%d)", x, y)
			}
		}
	}
	if v.Phase != PhasePlaying {
		t.Errorf("view should be playing, got %v", v.Phase)
	}
}

func TestViewOptimisticMoveThenEcho(t *testing.T) {
	v := startedView(t, "p1")

	v.LocalMove(2.5, 1.0, "right")
	if v.Players["p1"].X != 2.5 {
		t.Fatal("local input should apply immediately")
	}

	// The server echo carries the same values; applying it converges
	v.Apply(MsgMove, mustJSON(t, MoveMsg{ID: "p1", X: 2.5, Y: 1.0, Direction: "right"}))
	if v.Players["p1"].X != 2.5 || v.Players["p1"].Direction != "right" {
		t.Error("echo should leave the optimistic state in place")
	}

	// Remote updates apply verbatim
	v.Apply(MsgMove, mustJSON(t, MoveMsg{ID: "p2", X: 11, Y: 3, Direction: "down"}))
	if v.Players["p2"].X != 11 || v.Players["p2"].Y != 3 {
		t.Error("remote move should apply verbatim")
	}
}

func TestViewExplosionIdempotent(t *testing.T) {
	v := startedView(t, "p1")
	v.Grid = NewEmptyGrid(15, 13)
	v.Grid.SetBlock(3, 1)

	v.Apply(MsgDropBomb, mustJSON(t, DropBombMsg{BombID: "b1", OwnerID: "p1", X: 1, Y: 1, ExplosionRange: 2}))
	if len(v.Bombs) != 1 {
		t.Fatal("bomb should appear in the view")
	}

	boom := mustJSON(t, BombExplodeMsg{BombID: "b1", OwnerID: "p1", X: 1, Y: 1, ExplosionRange: 2})
	v.Apply(MsgBombExplode, boom)

	if len(v.Bombs) != 0 {
		t.Error("exploded bomb should be removed")
	}
	if v.Grid.At(3, 1) != CellEmpty {
		t.Error("block in the recomputed blast should be destroyed")
	}

	// Re-delivery is a no-op, and so is a late duplicate drop_bomb
	v.Apply(MsgBombExplode, boom)
	v.Apply(MsgDropBomb, mustJSON(t, DropBombMsg{BombID: "b1", OwnerID: "p1", X: 1, Y: 1, ExplosionRange: 2}))
	if len(v.Bombs) != 0 {
		t.Error("an already-exploded bomb must not reappear")
	}
}

func TestViewExplosionDestroysPowerup(t *testing.T) {
	v := startedView(t, "p1")
	v.Grid = NewEmptyGrid(15, 13)
	v.Apply(MsgPowerupSpawned, mustJSON(t, PowerupInfo{ID: "pu1", Type: PowerupSpeed, X: 1, Y: 2}))

	v.Apply(MsgBombExplode, mustJSON(t, BombExplodeMsg{
		BombID: "b1", OwnerID: "p1", X: 1, Y: 1, ExplosionRange: 2,
		Cells: []Cell{{1, 1}, {1, 2}, {1, 3}, {2, 1}, {3, 1}},
	}))

	if len(v.Powerups) != 0 {
		t.Error("power-up in the blast footprint should be dropped")
	}
}

func TestViewHitAndElimination(t *testing.T) {
	v := startedView(t, "p1")

	v.Apply(MsgPlayerHit, mustJSON(t, PlayerHitMsg{VictimID: "p2", AttackerID: "p1", Lives: 2}))
	if v.Players["p2"].Lives != 2 {
		t.Error("hit should set the broadcast life count")
	}

	v.Apply(MsgPlayerEliminated, mustJSON(t, PlayerEliminatedMsg{VictimID: "p2", AttackerID: "p1"}))
	if v.Players["p2"].Alive {
		t.Error("eliminated player should be marked dead")
	}

	v.Apply(MsgGameEnded, mustJSON(t, GameEndedMsg{Winner: &WinnerInfo{ID: "p1", Nickname: "a"}}))
	if v.Phase != PhaseEnded || v.Result == nil || v.Result.Winner.ID != "p1" {
		t.Error("game end should close the view with the result")
	}
}

func TestViewSnapshotReconciliation(t *testing.T) {
	v := startedView(t, "p1")

	v.ApplySnapshot(Snapshot{
		Tick: 5,
		Players: []PlayerInfo{
			{ID: "p1", X: 4, Y: 4, Lives: 2, Alive: true},
			{ID: "p2", X: 9, Y: 9, Lives: 3, Alive: true},
		},
		Bombs: []BombInfo{{ID: "b9", OwnerID: "p2", X: 9, Y: 10, ExplosionRange: 1}},
	})
	if v.Players["p1"].X != 4 || v.Players["p1"].Lives != 2 {
		t.Error("snapshot should overwrite player state")
	}
	if len(v.Bombs) != 1 {
		t.Error("snapshot should install live bombs")
	}

	// A stale frame must not roll the view back
	v.ApplySnapshot(Snapshot{
		Tick:    3,
		Players: []PlayerInfo{{ID: "p1", X: 1, Y: 1, Lives: 3, Alive: true}},
	})
	if v.Players["p1"].X != 4 {
		t.Error("stale snapshot should be dropped")
	}

	// A snapshot without a player removes them (disconnect mid-match)
	v.ApplySnapshot(Snapshot{
		Tick:    6,
		Players: []PlayerInfo{{ID: "p1", X: 4, Y: 4, Lives: 2, Alive: true}},
	})
	if _, ok := v.Players["p2"]; ok {
		t.Error("players absent from a fresh snapshot should be removed")
	}
}

func TestReconnectPolicyBackoff(t *testing.T) {
	p := DefaultReconnectPolicy()

	prev := time.Duration(0)
	for i := 0; i < p.MaxAttempts; i++ {
		d, ok := p.Delay(i)
		if !ok {
			t.Fatalf("attempt %d should be allowed", i)
		}
		if d < prev {
			t.Errorf("delay should not decrease: attempt %d gave %v after %v", i, d, prev)
		}
		if d > p.MaxDelay {
			t.Errorf("delay %v exceeds cap %v", d, p.MaxDelay)
		}
		prev = d
	}
	if _, ok := p.Delay(p.MaxAttempts); ok {
		t.Error("attempts beyond the limit should report offline")
	}
}
