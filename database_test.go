package main

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAccountLifecycle(t *testing.T) {
	db := newTestDB(t)

	id, err := db.CreateAccount("bomber1", "hash")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	acct, err := db.GetAccountByUsername("bomber1")
	if err != nil || acct == nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if acct.ID != id || acct.PassHash != "hash" {
		t.Errorf("unexpected account row: %+v", acct)
	}

	exists, _ := db.UsernameExists("bomber1")
	if !exists {
		t.Error("username should exist")
	}
	exists, _ = db.UsernameExists("nobody")
	if exists {
		t.Error("unknown username should not exist")
	}

	if _, err := db.CreateAccount("bomber1", "other"); err == nil {
		t.Error("duplicate username should be rejected")
	}

	missing, err := db.GetAccountByUsername("nobody")
	if err != nil || missing != nil {
		t.Errorf("missing account should be nil, got %+v (%v)", missing, err)
	}
}

func TestStatsCreatedWithAccount(t *testing.T) {
	db := newTestDB(t)
	id, _ := db.CreateAccount("bomber2", "hash")

	stats, err := db.GetStats(id)
	if err != nil || stats == nil {
		t.Fatalf("stats row should exist: %v", err)
	}
	if stats.Level != 1 || stats.XP != 0 || stats.Wins != 0 {
		t.Errorf("fresh stats should be zeroed at level 1: %+v", stats)
	}
}

func TestUpdateStatsAfterMatch(t *testing.T) {
	db := newTestDB(t)
	id, _ := db.CreateAccount("bomber3", "hash")

	totalXP, level, err := db.UpdateStatsAfterMatch(id, 2, 1, 5, 12, 3, true, 180, 112)
	if err != nil {
		t.Fatalf("update stats: %v", err)
	}
	if totalXP != 112 {
		t.Errorf("expected 112 total xp, got %d", totalXP)
	}
	if level != CalculateLevel(112) {
		t.Errorf("level mismatch: %d", level)
	}

	stats, _ := db.GetStats(id)
	if stats.Eliminations != 2 || stats.Wins != 1 || stats.Losses != 0 {
		t.Errorf("stats not accumulated: %+v", stats)
	}
	if stats.BlocksDestroyed != 12 || stats.PowerupsCollected != 3 {
		t.Errorf("counters not accumulated: %+v", stats)
	}

	// A lost match accumulates on top
	db.UpdateStatsAfterMatch(id, 0, 3, 2, 1, 0, false, 60, 21)
	stats, _ = db.GetStats(id)
	if stats.Losses != 1 || stats.XP != 133 {
		t.Errorf("second match not folded in: %+v", stats)
	}
}

func TestLevelCurve(t *testing.T) {
	if XPForLevel(1) != 0 {
		t.Error("level 1 requires no xp")
	}
	if XPForLevel(2) != 100 {
		t.Errorf("level 2 should require 100 xp, got %d", XPForLevel(2))
	}
	if CalculateLevel(0) != 1 || CalculateLevel(99) != 1 {
		t.Error("sub-threshold xp stays at level 1")
	}
	if CalculateLevel(100) != 2 {
		t.Errorf("100 xp should reach level 2, got %d", CalculateLevel(100))
	}
	for lvl := 2; lvl <= 20; lvl++ {
		if XPForLevel(lvl) <= XPForLevel(lvl-1) {
			t.Fatalf("xp curve must be strictly increasing at level %d", lvl)
		}
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	db := newTestDB(t)
	a, _ := db.CreateAccount("alice", "h")
	b, _ := db.CreateAccount("bob", "h")

	db.UpdateStatsAfterMatch(a, 1, 0, 3, 4, 1, true, 120, 100)
	db.UpdateStatsAfterMatch(b, 4, 1, 6, 2, 0, false, 120, 300)

	byXP, err := db.GetLeaderboard("xp", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(byXP) != 2 || byXP[0].Username != "bob" || byXP[0].Rank != 1 {
		t.Errorf("xp ordering wrong: %+v", byXP)
	}

	byWins, _ := db.GetLeaderboard("wins", 10)
	if byWins[0].Username != "alice" {
		t.Errorf("wins ordering wrong: %+v", byWins)
	}

	// Unknown sort keys fall back instead of injecting
	fallback, err := db.GetLeaderboard("drop table", 10)
	if err != nil || fallback[0].Username != "bob" {
		t.Errorf("invalid sort key should fall back to xp: %v", err)
	}
}

func TestMatchRecording(t *testing.T) {
	db := newTestDB(t)
	id, _ := db.CreateAccount("bomber4", "h")

	matchID, err := db.RecordMatch(95.5, true, 3)
	if err != nil || matchID == 0 {
		t.Fatalf("record match: %v", err)
	}
	if err := db.RecordMatchPlayer(matchID, id, 2, 1, 4, 9, 2, true, 97); err != nil {
		t.Fatalf("record match player: %v", err)
	}
	// The same player twice in one match violates the primary key
	if err := db.RecordMatchPlayer(matchID, id, 0, 0, 0, 0, 0, false, 0); err == nil {
		t.Error("duplicate match row should be rejected")
	}
}

func TestAchievementUnlockIdempotent(t *testing.T) {
	db := newTestDB(t)
	id, _ := db.CreateAccount("bomber5", "h")

	fresh, err := db.UnlockAchievement(id, "first_blood")
	if err != nil || !fresh {
		t.Fatalf("first unlock should insert: %v", err)
	}
	again, err := db.UnlockAchievement(id, "first_blood")
	if err != nil || again {
		t.Errorf("re-unlock should be a no-op, got fresh=%t err=%v", again, err)
	}

	unlocked, _ := db.GetAchievements(id)
	if len(unlocked) != 1 || unlocked[0] != "first_blood" {
		t.Errorf("unexpected achievements: %v", unlocked)
	}
}

func TestCheckAchievements(t *testing.T) {
	db := newTestDB(t)
	id, _ := db.CreateAccount("bomber6", "h")
	db.UpdateStatsAfterMatch(id, 3, 0, 5, 10, 1, true, 90, 115)

	defs := CheckAchievements(db, id, 3, true, true)

	got := make(map[string]bool, len(defs))
	for _, d := range defs {
		got[d.ID] = true
	}
	for _, want := range []string{"first_blood", "hat_trick", "flawless"} {
		if !got[want] {
			t.Errorf("expected %s to unlock, got %v", want, defs)
		}
	}

	// A second pass unlocks nothing new
	if again := CheckAchievements(db, id, 3, true, true); len(again) != 0 {
		t.Errorf("repeat check should unlock nothing, got %v", again)
	}
}

func TestSettingsUpsert(t *testing.T) {
	db := newTestDB(t)

	if v := db.GetSetting("jwt_secret"); v != "" {
		t.Errorf("missing setting should be empty, got %q", v)
	}
	db.SetSetting("jwt_secret", "one")
	db.SetSetting("jwt_secret", "two")
	if v := db.GetSetting("jwt_secret"); v != "two" {
		t.Errorf("setting should upsert, got %q", v)
	}
}
