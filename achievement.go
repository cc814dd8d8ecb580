package main

// Achievement definitions
type AchievementDef struct {
	ID          string
	Name        string
	Description string
}

var Achievements = []AchievementDef{
	{"first_blood", "First Blood", "Eliminate your first opponent"},
	{"demolitionist", "Demolitionist", "Destroy 500 blocks in total"},
	{"wrecking_ball", "Wrecking Ball", "Destroy 2500 blocks in total"},
	{"hat_trick", "Hat Trick", "Eliminate 3 opponents in a single match"},
	{"flawless", "Flawless Victory", "Win a match without losing a life"},
	{"victor", "Victor", "Win 10 matches"},
	{"champion", "Champion", "Win 100 matches"},
	{"collector", "Collector", "Pick up 100 power-ups in total"},
	{"veteran", "Veteran", "Reach level 10"},
	{"legend", "Legend", "Reach level 50"},
	{"survivor", "Survivor", "Play for 1 hour total"},
}

// CheckAchievements checks if any new achievements should be unlocked for a player.
// Returns the list of newly unlocked achievements.
func CheckAchievements(db *DB, playerID int64, matchEliminations int, won, flawless bool) []AchievementDef {
	if db == nil {
		return nil
	}

	stats, err := db.GetStats(playerID)
	if err != nil || stats == nil {
		return nil
	}

	existing, err := db.GetAchievements(playerID)
	if err != nil {
		return nil
	}
	has := make(map[string]bool, len(existing))
	for _, a := range existing {
		has[a] = true
	}

	var unlocked []AchievementDef

	check := func(id string) bool {
		if has[id] {
			return false
		}
		switch id {
		case "first_blood":
			return stats.Eliminations >= 1
		case "demolitionist":
			return stats.BlocksDestroyed >= 500
		case "wrecking_ball":
			return stats.BlocksDestroyed >= 2500
		case "hat_trick":
			return matchEliminations >= 3
		case "flawless":
			return won && flawless
		case "victor":
			return stats.Wins >= 10
		case "champion":
			return stats.Wins >= 100
		case "collector":
			return stats.PowerupsCollected >= 100
		case "veteran":
			return stats.Level >= 10
		case "legend":
			return stats.Level >= 50
		case "survivor":
			return stats.Playtime >= 3600
		}
		return false
	}

	for _, def := range Achievements {
		if check(def.ID) {
			if newlyUnlocked, err := db.UnlockAchievement(playerID, def.ID); err == nil && newlyUnlocked {
				unlocked = append(unlocked, def)
			}
		}
	}

	return unlocked
}
