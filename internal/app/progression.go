package app

import "academy-of-heroes/internal/domain"

// applyRewards adds xp and gold to a hero, handling level ups. Pools are
// refilled on level up. It reports whether the hero gained a level.
func applyRewards(st *domain.Student, xp, gold int) bool {
	st.XP += xp
	if st.XP < 0 {
		st.XP = 0
	}
	st.Gold += gold
	if st.Gold < 0 {
		st.Gold = 0
	}

	level := domain.LevelForXP(st.XP)
	if level <= st.Level {
		return false
	}
	st.Level = level
	st.MaxHP, st.MaxMP = domain.MaxPools(st.Class, level)
	st.HP = st.MaxHP
	st.MP = st.MaxMP
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
