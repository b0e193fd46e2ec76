package domain

// Power is a class ability that spends mana for a discrete battle effect.
type Power struct {
	Name        string    `json:"name"`
	Class       HeroClass `json:"class"`
	Level       int       `json:"level"`
	MPCost      int       `json:"mpCost"`
	RoundCap    int       `json:"roundCap"`
	Amount      int       `json:"amount,omitempty"`
	Targeted    bool      `json:"targeted,omitempty"`
	Description string    `json:"description"`
}

const (
	PowerNaturesGuidance = "Nature's Guidance"
	PowerArcaneBolt      = "Arcane Bolt"
	PowerGuardiansShield = "Guardian's Shield"
	PowerMendingLight    = "Mending Light"
	PowerTimeWarp        = "Time Warp"
)

var powers = []Power{
	{
		Name:        PowerNaturesGuidance,
		Class:       ClassHealer,
		Level:       1,
		MPCost:      3,
		RoundCap:    2,
		Description: "Removes one incorrect answer from the current question for everyone.",
	},
	{
		Name:        PowerMendingLight,
		Class:       ClassHealer,
		Level:       2,
		MPCost:      4,
		RoundCap:    2,
		Amount:      10,
		Targeted:    true,
		Description: "Restores health to an ally.",
	},
	{
		Name:        PowerArcaneBolt,
		Class:       ClassMage,
		Level:       1,
		MPCost:      5,
		RoundCap:    3,
		Amount:      2,
		Description: "Strikes the boss directly.",
	},
	{
		Name:        PowerTimeWarp,
		Class:       ClassMage,
		Level:       5,
		MPCost:      12,
		RoundCap:    1,
		Description: "Bends the flow of the battle.",
	},
	{
		Name:        PowerGuardiansShield,
		Class:       ClassGuardian,
		Level:       1,
		MPCost:      4,
		RoundCap:    3,
		Description: "Protects the caster from damage this round.",
	},
}

var powersByName = func() map[string]Power {
	m := make(map[string]Power, len(powers))
	for _, p := range powers {
		m[p.Name] = p
	}
	return m
}()

// LookupPower finds a power by name.
func LookupPower(name string) (Power, bool) {
	p, ok := powersByName[name]
	return p, ok
}

// Powers lists every power, optionally filtered by class.
func Powers(class HeroClass) []Power {
	out := make([]Power, 0, len(powers))
	for _, p := range powers {
		if class == "" || p.Class == class {
			out = append(out, p)
		}
	}
	return out
}

// ClassStat holds the starting pools and per-level growth of a class.
type ClassStat struct {
	BaseHP     int
	BaseMP     int
	HPPerLevel int
	MPPerLevel int
}

// ClassStats is the growth table for each hero class.
var ClassStats = map[HeroClass]ClassStat{
	ClassGuardian: {BaseHP: 120, BaseMP: 20, HPPerLevel: 12, MPPerLevel: 3},
	ClassHealer:   {BaseHP: 90, BaseMP: 40, HPPerLevel: 8, MPPerLevel: 6},
	ClassMage:     {BaseHP: 80, BaseMP: 50, HPPerLevel: 6, MPPerLevel: 8},
}

// XPPerLevel is the flat experience needed for each level.
const XPPerLevel = 100

// LevelForXP returns the level a hero with xp experience has reached.
func LevelForXP(xp int) int {
	if xp < 0 {
		return 1
	}
	return 1 + xp/XPPerLevel
}

// MaxPools returns max hp and mp for a class at a level.
func MaxPools(class HeroClass, level int) (int, int) {
	st := ClassStats[class]
	if level < 1 {
		level = 1
	}
	return st.BaseHP + st.HPPerLevel*(level-1), st.BaseMP + st.MPPerLevel*(level-1)
}

// Boon is a reward students can buy with gold.
type Boon struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Cost        int    `json:"cost"`
	Description string `json:"description"`
}

var boons = []Boon{
	{ID: "front-row-seat", Name: "Front Row Seat", Cost: 50, Description: "Pick your seat for a day."},
	{ID: "music-pass", Name: "Bard's Pass", Cost: 75, Description: "Choose the music during work time."},
	{ID: "homework-shield", Name: "Scroll of Reprieve", Cost: 150, Description: "Skip one homework assignment."},
	{ID: "golden-frame", Name: "Golden Frame", Cost: 30, Description: "A golden border around your avatar."},
}

// LookupBoon finds a boon by id.
func LookupBoon(id string) (Boon, bool) {
	for _, b := range boons {
		if b.ID == id {
			return b, true
		}
	}
	return Boon{}, false
}

// Boons returns the boon catalogue.
func Boons() []Boon {
	out := make([]Boon, len(boons))
	copy(out, boons)
	return out
}
