package server

// Level thresholds for accumulated card experience.
const (
	levelTwoExp   = 100
	levelThreeExp = 300
	levelFourExp  = 600

	attackLifePerLevel = 10
)

// LevelFor maps accumulated experience to a card level in {1,2,3,4}.
// Thresholds are evaluated highest-first so ties resolve upward.
func LevelFor(experience int) int {
	switch {
	case experience >= levelFourExp:
		return 4
	case experience >= levelThreeExp:
		return 3
	case experience >= levelTwoExp:
		return 2
	default:
		return 1
	}
}

// AttackLifeFor recomputes a card's attack-life stat from its creation-time
// base. Recomputing from the base keeps the rule idempotent: repeated combat
// results at a stable level leave the stat unchanged.
func AttackLifeFor(baseAttackLife, level int) int {
	return baseAttackLife + (level-1)*attackLifePerLevel
}
