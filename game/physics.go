package game

import "math"

const (
	MinPosition     = 0.0
	MaxPosition     = 100.0
	NeutralPosition = 50.0

	// ImpactPerClick is how far one click moves the core.
	ImpactPerClick = 0.2
	// PowerPerClick scales the activePower hint sent to renderers.
	PowerPerClick = 10
)

const maxInt = math.MaxInt

// Clamp keeps a core position inside [MinPosition, MaxPosition].
func Clamp(position float64) float64 {
	if math.IsNaN(position) {
		return NeutralPosition
	}
	return math.Max(MinPosition, math.Min(MaxPosition, position))
}

// Direction is -1 for team A (towards 0), +1 for team B (towards 100) and 0
// for anyone else.
func Direction(team Team) float64 {
	switch team {
	case TeamA:
		return -1
	case TeamB:
		return 1
	}
	return 0
}

// Pull applies clicks from team to position and returns the clamped result.
func Pull(position float64, team Team, clicks int) float64 {
	if clicks <= 0 {
		return Clamp(position)
	}
	impact := float64(clicks) * ImpactPerClick * Direction(team)
	return Clamp(position + impact)
}

// ActivePower is the UI intensity hint for a batch of clicks.
func ActivePower(clicks int) int {
	if clicks <= 0 {
		return 0
	}
	if clicks > maxInt/PowerPerClick {
		return maxInt
	}
	return clicks * PowerPerClick
}

// BoundaryWinner reports which team's goal the core has reached, if any.
func BoundaryWinner(position float64) (Team, bool) {
	switch {
	case position <= MinPosition:
		return TeamA, true
	case position >= MaxPosition:
		return TeamB, true
	}
	return "", false
}
