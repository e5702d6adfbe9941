package directory

import "math/rand"

var nameAdjectives = []string{
	"Green", "Blue", "Red", "Swift", "Bright", "Silent", "Wise", "Bold",
}

var nameNouns = []string{
	"Mountain", "Lake", "Forest", "River", "Sky", "Storm", "Owl", "Eagle",
}

// RandomName picks a human-readable adjective+noun name for agents that
// register without one, e.g. "GreenMountain".
func RandomName() string {
	return nameAdjectives[rand.Intn(len(nameAdjectives))] +
		nameNouns[rand.Intn(len(nameNouns))]
}
