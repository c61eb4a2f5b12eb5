package client

import "math/rand"

var defaultNames = []string{"Alex", "Sarah", "Mike", "Emma", "John", "Lisa", "David", "Anna"}

var defaultAvatars = []string{"👨‍💻", "👩‍💻", "🧑‍💻", "👨‍🎓", "👩‍🎓", "🧑‍🎓", "👨‍🔬", "👩‍🔬"}

// RandomProfile picks a display name and avatar for users who never set one.
func RandomProfile() (name, avatar string) {
	return defaultNames[rand.Intn(len(defaultNames))],
		defaultAvatars[rand.Intn(len(defaultAvatars))]
}
