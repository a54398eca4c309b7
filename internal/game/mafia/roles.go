package mafia

import "math/rand"

// Roles.
const (
	RoleMafia    = "mafia"
	RoleDoctor   = "doctor"
	RolePolice   = "police"
	RoleCivilian = "civilian"
)

// MinPlayers is the smallest roster a game can start with.
const MinPlayers = 4

// mafiaCount returns how many mafia a roster of n players gets.
func mafiaCount(n int) int {
	switch {
	case n <= 5:
		return 1
	case n <= 8:
		return 2
	default:
		return 3
	}
}

// rolledRoles builds the shuffled role list for n players: 1-3 mafia, a
// doctor from 6 players, a police from 7, civilians for the rest.
func rolledRoles(n int) []string {
	roles := make([]string, 0, n)
	for i := 0; i < mafiaCount(n); i++ {
		roles = append(roles, RoleMafia)
	}
	if n >= 6 {
		roles = append(roles, RoleDoctor)
	}
	if n >= 7 {
		roles = append(roles, RolePolice)
	}
	for len(roles) < n {
		roles = append(roles, RoleCivilian)
	}
	rand.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})
	return roles
}
