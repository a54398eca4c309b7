package game

import (
	"math/rand"
	"sort"
)

// CountBallots tallies last-write-wins ballots (voter → target) into
// per-target counts.
func CountBallots(ballots map[string]string) map[string]int {
	counts := make(map[string]int, len(ballots))
	for _, target := range ballots {
		if target != "" {
			counts[target]++
		}
	}
	return counts
}

// TopUnique returns the target with strictly the highest count. unique is
// false when the lead is shared or no votes were cast.
func TopUnique(counts map[string]int) (target string, count int, unique bool) {
	leaders := leaders(counts)
	if len(leaders) != 1 {
		return "", maxCount(counts), false
	}
	return leaders[0], counts[leaders[0]], true
}

// TopRandom returns a plurality target, breaking ties uniformly at random.
// ok is false when no votes were cast.
func TopRandom(counts map[string]int) (target string, count int, ok bool) {
	leaders := leaders(counts)
	if len(leaders) == 0 {
		return "", 0, false
	}
	pick := leaders[rand.Intn(len(leaders))]
	return pick, counts[pick], true
}

// leaders returns every target holding the maximum count, sorted so the
// random pick above is uniform regardless of map iteration order.
func leaders(counts map[string]int) []string {
	max := maxCount(counts)
	if max == 0 {
		return nil
	}
	var out []string
	for target, n := range counts {
		if n == max {
			out = append(out, target)
		}
	}
	sort.Strings(out)
	return out
}

func maxCount(counts map[string]int) int {
	m := 0
	for _, n := range counts {
		if n > m {
			m = n
		}
	}
	return m
}
