package main

import (
	"fmt"
	"os"

	"suljari"
	"suljari/internal/catalog"
	"suljari/internal/room"
)

// Prints the content catalog shipped with the server: every category per
// game with its word count. Pass a path to inspect a seed file on disk
// before embedding it.
func main() {
	seed := suljari.CatalogSeedJSON
	source := "embedded"
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		seed = data
		source = os.Args[1]
	}

	cat, err := catalog.New(seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed rejected: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Catalog seed (%s): %d categories\n\n", source, cat.Size())

	games := []string{room.GameMarble, room.GameMafia, room.GameLiar, room.GameQuiz, room.GameTruth}
	total := 0
	for _, game := range games {
		summaries := cat.ListCategories(game)
		if len(summaries) == 0 {
			continue
		}
		fmt.Printf("%s:\n", game)
		for _, s := range summaries {
			fmt.Printf("  %3d  %-14s %4d words\n", s.CategoryID, s.Name, s.WordCount)
			total += s.WordCount
		}
		fmt.Println()
	}
	fmt.Printf("total: %d words\n", total)
}
