package catalog

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"suljari/internal/apperr"
)

// Category kinds. Keyword categories feed the Quiz and Liar games,
// penalty categories feed the Marble board.
const (
	KindKeyword = "keyword"
	KindPenalty = "penalty"
)

// Category is one group of seed content rows belonging to a single game.
type Category struct {
	ID    int      `json:"id"`
	Game  string   `json:"game"`
	Name  string   `json:"name"`
	Kind  string   `json:"kind"`
	Words []string `json:"words"`
}

// Summary is the listing shape served to hosts picking a category.
type Summary struct {
	CategoryID int    `json:"categoryId"`
	Name       string `json:"name"`
	WordCount  int    `json:"wordCount"`
}

type seedFile struct {
	Version    int        `json:"version"`
	Categories []Category `json:"categories"`
}

// Catalog holds the seed content loaded once at startup. It is read-only
// after construction and safe for concurrent use.
type Catalog struct {
	byID   map[int]*Category
	byGame map[string][]*Category
}

// New parses the embedded seed JSON and indexes its categories.
func New(seedJSON []byte) (*Catalog, error) {
	var seed seedFile
	if err := json.Unmarshal(seedJSON, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog seed: %w", err)
	}
	if len(seed.Categories) == 0 {
		return nil, fmt.Errorf("catalog seed contains no categories")
	}

	c := &Catalog{
		byID:   make(map[int]*Category, len(seed.Categories)),
		byGame: make(map[string][]*Category),
	}
	for i := range seed.Categories {
		cat := &seed.Categories[i]
		if cat.Game == "" || cat.Name == "" {
			return nil, fmt.Errorf("category %d is missing game or name", cat.ID)
		}
		if cat.Kind != KindKeyword && cat.Kind != KindPenalty {
			return nil, fmt.Errorf("category %d (%s) has unknown kind %q", cat.ID, cat.Name, cat.Kind)
		}
		if len(cat.Words) == 0 {
			return nil, fmt.Errorf("category %d (%s) has no words", cat.ID, cat.Name)
		}
		if _, dup := c.byID[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %d", cat.ID)
		}
		c.byID[cat.ID] = cat
		c.byGame[cat.Game] = append(c.byGame[cat.Game], cat)
	}
	return c, nil
}

// Size returns the number of seeded categories.
func (c *Catalog) Size() int {
	return len(c.byID)
}

// ListCategories returns the summaries of every category seeded for a game,
// in seed order. Unknown games yield an empty list.
func (c *Catalog) ListCategories(game string) []Summary {
	cats := c.byGame[game]
	out := make([]Summary, 0, len(cats))
	for _, cat := range cats {
		out = append(out, Summary{
			CategoryID: cat.ID,
			Name:       cat.Name,
			WordCount:  len(cat.Words),
		})
	}
	return out
}

// Lookup returns the category with the given id.
func (c *Catalog) Lookup(categoryID int) (*Category, error) {
	cat, ok := c.byID[categoryID]
	if !ok {
		return nil, apperr.NotFound("category %d not found", categoryID)
	}
	return cat, nil
}

// RandomWords returns up to n words from the category, shuffled. Asking for
// more words than the category holds returns all of them.
func (c *Catalog) RandomWords(categoryID, n int) ([]string, error) {
	cat, err := c.Lookup(categoryID)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []string{}, nil
	}
	pool := make([]string, len(cat.Words))
	copy(pool, cat.Words)
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}

// RandomWord draws a single word from the category.
func (c *Catalog) RandomWord(categoryID int) (string, *Category, error) {
	cat, err := c.Lookup(categoryID)
	if err != nil {
		return "", nil, err
	}
	return cat.Words[rand.Intn(len(cat.Words))], cat, nil
}

// FindOnePenaltyCategory returns the first penalty category seeded for the
// game, or nil when none exists.
func (c *Catalog) FindOnePenaltyCategory(game string) *Category {
	for _, cat := range c.byGame[game] {
		if cat.Kind == KindPenalty {
			return cat
		}
	}
	return nil
}

// AllContent returns a copy of every word in the category.
func (c *Catalog) AllContent(categoryID int) ([]string, error) {
	cat, err := c.Lookup(categoryID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cat.Words))
	copy(out, cat.Words)
	return out, nil
}
