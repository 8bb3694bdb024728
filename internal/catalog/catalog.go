// Package catalog supplies the curated rule, chore and reward templates a
// guardian can pick from, optionally extended by a TOML file.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/models"
)

var ErrTemplateNotFound = errors.New("catalog template not found")

// Template is a curated card. Its key is stable across releases so picked
// definitions can be traced back to it.
type Template struct {
	Key     string                `toml:"key" json:"key"`
	Kind    models.DefinitionKind `toml:"-" json:"kind"`
	Title   string                `toml:"title" json:"title"`
	Peanuts int64                 `toml:"peanuts" json:"peanuts"`
}

// Provider is the read-only source of templates
type Provider interface {
	Templates(kind models.DefinitionKind) []Template
	Template(key string) (Template, error)
}

// Catalog is the in-memory Provider
type Catalog struct {
	byKey map[string]Template
}

var curated = []Template{
	{Key: "rule-brush-teeth", Kind: models.KindRule, Title: "Brush teeth", Peanuts: 1},
	{Key: "rule-say-thank-you", Kind: models.KindRule, Title: "Say please and thank you", Peanuts: 1},
	{Key: "rule-bed-on-time", Kind: models.KindRule, Title: "Go to bed on time", Peanuts: 2},
	{Key: "rule-screen-off", Kind: models.KindRule, Title: "Turn off screens when asked", Peanuts: 2},
	{Key: "rule-homework", Kind: models.KindRule, Title: "Finish homework", Peanuts: 3},
	{Key: "chore-make-bed", Kind: models.KindChore, Title: "Make the bed", Peanuts: 2},
	{Key: "chore-tidy-room", Kind: models.KindChore, Title: "Tidy your room", Peanuts: 3},
	{Key: "chore-set-table", Kind: models.KindChore, Title: "Set the table", Peanuts: 2},
	{Key: "chore-dishes", Kind: models.KindChore, Title: "Help with the dishes", Peanuts: 3},
	{Key: "chore-feed-pet", Kind: models.KindChore, Title: "Feed the pet", Peanuts: 2},
	{Key: "chore-laundry", Kind: models.KindChore, Title: "Put laundry away", Peanuts: 3},
	{Key: "reward-ice-cream", Kind: models.KindReward, Title: "Ice cream", Peanuts: 10},
	{Key: "reward-movie-night", Kind: models.KindReward, Title: "Pick the movie", Peanuts: 15},
	{Key: "reward-extra-screen", Kind: models.KindReward, Title: "30 minutes extra screen time", Peanuts: 12},
	{Key: "reward-stay-up", Kind: models.KindReward, Title: "Stay up 15 minutes later", Peanuts: 8},
	{Key: "reward-day-out", Kind: models.KindReward, Title: "Day out with a parent", Peanuts: 50},
}

// Curated returns the built-in catalog
func Curated() *Catalog {
	c := &Catalog{byKey: make(map[string]Template, len(curated))}
	for _, t := range curated {
		c.byKey[t.Key] = t
	}
	return c
}

// Templates returns the templates of a kind ordered by key
func (c *Catalog) Templates(kind models.DefinitionKind) []Template {
	var out []Template
	for _, t := range c.byKey {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (c *Catalog) Template(key string) (Template, error) {
	t, ok := c.byKey[key]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	return t, nil
}

type file struct {
	Rules   []Template `toml:"rules"`
	Chores  []Template `toml:"chores"`
	Rewards []Template `toml:"rewards"`
}

// Merge adds or replaces templates from a TOML catalog file:
//
//	[[rules]]
//	key = "rule-read"
//	title = "Read for 20 minutes"
//	peanuts = 2
func (c *Catalog) Merge(path string) error {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("failed to load catalog %s: %w", path, err)
	}

	groups := []struct {
		kind      models.DefinitionKind
		templates []Template
	}{
		{models.KindRule, f.Rules},
		{models.KindChore, f.Chores},
		{models.KindReward, f.Rewards},
	}
	for _, g := range groups {
		for i, t := range g.templates {
			t.Kind = g.kind
			t.Key = strings.TrimSpace(t.Key)
			t.Title = strings.TrimSpace(t.Title)
			if t.Key == "" || t.Title == "" {
				return fmt.Errorf("catalog %s: %s entry %d needs a key and a title", path, g.kind, i+1)
			}
			if t.Peanuts < 0 {
				return fmt.Errorf("catalog %s: %s has negative peanuts", path, t.Key)
			}
			if t.Peanuts > constants.MaxPeanuts {
				return fmt.Errorf("catalog %s: %s exceeds %d peanuts", path, t.Key, constants.MaxPeanuts)
			}
			c.byKey[t.Key] = t
		}
	}
	return nil
}

// Load returns the curated catalog extended by path when it is set and exists
func Load(path string) (*Catalog, error) {
	c := Curated()
	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err := c.Merge(path); err != nil {
		return nil, err
	}
	return c, nil
}
