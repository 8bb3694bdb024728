package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/julianstephens/tipje/internal/models"
)

func TestCuratedCoversEveryKind(t *testing.T) {
	c := Curated()
	for _, kind := range []models.DefinitionKind{models.KindRule, models.KindChore, models.KindReward} {
		templates := c.Templates(kind)
		if len(templates) == 0 {
			t.Errorf("no curated %s templates", kind)
		}
		for i, tpl := range templates {
			if tpl.Kind != kind {
				t.Errorf("%s listed under %s", tpl.Key, kind)
			}
			if i > 0 && templates[i-1].Key >= tpl.Key {
				t.Errorf("templates not ordered by key: %s before %s", templates[i-1].Key, tpl.Key)
			}
		}
	}
}

func TestTemplateLookup(t *testing.T) {
	c := Curated()
	tpl, err := c.Template("reward-ice-cream")
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}
	if tpl.Kind != models.KindReward || tpl.Peanuts <= 0 {
		t.Errorf("template = %+v", tpl)
	}
	if _, err := c.Template("nope"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Template(nope) error = %v", err)
	}
}

func TestLoadMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	content := `
[[rules]]
key = "rule-read"
title = "Read for 20 minutes"
peanuts = 2

[[rewards]]
key = "reward-ice-cream"
title = "Two scoops"
peanuts = 14
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	read, err := c.Template("rule-read")
	if err != nil || read.Kind != models.KindRule {
		t.Errorf("rule-read = %+v, %v", read, err)
	}
	ice, _ := c.Template("reward-ice-cream")
	if ice.Title != "Two scoops" || ice.Peanuts != 14 {
		t.Errorf("override not applied: %+v", ice)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	tests := map[string]string{
		"missing title":    "[[chores]]\nkey = \"x\"\n",
		"negative peanuts": "[[chores]]\nkey = \"x\"\ntitle = \"X\"\npeanuts = -1\n",
		"too many peanuts": "[[chores]]\nkey = \"x\"\ntitle = \"X\"\npeanuts = 9223372036854775807\n",
		"bad toml":         "[[chores]\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.toml")
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(c.Templates(models.KindChore)) != len(Curated().Templates(models.KindChore)) {
		t.Error("missing file should yield the curated catalog")
	}
}
