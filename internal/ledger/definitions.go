package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/tipje/internal/catalog"
	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage"
)

// DefinitionUpdate carries the fields of a custom card to change
type DefinitionUpdate struct {
	Title   *string
	Peanuts *int64
}

func validateDefinition(kind models.DefinitionKind, title string, peanuts int64) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDefinition)
	}
	if peanuts < 0 {
		return fmt.Errorf("%w: peanuts must not be negative", ErrInvalidDefinition)
	}
	if peanuts > constants.MaxPeanuts {
		return fmt.Errorf("%w: peanuts must not exceed %d", ErrInvalidDefinition, constants.MaxPeanuts)
	}
	return nil
}

func (l *Ledger) createDefinition(ctx context.Context, def models.Definition) (models.Definition, error) {
	if err := validateDefinition(def.Kind, def.Title, def.Peanuts); err != nil {
		return models.Definition{}, err
	}
	kidPath := l.kidPath()
	def.ID = l.newID()
	def.Title = strings.TrimSpace(def.Title)
	def.Active = true
	defPath := l.definitionPath(def.Kind, def.ID)

	err := l.run(ctx, "add_definition", []string{kidPath, defPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		if _, err := decodeKid(reads[kidPath]); err != nil {
			return nil, err
		}
		def.CreatedAt = l.timestamp()
		doc, err := storage.Encode(def)
		if err != nil {
			return nil, err
		}
		return []storage.Write{storage.Set(defPath, doc)}, nil
	})
	if err != nil {
		return models.Definition{}, err
	}
	return def, nil
}

// AddDefinition authors a custom card
func (l *Ledger) AddDefinition(ctx context.Context, kind models.DefinitionKind, title string, peanuts int64) (models.Definition, error) {
	return l.createDefinition(ctx, models.Definition{
		Kind:    kind,
		Title:   title,
		Peanuts: peanuts,
		Custom:  true,
	})
}

// AddFromTemplate copies a curated template into the kid's cards
func (l *Ledger) AddFromTemplate(ctx context.Context, tpl catalog.Template) (models.Definition, error) {
	return l.createDefinition(ctx, models.Definition{
		Kind:        tpl.Kind,
		Title:       tpl.Title,
		Peanuts:     tpl.Peanuts,
		TemplateKey: tpl.Key,
	})
}

// updateDefinition reads a card inside an atomic unit and merges the fields change returns
func (l *Ledger) updateDefinition(ctx context.Context, op string, kind models.DefinitionKind, id string, change func(models.Definition) (storage.Fields, error)) (models.Definition, error) {
	if !kind.Valid() {
		return models.Definition{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !storage.ValidID(id) {
		return models.Definition{}, fmt.Errorf("%w: %s %q", ErrDefinitionNotFound, kind, id)
	}
	defPath := l.definitionPath(kind, id)

	var updated models.Definition
	err := l.run(ctx, op, []string{defPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		snap := reads[defPath]
		if !snap.Exists {
			return nil, fmt.Errorf("%w: %s %s", ErrDefinitionNotFound, kind, id)
		}
		var def models.Definition
		if err := snap.Decode(&def); err != nil {
			return nil, err
		}
		fields, err := change(def)
		if err != nil {
			return nil, err
		}
		merged := storage.Apply(snap.Data, storage.Merge(defPath, fields))
		if err := merged.Decode(&updated); err != nil {
			return nil, err
		}
		return []storage.Write{storage.Merge(defPath, fields)}, nil
	})
	if err != nil {
		return models.Definition{}, err
	}
	return updated, nil
}

// UpdateDefinition edits the title or value of a custom card. Past
// transactions keep the amounts they were recorded with.
func (l *Ledger) UpdateDefinition(ctx context.Context, kind models.DefinitionKind, id string, update DefinitionUpdate) (models.Definition, error) {
	return l.updateDefinition(ctx, "update_definition", kind, id, func(def models.Definition) (storage.Fields, error) {
		if !def.Custom {
			return nil, fmt.Errorf("%w: %s", ErrCuratedDefinition, def.Title)
		}
		title, peanuts := def.Title, def.Peanuts
		if update.Title != nil {
			title = strings.TrimSpace(*update.Title)
		}
		if update.Peanuts != nil {
			peanuts = *update.Peanuts
		}
		if err := validateDefinition(kind, title, peanuts); err != nil {
			return nil, err
		}
		return storage.Fields{"title": title, "peanuts": peanuts}, nil
	})
}

// SetActive deactivates (soft delete) or restores a card
func (l *Ledger) SetActive(ctx context.Context, kind models.DefinitionKind, id string, active bool) (models.Definition, error) {
	return l.updateDefinition(ctx, "set_active", kind, id, func(models.Definition) (storage.Fields, error) {
		return storage.Fields{"active": active}, nil
	})
}

// DeleteDefinition hard-deletes a custom card that was never completed or
// bought. Anything with history must be deactivated instead.
func (l *Ledger) DeleteDefinition(ctx context.Context, kind models.DefinitionKind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !storage.ValidID(id) {
		return fmt.Errorf("%w: %s %q", ErrDefinitionNotFound, kind, id)
	}
	defPath := l.definitionPath(kind, id)

	return l.run(ctx, "delete_definition", []string{defPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		snap := reads[defPath]
		if !snap.Exists {
			return nil, fmt.Errorf("%w: %s %s", ErrDefinitionNotFound, kind, id)
		}
		var def models.Definition
		if err := snap.Decode(&def); err != nil {
			return nil, err
		}
		if !def.Custom {
			return nil, fmt.Errorf("%w: %s", ErrCuratedDefinition, def.Title)
		}
		if len(def.Completions) > 0 {
			return nil, fmt.Errorf("%w: %s has %d entries", ErrDefinitionInUse, def.Title, len(def.Completions))
		}
		return []storage.Write{storage.Delete(defPath)}, nil
	})
}
