package onboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage/memory"
)

func TestNext(t *testing.T) {
	ready := KidCards{KidID: "a", Rules: 1, Chores: 2, Rewards: 1}
	tests := []struct {
		name  string
		state State
		want  Step
	}{
		{"nothing", State{}, StepLogin},
		{"pin without account", State{PINSet: true, Kids: []KidCards{ready}}, StepLogin},
		{"account only", State{AccountExists: true}, StepKidsProfile},
		{"no pin", State{AccountExists: true, Kids: []KidCards{ready}}, StepPINSetup},
		{"no cards", State{AccountExists: true, PINSet: true, Kids: []KidCards{{KidID: "a"}}}, StepCardsSetup},
		{"missing reward", State{AccountExists: true, PINSet: true, Kids: []KidCards{{KidID: "a", Rules: 1, Chores: 1}}}, StepCardsSetup},
		{"second kid not ready", State{AccountExists: true, PINSet: true, Kids: []KidCards{ready, {KidID: "b", Rules: 1}}}, StepCardsSetup},
		{"done", State{AccountExists: true, PINSet: true, Kids: []KidCards{ready}}, StepDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.state); got != tt.want {
				t.Errorf("Next() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHintCoversEveryStep(t *testing.T) {
	for _, step := range Steps {
		if Hint(step) == "" {
			t.Errorf("Hint(%s) is empty", step)
		}
	}
}

func TestGateFollowsData(t *testing.T) {
	ctx := context.Background()
	store := memory.New(t.Name())
	if err := store.Init(ctx); err != nil {
		t.Fatal(err)
	}
	f := family.New(store, "home")
	g := NewGate(f)

	expect := func(want Step) {
		t.Helper()
		got, err := g.Current(ctx)
		if err != nil {
			t.Fatalf("Current() error = %v", err)
		}
		if got != want {
			t.Fatalf("Current() = %s, want %s", got, want)
		}
	}

	expect(StepLogin)
	if err := g.Require(ctx); !errors.Is(err, ErrIncomplete) {
		t.Errorf("Require() error = %v, want ErrIncomplete", err)
	}

	_, _ = f.EnsureAccount(ctx, "Home")
	expect(StepKidsProfile)

	kid, err := f.CreateKid(ctx, "Mila")
	if err != nil {
		t.Fatal(err)
	}
	expect(StepPINSetup)

	if err := f.SetPIN(ctx, "2468"); err != nil {
		t.Fatal(err)
	}
	expect(StepCardsSetup)

	l := f.Ledger(kid.ID)
	_, _ = l.AddDefinition(ctx, models.KindRule, "Brush", 1)
	_, _ = l.AddDefinition(ctx, models.KindChore, "Dishes", 1)
	reward, _ := l.AddDefinition(ctx, models.KindReward, "Toy", 5)
	expect(StepDone)
	if err := g.Require(ctx); err != nil {
		t.Errorf("Require() error = %v", err)
	}

	// Deactivating the only reward sends the family back
	if _, err := l.SetActive(ctx, models.KindReward, reward.ID, false); err != nil {
		t.Fatal(err)
	}
	expect(StepCardsSetup)
}
