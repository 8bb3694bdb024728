// Package onboarding derives how far a family got through setup. Nothing
// is persisted: the step is recomputed from stored data on every call.
package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/logger"
)

type Step string

const (
	StepLogin       Step = "login"
	StepKidsProfile Step = "kidsProfile"
	StepPINSetup    Step = "pinSetup"
	StepCardsSetup  Step = "cardsSetup"
	StepDone        Step = "done"
)

var ErrIncomplete = errors.New("onboarding is not complete")

// Steps lists the onboarding steps in order
var Steps = []Step{StepLogin, StepKidsProfile, StepPINSetup, StepCardsSetup, StepDone}

// KidCards counts the active cards of one kid
type KidCards struct {
	KidID   string `json:"kid_id"`
	Name    string `json:"name"`
	Rules   int    `json:"rules"`
	Chores  int    `json:"chores"`
	Rewards int    `json:"rewards"`
}

// Ready reports whether the kid has at least one active card of each kind
func (k KidCards) Ready() bool {
	return k.Rules > 0 && k.Chores > 0 && k.Rewards > 0
}

// State is the data the gate looks at
type State struct {
	AccountExists bool       `json:"account_exists"`
	PINSet        bool       `json:"pin_set"`
	Kids          []KidCards `json:"kids"`
}

// Next returns the earliest step whose prerequisite is unmet
func Next(s State) Step {
	switch {
	case !s.AccountExists:
		return StepLogin
	case len(s.Kids) == 0:
		return StepKidsProfile
	case !s.PINSet:
		return StepPINSetup
	}
	for _, k := range s.Kids {
		if !k.Ready() {
			return StepCardsSetup
		}
	}
	return StepDone
}

// Hint describes what the guardian has to do to leave a step
func Hint(step Step) string {
	switch step {
	case StepLogin:
		return "create the family account with 'tipje init'"
	case StepKidsProfile:
		return "add a kid profile with 'tipje kid add'"
	case StepPINSetup:
		return "set the guardian PIN with 'tipje pin set'"
	case StepCardsSetup:
		return "give every kid at least one rule, chore and reward with 'tipje card pick' or 'tipje card add'"
	default:
		return "all set"
	}
}

// Gate reads the onboarding state from storage
type Gate struct {
	family *family.Family
}

func NewGate(f *family.Family) *Gate {
	return &Gate{family: f}
}

// State collects the current onboarding data
func (g *Gate) State(ctx context.Context) (State, error) {
	acct, err := g.family.Account(ctx)
	if errors.Is(err, family.ErrAccountNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	s := State{AccountExists: true, PINSet: acct.HasPIN()}

	kids, err := g.family.Kids(ctx)
	if err != nil {
		return State{}, err
	}
	for _, kid := range kids {
		l := g.family.Ledger(kid.ID)
		s.Kids = append(s.Kids, KidCards{
			KidID:   kid.ID,
			Name:    kid.Name,
			Rules:   len(l.AvailableRules(ctx)),
			Chores:  len(l.AvailableChores(ctx)),
			Rewards: len(l.AvailableRewards(ctx)),
		})
	}
	return s, nil
}

// Current returns the step the family is on
func (g *Gate) Current(ctx context.Context) (Step, error) {
	s, err := g.State(ctx)
	if err != nil {
		return "", err
	}
	step := Next(s)
	logger.Debug("Onboarding step derived", "step", step, "kids", len(s.Kids))
	return step, nil
}

// Require returns ErrIncomplete unless onboarding is done
func (g *Gate) Require(ctx context.Context) error {
	step, err := g.Current(ctx)
	if err != nil {
		return err
	}
	if step != StepDone {
		return fmt.Errorf("%w: next step is %s, %s", ErrIncomplete, step, Hint(step))
	}
	return nil
}
