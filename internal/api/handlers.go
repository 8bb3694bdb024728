package api

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/onboarding"
	"github.com/julianstephens/tipje/internal/validation"
)

type onboardingResponse struct {
	Step  onboarding.Step  `json:"step"`
	Hint  string           `json:"hint"`
	State onboarding.State `json:"state"`
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	state, err := s.gate.State(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	step := onboarding.Next(state)
	writeJSON(w, http.StatusOK, onboardingResponse{Step: step, Hint: onboarding.Hint(step), State: state})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	kinds := []models.DefinitionKind{models.KindRule, models.KindChore, models.KindReward}
	if q := r.URL.Query().Get("kind"); q != "" {
		kind, ok := models.ParseKind(q)
		if !ok {
			writeFailure(w, fmt.Errorf("%w: %q", ledger.ErrInvalidKind, q))
			return
		}
		kinds = []models.DefinitionKind{kind}
	}
	out := map[models.DefinitionKind]any{}
	for _, k := range kinds {
		out[k] = s.catalog.Templates(k)
	}
	writeJSON(w, http.StatusOK, out)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	acct, err := s.family.EnsureAccount(r.Context(), req.Name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	acct.PINHash = ""
	writeJSON(w, http.StatusOK, acct)
}

type pinRequest struct {
	PIN string `json:"pin"`
}

func (s *Server) handleSetPIN(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.family.SetPIN(r.Context(), req.PIN); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListKids(w http.ResponseWriter, r *http.Request) {
	kids, err := s.family.Kids(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kids)
}

func (s *Server) handleCreateKid(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	kid, err := s.family.CreateKid(r.Context(), req.Name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, kid)
}

func (s *Server) handleGetKid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, kidFrom(r))
}

func (s *Server) handleDeleteKid(w http.ResponseWriter, r *http.Request) {
	if err := s.family.DeleteKid(r.Context(), kidFrom(r).ID); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func kindParam(r *http.Request) (models.DefinitionKind, error) {
	raw := chi.URLParam(r, "kind")
	kind, ok := models.ParseKind(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ledger.ErrInvalidKind, raw)
	}
	return kind, nil
}

// handleListCards returns the active cards; ?all=true includes inactive ones
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	l := s.ledgerFor(r)
	if r.URL.Query().Get("all") == "true" {
		defs, err := l.Definitions(r.Context(), kind)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, defs)
		return
	}
	var defs []models.Definition
	switch kind {
	case models.KindRule:
		defs = l.AvailableRules(r.Context())
	case models.KindChore:
		defs = l.AvailableChores(r.Context())
	case models.KindReward:
		defs = l.AvailableRewards(r.Context())
	}
	if defs == nil {
		defs = []models.Definition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

type addCardRequest struct {
	Template string `json:"template,omitempty"`
	Title    string `json:"title,omitempty"`
	Peanuts  int64  `json:"peanuts,omitempty"`
}

func (s *Server) handleAddCard(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req addCardRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	l := s.ledgerFor(r)
	var def models.Definition
	if req.Template != "" {
		tpl, terr := s.catalog.Template(req.Template)
		if terr != nil {
			writeFailure(w, terr)
			return
		}
		if tpl.Kind != kind {
			writeFailure(w, fmt.Errorf("%w: template %s is a %s", ledger.ErrInvalidKind, tpl.Key, tpl.Kind))
			return
		}
		def, err = l.AddFromTemplate(r.Context(), tpl)
	} else {
		def, err = l.AddDefinition(r.Context(), kind, req.Title, req.Peanuts)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

type updateCardRequest struct {
	Title   *string `json:"title,omitempty"`
	Peanuts *int64  `json:"peanuts,omitempty"`
	Active  *bool   `json:"active,omitempty"`
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req updateCardRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	l := s.ledgerFor(r)
	id := chi.URLParam(r, "id")
	def, err := l.Definition(r.Context(), kind, id)
	if req.Title != nil || req.Peanuts != nil {
		def, err = l.UpdateDefinition(r.Context(), kind, id, ledger.DefinitionUpdate{Title: req.Title, Peanuts: req.Peanuts})
	}
	if err == nil && req.Active != nil {
		def, err = l.SetActive(r.Context(), kind, id, *req.Active)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.ledgerFor(r).DeleteDefinition(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	tx, err := s.ledgerFor(r).RecordCompletion(r.Context(), chi.URLParam(r, "id"), kind)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledgerFor(r).PurchaseReward(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleBasket(w http.ResponseWriter, r *http.Request) {
	entries := slices.Collect(s.ledgerFor(r).BasketEntries(r.Context()))
	if entries == nil {
		entries = []models.RewardPurchase{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := s.ledgerFor(r).Purchases(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}

func (s *Server) handleConfirmGiven(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledgerFor(r).ConfirmGiven(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemoveFromBasket(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledgerFor(r).RemoveFromBasket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledgerFor(r).Transactions(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type balanceRequest struct {
	Amount int64  `json:"amount,omitempty"`
	Note   string `json:"note,omitempty"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	tx, err := s.ledgerFor(r).ResetBalance(r.Context(), req.Note)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	tx, err := s.ledgerFor(r).AdjustBalance(r.Context(), req.Amount, req.Note)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledgerFor(r).Snapshot(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validation.New().ValidateSnapshot(snap))
}
