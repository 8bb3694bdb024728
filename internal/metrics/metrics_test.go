package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage"
	"github.com/julianstephens/tipje/internal/storage/memory"
)

var _ ledger.Observer = (*Recorder)(nil)

func TestObserveOperation(t *testing.T) {
	r := NewRecorder()
	r.ObserveOperation("purchase_reward", ledger.ResultOK, 3*time.Millisecond)
	r.ObserveOperation("purchase_reward", ledger.ResultRejected, time.Millisecond)
	r.ObserveOperation("purchase_reward", ledger.ResultOK, time.Millisecond)
	r.ObserveConflictRetry("purchase_reward")

	if got := testutil.ToFloat64(r.operations.WithLabelValues("purchase_reward", ledger.ResultOK)); got != 2 {
		t.Errorf("ok operations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("purchase_reward", ledger.ResultRejected)); got != 1 {
		t.Errorf("rejected operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.conflictRetries.WithLabelValues("purchase_reward")); got != 1 {
		t.Errorf("conflict retries = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestRecorderAsLedgerObserver(t *testing.T) {
	ctx := context.Background()
	store := memory.New(t.Name())
	if err := store.Init(ctx); err != nil {
		t.Fatal(err)
	}
	kid := models.Kid{ID: "k", Name: "Ada", Balance: 1}
	if err := store.Write(ctx, models.KidPath("a", "k"), storage.MustEncode(kid), false); err != nil {
		t.Fatal(err)
	}

	r := NewRecorder()
	l := ledger.New(store, "a", "k", ledger.WithObserver(r))
	if _, err := l.AdjustBalance(ctx, 2, "gift"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.PurchaseReward(ctx, "missing"); err == nil {
		t.Fatal("expected purchase of missing reward to fail")
	}

	if got := testutil.ToFloat64(r.operations.WithLabelValues("adjust_balance", ledger.ResultOK)); got != 1 {
		t.Errorf("adjust_balance ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("purchase_reward", ledger.ResultRejected)); got != 1 {
		t.Errorf("purchase_reward rejected = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.ObserveRequest(http.MethodGet, "/api/kids", http.StatusOK)
	r.ObserveOperation("record_completion", ledger.ResultOK, time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`tipje_ledger_operations_total{operation="record_completion",result="ok"} 1`,
		`tipje_http_requests_total{method="GET",route="/api/kids",status="200"} 1`,
		"tipje_ledger_operation_duration_seconds_bucket",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
