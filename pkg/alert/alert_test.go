package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/config"
	"github.com/netwatch-hq/netwatch/pkg/model"
)

func snapshotWithDownSource() *model.NetworkSnapshot {
	return &model.NetworkSnapshot{
		ID:        "snap-1",
		Timestamp: time.Unix(0, 0),
		SourceHealth: map[string]model.SourceHealth{
			"hub": {Available: false, Error: "dial timeout"},
		},
	}
}

func newTestRouter(t *testing.T, webhookURL string) *Router {
	t.Helper()
	r := New(zerolog.Nop(), config.AlertConfig{WebhookURL: webhookURL}, nil)
	return r
}

func TestRouteFiresOnceThenRespectsCooldown(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRouter(t, srv.URL)
	snap := snapshotWithDownSource()
	now := time.Unix(1000, 0)

	fired := r.Route(context.Background(), snap, now)
	if len(fired) != 1 {
		t.Fatalf("expected 1 alert fired, got %d", len(fired))
	}
	if posts != 1 {
		t.Fatalf("expected 1 webhook POST, got %d", posts)
	}

	fired = r.Route(context.Background(), snap, now.Add(time.Minute))
	if len(fired) != 0 {
		t.Fatalf("expected cooldown to suppress the repeat, got %d alerts", len(fired))
	}
	if posts != 1 {
		t.Fatalf("expected no additional POST during cooldown, got %d", posts)
	}

	fired = r.Route(context.Background(), snap, now.Add(defaultCooldown+time.Second))
	if len(fired) != 1 {
		t.Fatalf("expected the alert to re-fire after cooldown, got %d", len(fired))
	}
}

func TestConfigureRaisesSeverityThreshold(t *testing.T) {
	r := newTestRouter(t, "")
	r.Configure(Threshold{MinSeverity: model.SeverityCritical, Cooldown: time.Minute})

	snap := snapshotWithDownSource() // derives a warning, not a critical
	fired := r.Route(context.Background(), snap, time.Unix(0, 0))
	if len(fired) != 0 {
		t.Fatalf("expected the warning-level problem to be below the critical threshold, got %d", len(fired))
	}
}

func TestHistoryFiltersByWindow(t *testing.T) {
	r := newTestRouter(t, "")
	snap := snapshotWithDownSource()
	now := time.Unix(10000, 0)
	r.Route(context.Background(), snap, now)

	recent := r.History(time.Hour, now.Add(time.Minute))
	if len(recent) != 1 {
		t.Fatalf("expected 1 record within the window, got %d", len(recent))
	}

	stale := r.History(time.Hour, now.Add(2*time.Hour))
	if len(stale) != 0 {
		t.Fatalf("expected the record to fall outside an older window, got %d", len(stale))
	}
}
