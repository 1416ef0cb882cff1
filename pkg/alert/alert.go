// Package alert implements AlertRouter: it matches Problems derived from a
// snapshot against severity thresholds, applies a per-key cooldown so a
// standing condition doesn't re-fire on every scan, and emits the surviving
// alerts as a webhook POST and, optionally, an MQTT broker publish.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/netwatch-hq/netwatch/pkg/config"
	"github.com/netwatch-hq/netwatch/pkg/metrics"
	"github.com/netwatch-hq/netwatch/pkg/model"
)

const defaultCooldown = 15 * time.Minute

// Alert is the wire object POSTed to the webhook and published to the
// broker topic.
type Alert struct {
	Key        string                `json:"key"`
	Severity   model.ProblemSeverity `json:"severity"`
	Summary    string                `json:"summary"`
	DeviceAddr string                `json:"deviceAddr,omitempty"`
	NodeAddr   string                `json:"nodeAddr,omitempty"`
	SnapshotID string                `json:"snapshotId"`
	FiredAt    time.Time             `json:"firedAt"`
}

// Record is a stored firing, kept for getAlerts(hours).
type Record struct {
	Alert
	Delivered bool `json:"delivered"`
}

// publisher is the narrow broker surface AlertRouter needs; satisfied by
// mqtt.Client (paho's client interface) and by fakes in tests.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// httpDoer is the narrow HTTP surface AlertRouter needs for the webhook;
// satisfied by *http.Client and by fakes in tests.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Threshold sets the minimum severity that reaches the outbound channels.
type Threshold struct {
	MinSeverity model.ProblemSeverity
	Cooldown    time.Duration
}

// Router matches derived problems against a severity threshold with a
// per-key cooldown and fans the survivors out to the configured channels.
type Router struct {
	log zerolog.Logger

	threshold Threshold
	webhook   string
	client    httpDoer

	brokerTopic string
	broker      publisher

	mu       sync.Mutex
	lastFire map[string]time.Time
	history  []Record
}

// New builds a Router from cfg. broker may be nil when no broker is
// configured.
func New(log zerolog.Logger, cfg config.AlertConfig, broker publisher) *Router {
	return &Router{
		log:         log.With().Str("component", "alert").Logger(),
		threshold:   Threshold{MinSeverity: model.SeverityWarning, Cooldown: defaultCooldown},
		webhook:     cfg.WebhookURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		brokerTopic: cfg.BrokerTopic,
		broker:      broker,
		lastFire:    make(map[string]time.Time),
	}
}

// Configure updates the severity threshold and cooldown; it's the backing
// store for the configureAlerts action.
func (r *Router) Configure(t Threshold) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.MinSeverity != "" {
		r.threshold.MinSeverity = t.MinSeverity
	}
	if t.Cooldown > 0 {
		r.threshold.Cooldown = t.Cooldown
	}
}

// Route evaluates every problem derived from snap, fires the ones that
// clear the severity threshold and aren't in cooldown, and returns the
// alerts it actually dispatched.
func (r *Router) Route(ctx context.Context, snap *model.NetworkSnapshot, now time.Time) []Alert {
	problems := model.DeriveProblems(snap)
	var fired []Alert

	r.mu.Lock()
	var due []model.Problem
	for _, p := range problems {
		if !severityMeets(p.Severity, r.threshold.MinSeverity) {
			continue
		}
		if last, ok := r.lastFire[p.Key]; ok && now.Sub(last) < r.threshold.Cooldown {
			continue
		}
		r.lastFire[p.Key] = now
		due = append(due, p)
	}
	r.mu.Unlock()

	for _, p := range due {
		a := Alert{
			Key:        p.Key,
			Severity:   p.Severity,
			Summary:    p.Summary,
			DeviceAddr: p.DeviceAddr,
			NodeAddr:   p.NodeAddr,
			SnapshotID: p.SnapshotID,
			FiredAt:    now,
		}
		delivered := r.dispatch(ctx, a)
		r.mu.Lock()
		r.history = append(r.history, Record{Alert: a, Delivered: delivered})
		r.mu.Unlock()
		fired = append(fired, a)
	}
	return fired
}

func severityMeets(got, min model.ProblemSeverity) bool {
	rank := map[model.ProblemSeverity]int{
		model.SeverityInfo:     0,
		model.SeverityWarning:  1,
		model.SeverityCritical: 2,
	}
	return rank[got] >= rank[min]
}

func (r *Router) dispatch(ctx context.Context, a Alert) bool {
	ok := true
	if r.webhook != "" {
		if err := r.postWebhook(ctx, a); err != nil {
			r.log.Warn().Err(err).Str("key", a.Key).Msg("webhook delivery failed")
			metrics.AlertsSentTotal.WithLabelValues("webhook", "error").Inc()
			ok = false
		} else {
			metrics.AlertsSentTotal.WithLabelValues("webhook", "success").Inc()
		}
	}
	if r.broker != nil && r.brokerTopic != "" {
		payload, err := json.Marshal(a)
		if err != nil {
			r.log.Warn().Err(err).Msg("encode alert for broker publish")
			ok = false
		} else {
			token := r.broker.Publish(r.brokerTopic, 0, false, payload)
			token.Wait()
			if err := token.Error(); err != nil {
				r.log.Warn().Err(err).Str("key", a.Key).Msg("broker publish failed")
				metrics.AlertsSentTotal.WithLabelValues("broker", "error").Inc()
				ok = false
			} else {
				metrics.AlertsSentTotal.WithLabelValues("broker", "success").Inc()
			}
		}
	}
	return ok
}

func (r *Router) postWebhook(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// History returns every alert fired within the last since, newest-last.
func (r *Router) History(since time.Duration, now time.Time) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-since)
	var out []Record
	for _, rec := range r.history {
		if rec.FiredAt.After(cutoff) || rec.FiredAt.Equal(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}
