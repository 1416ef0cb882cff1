// Package recommend implements RecommendationEngine: rule-pack-based
// Suggestion generation, deduplication, ranking, and single-use
// confirmation tokens.
package recommend

import (
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
	"github.com/netwatch-hq/netwatch/pkg/spectrum"
)

// Target names a recommendation goal. Callers pass a subset; each maps to
// an independent rule pack.
type Target string

const (
	TargetMinimiseInterference  Target = "minimiseInterference"
	TargetProtectZigbee         Target = "protectZigbee"
	TargetReduceNeighborOverlap Target = "reduceNeighborOverlap"
	TargetMaximiseThroughput    Target = "maximiseThroughput"
	TargetImproveRoaming        Target = "improveRoaming"
	TargetBalanceCoverage       Target = "balanceCoverage"
)

// Input bundles everything a rule pack needs: the snapshot, per-band
// channel scans, and the optional Zigbee network.
type Input struct {
	Snapshot     *model.NetworkSnapshot
	ChannelScans map[model.Band]map[int]spectrum.ChannelScan
	Zigbee       *model.ZigbeeNetwork
}

// rulePack produces zero or more candidate suggestions (without tokens;
// tokens are assigned once, after dedup/ranking, by the Engine).
type rulePack func(in Input) []model.Suggestion

// Engine runs rule packs per target, dedups, ranks and tokenises results,
// and tracks pending suggestions for the apply/confirm flow.
type Engine struct {
	mu      sync.Mutex
	pending map[string]model.Suggestion // token -> suggestion

	rulePacks map[Target]rulePack
}

// New builds an Engine with the documented rule packs wired to their
// targets.
func New() *Engine {
	e := &Engine{pending: make(map[string]model.Suggestion)}
	e.rulePacks = map[Target]rulePack{
		TargetMinimiseInterference:  channelChangeRule,
		TargetReduceNeighborOverlap: channelChangeRule,
		TargetProtectZigbee:         zigbeeProtectionRule,
		TargetMaximiseThroughput:    featureEnableRule,
		TargetImproveRoaming:        wiredBackhaulRule,
		TargetBalanceCoverage:       apModeCleanupRule,
	}
	return e
}

// Generate runs every requested target's rule pack, deduplicates by
// (actionType, parameters), ranks by (priority desc, confidence desc), and
// assigns each surviving suggestion a fresh token bound to in.Snapshot.ID.
// Publishing a new suggestion set invalidates all previously pending
// tokens: a suggestion minted against an older snapshot is never
// honoured once a newer one replaces it.
func (e *Engine) Generate(in Input, targets []Target) []model.Suggestion {
	var all []model.Suggestion
	for _, t := range targets {
		pack, ok := e.rulePacks[t]
		if !ok {
			continue
		}
		all = append(all, pack(in)...)
	}

	deduped := dedup(all)
	rank(deduped)

	e.mu.Lock()
	e.pending = make(map[string]model.Suggestion, len(deduped))
	for i := range deduped {
		deduped[i].Token = uuid.NewString()
		deduped[i].SnapshotID = in.Snapshot.ID
		e.pending[deduped[i].Token] = deduped[i]
	}
	e.mu.Unlock()

	return deduped
}

type dedupKey struct {
	actionType string
	paramsKey  string
}

func dedup(suggestions []model.Suggestion) []model.Suggestion {
	seen := make(map[dedupKey]bool)
	var out []model.Suggestion
	for _, s := range suggestions {
		key := dedupKey{actionType: s.ActionType, paramsKey: paramsFingerprint(s.Parameters)}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func paramsFingerprint(params map[string]any) string {
	// A stable-enough fingerprint for dedup purposes: parameters are small,
	// flat maps of primitives in every rule pack below.
	fp := ""
	for _, k := range sortedKeys(params) {
		fp += k + "=" + toString(params[k]) + ";"
	}
	return fp
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.Itoa(int(t))
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func rank(suggestions []model.Suggestion) {
	for i := 1; i < len(suggestions); i++ {
		for j := i; j > 0 && less(suggestions[j], suggestions[j-1]); j-- {
			suggestions[j], suggestions[j-1] = suggestions[j-1], suggestions[j]
		}
	}
}

// less reports whether a ranks ABOVE b: higher priority first, then higher
// confidence.
func less(a, b model.Suggestion) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Confidence > b.Confidence
}

// Lookup returns a pending suggestion by token.
func (e *Engine) Lookup(token string) (model.Suggestion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.pending[token]
	if !ok {
		return model.Suggestion{}, neterrors.New(neterrors.KindUnknownSuggestion, "unknown or stale suggestion token")
	}
	return s, nil
}

// Consume removes token from the pending set (applied or explicitly
// cleared).
func (e *Engine) Consume(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, token)
}

// Clear discards every pending suggestion (e.g. on a fresh scan that hasn't
// yet called Generate).
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = make(map[string]model.Suggestion)
}
