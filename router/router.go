package router

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Miles0sage/agentgate/core"
)

// intentVocabulary is the closed keyword list for one of the four
// classified intents (spec.md §4.1). Order of evaluation is the
// tie-break order named in the spec: security, development, database,
// planning, else general.
var intentVocabulary = []struct {
	intent   core.Intent
	keywords []string
}{
	{core.IntentSecurity, []string{"vulnerability", "exploit", "cve", "auth", "injection", "xss", "secret", "encrypt", "owasp", "pentest", "security"}},
	{core.IntentDevelopment, []string{"function", "refactor", "bug", "implement", "compile", "test", "code", "api", "class", "package"}},
	{core.IntentDatabase, []string{"query", "schema", "index", "migration", "sql", "table", "join", "transaction", "database"}},
	{core.IntentPlanning, []string{"plan", "roadmap", "milestone", "estimate", "breakdown", "task", "design", "architecture"}},
}

// SessionContext is the read-only slice of prior turns the router may
// consult but never mutates.
type SessionContext struct {
	LastMessages []core.Message
}

// RouterStats is the Stats() operation's return shape (spec.md §4.1).
type RouterStats struct {
	Cache            CacheStats
	RoutedByAgent    map[string]uint64
	EstimatedCostUSD float64
}

// Router is the Agent Router (spec.md §4.1).
type Router struct {
	mu     sync.RWMutex
	agents []*core.Agent
	byID   map[string]*core.Agent

	defaultAgentID string
	cache          *DecisionCache
	cacheTTL       time.Duration

	semanticEnabled atomic.Bool
	embed           EmbeddingFunc

	logger    core.Logger
	telemetry core.Telemetry

	routedByAgent map[string]uint64
	estimatedCost float64
}

// EmbeddingFunc maps a string to a fixed-dimension, unit-normalized
// vector. The spec treats the embedding model as a black box; any
// function satisfying that contract may be supplied via WithEmbedder.
type EmbeddingFunc func(text string) []float64

// Option configures a Router.
type Option func(*Router)

func WithLogger(l core.Logger) Option       { return func(r *Router) { r.logger = l } }
func WithTelemetry(t core.Telemetry) Option { return func(r *Router) { r.telemetry = t } }
func WithCacheTTL(ttl time.Duration) Option { return func(r *Router) { r.cacheTTL = ttl } }
func WithEmbedder(fn EmbeddingFunc) Option  { return func(r *Router) { r.embed = fn } }

// New builds a Router over a configured agent set.
func New(agents []*core.Agent, defaultAgentID string, opts ...Option) *Router {
	r := &Router{
		agents:         agents,
		byID:           make(map[string]*core.Agent, len(agents)),
		defaultAgentID: defaultAgentID,
		cacheTTL:       300 * time.Second,
		logger:         core.NoOpLogger{},
		telemetry:      core.NoOpTelemetry{},
		routedByAgent:  make(map[string]uint64),
	}
	for _, a := range agents {
		r.byID[a.ID] = a
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = NewDecisionCache(1000, time.Minute)
	return r
}

// EnableSemantic activates the embedding-based scorer. It is a one-way
// transition (spec.md §4.1 state machine); calling it again is a no-op
// that returns true as long as an embedder was supplied.
func (r *Router) EnableSemantic() bool {
	if r.embed == nil {
		r.logger.Warn("semantic routing requested but no embedder configured", nil)
		return false
	}
	r.semanticEnabled.Store(true)
	return true
}

// ClearCache drops every cached routing decision.
func (r *Router) ClearCache() {
	r.cache.Clear()
}

// Stats returns cache and per-agent routing counters.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byAgent := make(map[string]uint64, len(r.routedByAgent))
	for k, v := range r.routedByAgent {
		byAgent[k] = v
	}
	return RouterStats{
		Cache:            r.cache.Stats(),
		RoutedByAgent:    byAgent,
		EstimatedCostUSD: r.estimatedCost,
	}
}

// Select is the router's main entry point (spec.md §4.1). It never fails
// to select: absent a score above the minimum threshold, it falls back
// to the configured default agent.
func (r *Router) Select(ctx context.Context, query string, session *SessionContext, agentHint string) core.RoutingDecision {
	ctx, span := r.telemetry.StartSpan(ctx, "router.Select")
	defer span.End()

	if agentHint != "" {
		if _, ok := r.byID[agentHint]; ok {
			decision := core.RoutingDecision{
				AgentID:    agentHint,
				Confidence: 1.0,
				Rationale:  "caller-supplied agent hint",
				ComputedAt: time.Now().UTC(),
			}
			r.record(decision)
			return decision
		}
	}

	normalized := normalizeQuery(query)
	if cached, ok := r.cache.Get(normalized); ok {
		return cached
	}

	decision := r.score(normalized, query)
	r.cache.Set(normalized, decision, r.cacheTTL)
	r.record(decision)
	return decision
}

func (r *Router) record(d core.RoutingDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routedByAgent[d.AgentID]++
	if agent, ok := r.byID[d.AgentID]; ok {
		r.estimatedCost += agent.CostPerInputToken * 0.001
	}
}

func (r *Router) score(normalized, rawQuery string) core.RoutingDecision {
	tokens := strings.Fields(normalized)
	intent, matchCount := classifyIntent(tokens)
	semanticOn := r.semanticEnabled.Load()

	var queryEmbedding []float64
	if semanticOn {
		queryEmbedding = r.embed(rawQuery)
	}

	type scored struct {
		agent      *core.Agent
		keyword    float64
		semantic   float64
		cost       float64
		matched    []string
		final      float64
	}

	costs := make([]float64, 0, len(r.agents))
	for _, a := range r.agents {
		costs = append(costs, a.CostPerInputToken)
	}
	minCost, maxCost := minMax(costs)

	simpleQuery := len(tokens) <= 2

	results := make([]scored, 0, len(r.agents))
	for _, a := range r.agents {
		kw, matched := keywordScore(tokens, a, intent)
		var sem float64
		if semanticOn {
			sem = cosineMax(queryEmbedding, a, r.embed)
		}
		costScore := 1.0
		if maxCost > minCost {
			costScore = 1 - (a.CostPerInputToken-minCost)/(maxCost-minCost)
		}

		var final float64
		if semanticOn {
			final = 0.60*kw + 0.25*sem + 0.15*costScore
		} else {
			final = 0.85*kw + 0.15*costScore
		}
		if simpleQuery {
			// simple queries weight cost more aggressively
			final = final*0.7 + costScore*0.3
		}

		results = append(results, scored{a, kw, sem, costScore, matched, final})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].final != results[j].final {
			return results[i].final > results[j].final
		}
		if results[i].cost != results[j].cost {
			return results[i].cost > results[j].cost
		}
		return results[i].agent.ID < results[j].agent.ID
	})

	if len(results) == 0 || results[0].final < 0.1 {
		return core.RoutingDecision{
			AgentID:    r.defaultAgentID,
			Confidence: 0,
			Intent:     intent,
			Rationale:  "no agent scored above the minimum threshold; falling back to default agent",
			ComputedAt: time.Now().UTC(),
		}
	}

	best := results[0]
	_ = matchCount
	return core.RoutingDecision{
		AgentID:         best.agent.ID,
		Confidence:      best.final,
		Intent:          intent,
		MatchedKeywords: best.matched,
		CostScore:       best.cost,
		SemanticScore:   best.semantic,
		Rationale:       rationaleFor(best.agent.ID, intent, best.matched, semanticOn),
		ComputedAt:      time.Now().UTC(),
	}
}

func classifyIntent(tokens []string) (core.Intent, int) {
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}
	best := core.IntentGeneral
	bestCount := 0
	for _, vocab := range intentVocabulary {
		count := 0
		for _, kw := range vocab.keywords {
			if tokenSet[kw] {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = vocab.intent
		}
	}
	return best, bestCount
}

func keywordScore(tokens []string, agent *core.Agent, intent core.Intent) (float64, []string) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tagSet := make(map[string]bool, len(agent.SkillTags))
	for _, tag := range agent.SkillTags {
		tagSet[strings.ToLower(tag)] = true
	}
	var vocab []string
	for _, v := range intentVocabulary {
		if v.intent == intent {
			vocab = v.keywords
			break
		}
	}
	vocabSet := make(map[string]bool, len(vocab))
	for _, kw := range vocab {
		vocabSet[kw] = true
	}

	matched := make([]string, 0)
	hits := 0
	for _, tok := range tokens {
		if tagSet[tok] || vocabSet[tok] {
			hits++
			matched = append(matched, tok)
		}
	}
	score := float64(hits) / float64(len(tokens))
	if score > 1 {
		score = 1
	}
	if affinity, ok := agent.IntentAffinities[intent]; ok {
		score = score*0.7 + affinity*0.3
	}
	return score, matched
}

func cosineMax(queryEmbedding []float64, agent *core.Agent, embed EmbeddingFunc) float64 {
	if len(queryEmbedding) == 0 {
		return 0
	}
	best := 0.0
	phrases := agent.SkillTags
	if len(phrases) == 0 {
		phrases = []string{agent.DisplayName}
	}
	for _, phrase := range phrases {
		v := embed(phrase)
		sim := cosine(queryEmbedding, v)
		if sim > best {
			best = sim
		}
	}
	return best
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func rationaleFor(agentID string, intent core.Intent, matched []string, semanticOn bool) string {
	var b strings.Builder
	b.WriteString("selected ")
	b.WriteString(agentID)
	b.WriteString(" for intent ")
	b.WriteString(string(intent))
	if len(matched) > 0 {
		b.WriteString(" on keywords [")
		b.WriteString(strings.Join(matched, ", "))
		b.WriteString("]")
	}
	if semanticOn {
		b.WriteString(" with semantic scoring enabled")
	}
	return b.String()
}
