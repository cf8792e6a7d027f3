// Package cost implements the Cost & Quota Enforcer (spec.md §4.3): three
// budget tiers (per-task, per-day, per-month) gated atomically per
// project, backed by an append-only JSONL cost ledger following the
// teacher's attempt-log convention.
package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Miles0sage/agentgate/core"
)

// Decision is CheckBudget's verdict.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionWarning  Decision = "warning"
	DecisionRejected Decision = "rejected"
)

// Tier identifies one of the three budget gates.
type Tier string

const (
	TierTask  Tier = "task"
	TierDay   Tier = "day"
	TierMonth Tier = "month"
)

// TierLimits is one tier's hard limit and warning threshold, both USD.
type TierLimits struct {
	LimitUSD float64
	WarnUSD  float64
}

// BudgetResult is CheckBudget's return value.
type BudgetResult struct {
	Decision     Decision
	Tier         Tier
	Reason       string
	RemainingUSD float64
}

// CostEvent is one RecordCost entry, also the ledger's on-disk shape.
type CostEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Project      string    `json:"project"`
	AgentID      string    `json:"agent_id"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// WarningNotifier is the caller-injected async side-channel that fires
// when a budget check returns "warning" without blocking the call.
type WarningNotifier func(project string, tier Tier, remaining float64)

// projectState tracks one project's rolling totals across the three tiers.
type projectState struct {
	mu       sync.Mutex
	dayKey   string
	day      float64
	monthKey string
	month    float64
}

// Enforcer implements the Cost & Quota Enforcer.
type Enforcer struct {
	mu       sync.Mutex
	projects map[string]*projectState
	tiers    map[string]map[Tier]TierLimits // per-project override; "" = default

	ledgerPath string
	ledgerMu   sync.Mutex

	rateByAgent map[string]tokenRates

	notify WarningNotifier
	logger core.Logger
}

type tokenRates struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// Option configures an Enforcer.
type Option func(*Enforcer)

func WithLedgerPath(path string) Option        { return func(e *Enforcer) { e.ledgerPath = path } }
func WithNotifier(fn WarningNotifier) Option    { return func(e *Enforcer) { e.notify = fn } }
func WithEnforcerLogger(l core.Logger) Option   { return func(e *Enforcer) { e.logger = l } }
func WithProjectTiers(project string, tiers map[Tier]TierLimits) Option {
	return func(e *Enforcer) { e.tiers[project] = tiers }
}

// New builds an Enforcer. defaultTiers applies to any project without an
// explicit WithProjectTiers override.
func New(agents []*core.Agent, defaultTiers map[Tier]TierLimits, opts ...Option) *Enforcer {
	e := &Enforcer{
		projects:    make(map[string]*projectState),
		tiers:       map[string]map[Tier]TierLimits{"": defaultTiers},
		rateByAgent: make(map[string]tokenRates),
		logger:      core.NoOpLogger{},
	}
	for _, a := range agents {
		e.rateByAgent[a.ID] = tokenRates{inputPerMillion: a.CostPerInputToken, outputPerMillion: a.CostPerOutputToken}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Enforcer) limitsFor(project string) map[Tier]TierLimits {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tiers[project]; ok {
		return t
	}
	return e.tiers[""]
}

func (e *Enforcer) stateFor(project string) *projectState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.projects[project]
	if !ok {
		st = &projectState{}
		e.projects[project] = st
	}
	return st
}

// estimateCost projects a USD cost from token counts and an agent's rates.
func (e *Enforcer) estimateCost(agentID string, inputTokens, outputTokens int) float64 {
	rates := e.rateByAgent[agentID]
	return (float64(inputTokens)*rates.inputPerMillion + float64(outputTokens)*rates.outputPerMillion) / 1_000_000
}

// CheckBudget is the synchronous pre-dispatch gate (spec.md §4.3).
// Locking the project's state for the whole check keeps CheckBudget
// atomic with respect to concurrent RecordCost calls on the same project.
func (e *Enforcer) CheckBudget(ctx context.Context, project, agentID, model string, estInputTokens, estOutputTokens int) (BudgetResult, error) {
	st := e.stateFor(project)
	st.mu.Lock()
	defer st.mu.Unlock()

	e.rollPeriodsLocked(st)

	estCost := e.estimateCost(agentID, estInputTokens, estOutputTokens)
	limits := e.limitsFor(project)

	checks := []struct {
		tier    Tier
		current float64
	}{
		{TierTask, estCost},
		{TierDay, st.day + estCost},
		{TierMonth, st.month + estCost},
	}

	worstWarning := BudgetResult{}
	haveWarning := false

	for _, c := range checks {
		limit, ok := limits[c.tier]
		if !ok {
			continue
		}
		if c.current > limit.LimitUSD {
			remaining := limit.LimitUSD - (c.current - estCost)
			if remaining < 0 {
				remaining = 0
			}
			return BudgetResult{
				Decision:     DecisionRejected,
				Tier:         c.tier,
				Reason:       fmt.Sprintf("%s budget of $%.2f would be exceeded (at $%.2f)", c.tier, limit.LimitUSD, c.current),
				RemainingUSD: remaining,
			}, core.NewGatewayError("cost.CheckBudget", core.ErrKindBudgetExceeded, nil)
		}
		if c.current > limit.WarnUSD && !haveWarning {
			haveWarning = true
			worstWarning = BudgetResult{
				Decision:     DecisionWarning,
				Tier:         c.tier,
				Reason:       fmt.Sprintf("%s spend $%.2f is above the warning threshold of $%.2f", c.tier, c.current, limit.WarnUSD),
				RemainingUSD: limit.LimitUSD - c.current,
			}
		}
	}

	if haveWarning {
		if e.notify != nil {
			go e.notify(project, worstWarning.Tier, worstWarning.RemainingUSD)
		}
		return worstWarning, nil
	}

	return BudgetResult{Decision: DecisionApproved}, nil
}

// RecordCost appends a CostEvent and updates the project's rolling
// totals (spec.md §4.3).
func (e *Enforcer) RecordCost(ctx context.Context, project, agentID, model string, inputTokens, outputTokens int) (float64, error) {
	cost := e.estimateCost(agentID, inputTokens, outputTokens)

	st := e.stateFor(project)
	st.mu.Lock()
	e.rollPeriodsLocked(st)
	st.day += cost
	st.month += cost
	st.mu.Unlock()

	event := CostEvent{
		Timestamp: time.Now().UTC(), Project: project, AgentID: agentID, Model: model,
		InputTokens: inputTokens, OutputTokens: outputTokens, CostUSD: cost,
	}
	if err := e.appendLedger(event); err != nil {
		e.logger.Error("failed to append cost ledger entry", map[string]interface{}{"error": err.Error()})
		return cost, err
	}
	return cost, nil
}

// rollPeriodsLocked resets the day/month counters when the UTC calendar
// boundary has passed. Callers must hold st.mu.
func (e *Enforcer) rollPeriodsLocked(st *projectState) {
	now := time.Now().UTC()
	dayKey := now.Format("2006-01-02")
	monthKey := now.Format("2006-01")
	if st.dayKey != dayKey {
		st.dayKey = dayKey
		st.day = 0
	}
	if st.monthKey != monthKey {
		st.monthKey = monthKey
		st.month = 0
	}
}

func (e *Enforcer) appendLedger(event CostEvent) error {
	if e.ledgerPath == "" {
		return nil
	}
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()

	f, err := os.OpenFile(e.ledgerPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cost: open ledger: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("cost: marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("cost: write ledger entry: %w", err)
	}
	return nil
}

// SummaryFilter narrows Summary's aggregation.
type SummaryFilter struct {
	Project string
	Agent   string
	Model   string
	Since   time.Time
}

// Summary reports rolling totals by project, model, and agent for
// ledger entries matching filter (spec.md §4.3).
func (e *Enforcer) Summary(filter SummaryFilter) (map[string]float64, error) {
	totals := map[string]float64{"by_project": 0, "by_agent": 0, "by_model": 0}
	if e.ledgerPath == "" {
		return totals, nil
	}

	f, err := os.Open(e.ledgerPath)
	if os.IsNotExist(err) {
		return totals, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cost: open ledger: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	byProject := map[string]float64{}
	byAgent := map[string]float64{}
	byModel := map[string]float64{}
	for {
		var event CostEvent
		if err := dec.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("cost: decode ledger: %w", err)
		}
		if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
			continue
		}
		if filter.Project != "" && event.Project != filter.Project {
			continue
		}
		if filter.Agent != "" && event.AgentID != filter.Agent {
			continue
		}
		if filter.Model != "" && event.Model != filter.Model {
			continue
		}
		byProject[event.Project] += event.CostUSD
		byAgent[event.AgentID] += event.CostUSD
		byModel[event.Model] += event.CostUSD
	}

	result := make(map[string]float64, len(byProject)+len(byAgent)+len(byModel))
	for k, v := range byProject {
		result["project:"+k] = v
	}
	for k, v := range byAgent {
		result["agent:"+k] = v
	}
	for k, v := range byModel {
		result["model:"+k] = v
	}
	return result, nil
}
