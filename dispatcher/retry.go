package dispatcher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Miles0sage/agentgate/ai"
	"github.com/Miles0sage/agentgate/core"
)

// callWithRetry runs one (agent, model) call under the spec's retry
// policy (base 1s, multiplier 2, cap 8s, ±10% jitter) using
// cenkalti/backoff/v5, wrapping each provider call in its own
// TimeoutPerAttempt. Non-retryable error kinds stop the loop immediately
// via backoff.Permanent.
// callWithRetry returns one core.CallAttempt per adapter.Generate
// invocation, not just the last — §8's "recorded attempts == 1 +
// sum_over_models(retries_used)" invariant requires every retry on
// this model to show up in the dispatcher's attempt log.
func (d *Dispatcher) callWithRetry(ctx context.Context, agent *core.Agent, model string, adapter ai.Adapter, messages []core.Message, timeout time.Duration, maxRetries int, opts Options) (string, int, int, []ai.ToolCall, []core.CallAttempt, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 2
	policy.MaxInterval = 8 * time.Second
	policy.RandomizationFactor = 0.1

	var attempts []core.CallAttempt

	operation := func() (ai.GenerateResult, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		result, err := adapter.Generate(attemptCtx, model, systemPromptFor(agent), messages, ai.GenerateOptions{Tools: agent.Tools})
		duration := time.Since(start)

		attempt := core.CallAttempt{
			AgentID:      agent.ID,
			Provider:     agent.Provider,
			Model:        model,
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			StartedAt:    start,
			Duration:     duration,
		}

		if err != nil {
			if attemptCtx.Err() != nil {
				err = core.NewGatewayError("dispatcher.callWithRetry", core.ErrKindTimeout, err)
			}
			attempt.Outcome = string(core.KindOf(err))
			attempt.ErrorDetail = err.Error()
			attempts = append(attempts, attempt)

			if isAbortKind(core.KindOf(err), opts.AbortOn) || !core.IsRetryable(err) {
				return ai.GenerateResult{}, backoff.Permanent(err)
			}
			return ai.GenerateResult{}, err
		}

		attempt.Outcome = "success"
		attempts = append(attempts, attempt)
		return result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(maxRetries+1)),
	)
	if err != nil {
		return "", 0, 0, nil, attempts, err
	}
	return result.Text, result.InputTokens, result.OutputTokens, result.ToolCalls, attempts, nil
}

func systemPromptFor(agent *core.Agent) string {
	return "You are " + agent.DisplayName + "."
}
