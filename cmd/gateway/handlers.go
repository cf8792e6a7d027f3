package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/cost"
	"github.com/Miles0sage/agentgate/dispatcher"
	"github.com/Miles0sage/agentgate/orchestrator"
	"github.com/Miles0sage/agentgate/router"
	"github.com/Miles0sage/agentgate/session"
)

// server holds the wired subsystems an HTTP handler needs. It has no
// state of its own beyond what each subsystem already owns.
type server struct {
	logger       core.Logger
	router       *router.Router
	dispatcher   *dispatcher.Dispatcher
	cost         *cost.Enforcer
	sessionStore *session.Store
	orchestrator *orchestrator.Orchestrator
}

const maxContentBytes = 64 * 1024

// handleChat implements the Request/Response cycle of spec.md §6: content
// validation, quota preflight, routing, dispatch, session append.
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContentBytes+4096)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Content == "" || len(req.Content) > maxContentBytes {
		writeJSONError(w, http.StatusBadRequest, "content must be non-empty and at most 64 KiB")
		return
	}
	if req.ProjectID == "" {
		req.ProjectID = "default"
	}

	resp, err := s.runChatTurn(r.Context(), req)
	if err != nil {
		s.logger.ErrorWithContext(r.Context(), "chat turn failed", map[string]interface{}{"agent_id": req.AgentID, "error": err.Error()})
		writeJSONError(w, statusForKind(core.KindOf(err)), "upstream call failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type orchestrateRequest struct {
	Request   string               `json:"request"`
	ProjectID string               `json:"project_id"`
	PlanID    string               `json:"plan_id"`
	Tasks     []*orchestrator.Task `json:"tasks"`
}

// handleOrchestrate runs a caller-supplied task plan through the
// Parallel Task Orchestrator (spec.md §4.4). Plan construction (turning
// a request into a task DAG) is out of scope for the core; callers
// submit the plan directly.
func (s *server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req orchestrateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContentBytes*4)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	planID := req.PlanID
	if planID == "" {
		planID = uuid.New().String()
	}
	plan := orchestrator.ExecutionPlan{ID: planID, Tasks: req.Tasks}
	result, err := s.orchestrator.Execute(r.Context(), plan, req.Request)
	if err != nil {
		writeJSONError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// taskDispatcherFunc adapts the router+dispatcher pipeline into the
// orchestrator.TaskDispatcher callback, converting a task's prompt into
// a pool-shaped result map the orchestrator's aggregator can validate.
func taskDispatcherFunc(disp *dispatcher.Dispatcher, rtr *router.Router, _ *session.Store) orchestrator.TaskDispatcher {
	return func(ctx context.Context, t *orchestrator.Task) (map[string]interface{}, error) {
		decision := rtr.Select(ctx, t.Prompt, nil, "")
		result, err := disp.Dispatch(ctx, decision.AgentID, t.Prompt, nil, dispatcher.Options{})
		if err != nil {
			return nil, err
		}
		return shapeFor(t.Pool, result.ResponseText), nil
	}
}

// synthesizerFunc adapts the dispatcher into the orchestrator's final
// coordinator call, routing the synthesis prompt to the configured
// default agent.
func synthesizerFunc(disp *dispatcher.Dispatcher, defaultAgentID string) orchestrator.Synthesizer {
	return func(ctx context.Context, originalRequest string, unified map[orchestrator.Pool]orchestrator.PoolResults) (string, error) {
		prompt := synthesisPrompt(originalRequest, unified)
		result, err := disp.Dispatch(ctx, defaultAgentID, prompt, nil, dispatcher.Options{})
		if err != nil {
			return "", err
		}
		return result.ResponseText, nil
	}
}

func shapeFor(pool orchestrator.Pool, text string) map[string]interface{} {
	switch pool {
	case orchestrator.PoolCodegen:
		return map[string]interface{}{"code": text}
	case orchestrator.PoolSecurity:
		return map[string]interface{}{"findings": text}
	case orchestrator.PoolDatabase:
		return map[string]interface{}{"schema": text}
	default:
		return map[string]interface{}{"result": text}
	}
}

func synthesisPrompt(originalRequest string, unified map[orchestrator.Pool]orchestrator.PoolResults) string {
	data, _ := json.Marshal(unified)
	return "Original request: " + originalRequest + "\nTask results: " + string(data)
}
