// Command gateway wires the gateway core's subsystems together behind an
// HTTP entrypoint. Request/response framing is a stated-interface
// external collaborator (spec.md §6) — this file is deliberately thin,
// translating HTTP bodies into core calls and back.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Miles0sage/agentgate/ai"
	"github.com/Miles0sage/agentgate/core"
	"github.com/Miles0sage/agentgate/cost"
	"github.com/Miles0sage/agentgate/dispatcher"
	"github.com/Miles0sage/agentgate/health"
	"github.com/Miles0sage/agentgate/orchestrator"
	"github.com/Miles0sage/agentgate/router"
	"github.com/Miles0sage/agentgate/session"
	"github.com/Miles0sage/agentgate/telemetry"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("gateway: config: %v", err)
	}

	logger := core.NewProductionLogger(cfg.Logging, "gateway")

	telemetryProvider, err := telemetry.NewProvider(cfg.ServiceName)
	if err != nil {
		logger.Warn("telemetry disabled", map[string]interface{}{"error": err.Error()})
	}
	var tel core.Telemetry = core.NoOpTelemetry{}
	if telemetryProvider != nil {
		tel = telemetryProvider
		defer telemetryProvider.Shutdown(context.Background())
	}

	agents := cfg.ToAgents()
	byID := make(map[string]*core.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	lookup := func(agentID string) (*core.Agent, bool) { a, ok := byID[agentID]; return a, ok }

	rtr := router.New(agents, cfg.DefaultAgent,
		router.WithLogger(logger), router.WithTelemetry(tel), router.WithCacheTTL(cfg.RouterCacheTTL))

	adapterPool := ai.NewPool(logger, tel)

	healthTracker := health.New(logger)

	ledgerPath := os.Getenv("AGENTGATE_COST_LEDGER")
	if ledgerPath == "" {
		ledgerPath = "cost_ledger.jsonl"
	}
	quotaTiers := make(map[cost.Tier]cost.TierLimits, len(cfg.QuotaTiers))
	for name, t := range cfg.QuotaTiers {
		quotaTiers[cost.Tier(name)] = cost.TierLimits{LimitUSD: t.LimitUSD, WarnUSD: t.WarnUSD}
	}
	costEnforcer := cost.New(agents, quotaTiers, cost.WithLedgerPath(ledgerPath), cost.WithEnforcerLogger(logger))

	disp := dispatcher.New(lookup, adapterPool, healthTracker, costEnforcer,
		dispatcher.WithLogger(logger), dispatcher.WithTelemetry(tel),
		dispatcher.WithDefaults(cfg.DispatcherTimeout, cfg.DispatcherMaxRetries))

	sessionDir := os.Getenv("AGENTGATE_SESSION_DIR")
	if sessionDir == "" {
		sessionDir = "sessions"
	}
	sessionStore, err := session.New(sessionDir)
	if err != nil {
		log.Fatalf("gateway: session store: %v", err)
	}

	poolConfigs := make(map[orchestrator.Pool]orchestrator.PoolConfig, len(cfg.Pools))
	for name, p := range cfg.Pools {
		poolConfigs[orchestrator.Pool(name)] = orchestrator.PoolConfig{
			Concurrency: p.Concurrency, Timeout: p.Timeout, MaxRetries: p.MaxRetries,
		}
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithPools(poolConfigs),
		orchestrator.WithLogger(logger),
		orchestrator.WithTelemetry(tel),
	}
	if execStoreURL := os.Getenv("AGENTGATE_EXECUTION_STORE_REDIS_URL"); execStoreURL != "" {
		store, err := orchestrator.NewRedisExecutionStore(execStoreURL)
		if err != nil {
			logger.Warn("execution store disabled", map[string]interface{}{"error": err.Error()})
		} else {
			orchOpts = append(orchOpts, orchestrator.WithExecutionStore(store))
			defer store.Close()
		}
	}

	orch := orchestrator.New(
		taskDispatcherFunc(disp, rtr, sessionStore),
		synthesizerFunc(disp, cfg.DefaultAgent),
		orchOpts...,
	)

	srv := &server{
		logger:       logger,
		router:       rtr,
		dispatcher:   disp,
		cost:         costEnforcer,
		sessionStore: sessionStore,
		orchestrator: orch,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat", srv.handleChat)
	mux.HandleFunc("/v1/orchestrate", srv.handleOrchestrate)
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/ws", srv.handleWebSocket)

	handler := otelhttp.NewHandler(mux, "agentgate.http")

	addr := os.Getenv("AGENTGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("gateway listening", map[string]interface{}{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func loadConfig() (*core.Config, error) {
	agentsPath := os.Getenv("AGENTGATE_AGENTS_FILE")
	opts := []core.Option{core.WithServiceName("agent-gateway")}

	if agentsPath != "" {
		agentSpecs, err := core.LoadAgentsYAML(agentsPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, func(c *core.Config) { c.Agents = agentSpecs })
	}

	return core.NewConfig(opts...)
}

type chatRequest struct {
	Content    string `json:"content"`
	AgentID    string `json:"agent_id"`
	SessionKey string `json:"session_key"`
	ProjectID  string `json:"project_id"`
}

type chatResponse struct {
	Response string                `json:"response"`
	Agent    string                `json:"agent"`
	Tokens   int                   `json:"tokens"`
	CostUSD  float64               `json:"cost_usd"`
	Routing  core.RoutingDecision  `json:"routing"`
	Attempts []string              `json:"attempts,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.ErrKindValidation:
		return http.StatusBadRequest
	case core.ErrKindAuthentication:
		return http.StatusUnauthorized
	case core.ErrKindBudgetExceeded:
		return http.StatusPaymentRequired
	case core.ErrKindRateLimit:
		return http.StatusTooManyRequests
	case core.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}
