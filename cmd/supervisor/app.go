// Command supervisor runs the control plane described in the
// project's README: a crash-safe loop that takes one task at a time
// from a queue, dispatches it to an AI coding agent, validates the
// result, and retries or blocks before moving to the next task.
//
// Usage:
//
//	supervisor init-state --project-id demo --execution-mode AUTO --goal "Ship the thing"
//	supervisor enqueue --project-id demo --task-file tasks.yaml
//	supervisor start --project-id demo
package main

import (
	"fmt"
	"os"

	"github.com/kadirpekel/supervisor/internal/analytics"
	"github.com/kadirpekel/supervisor/internal/audit"
	"github.com/kadirpekel/supervisor/internal/circuitbreaker"
	"github.com/kadirpekel/supervisor/internal/config"
	"github.com/kadirpekel/supervisor/internal/controlloop"
	"github.com/kadirpekel/supervisor/internal/kvstore"
	"github.com/kadirpekel/supervisor/internal/logging"
	"github.com/kadirpekel/supervisor/internal/provider"
	"github.com/kadirpekel/supervisor/internal/queue"
	"github.com/kadirpekel/supervisor/internal/sandbox"
	"github.com/kadirpekel/supervisor/internal/session"
	"github.com/kadirpekel/supervisor/internal/state"
	"github.com/kadirpekel/supervisor/internal/validator"
)

// Globals carries every flag shared across subcommands. Kong embeds it
// into CLI, and main passes *Globals to each Cmd.Run via ctx.Run.
type Globals struct {
	RedisHost   string `name:"redis-host" help:"Redis/DragonflyDB host." default:"localhost"`
	RedisPort   int    `name:"redis-port" help:"Redis/DragonflyDB port." default:"6379"`
	StateKey    string `name:"state-key" help:"Key the state blob is persisted under." default:"supervisor:state"`
	QueueName   string `name:"queue-name" help:"List key backing the task queue." default:"tasks"`
	QueueDB     int    `name:"queue-db" help:"Redis logical DB for the task queue." default:"0"`
	StateDB     int    `name:"state-db" help:"Redis logical DB for the state blob." default:"0"`
	SandboxRoot string `name:"sandbox-root" help:"Root directory for per-project sandboxes." default:"./sandbox"`
	ProjectID   string `name:"project-id" help:"Project identifier; partitions sandbox, sessions, and breaker state." required:""`

	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info"`
}

// app bundles every collaborator built from Globals plus env-derived Config.
type app struct {
	cfg     *config.Config
	sandbox *sandbox.Sandbox
	store   kvstore.Store
	manager *state.Manager
	queue   *queue.Queue
	breaker *circuitbreaker.Breaker
}

func newApp(g *Globals) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg.RedisHost = g.RedisHost
	cfg.RedisPort = g.RedisPort
	cfg.StateKey = g.StateKey
	cfg.QueueName = g.QueueName
	cfg.QueueDB = g.QueueDB
	cfg.StateDB = g.StateDB
	if g.SandboxRoot != "" {
		cfg.SandboxRoot = g.SandboxRoot
	}

	box, err := sandbox.New(cfg.SandboxRoot, g.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox: %w", err)
	}

	stateStore := kvstore.NewRedisStore(kvstore.RedisOptions{Host: cfg.RedisHost, Port: cfg.RedisPort, DB: cfg.StateDB})
	queueStore := stateStore
	if cfg.QueueDB != cfg.StateDB {
		queueStore = kvstore.NewRedisStore(kvstore.RedisOptions{Host: cfg.RedisHost, Port: cfg.RedisPort, DB: cfg.QueueDB})
	}

	return &app{
		cfg:     cfg,
		sandbox: box,
		store:   stateStore,
		manager: state.NewManager(stateStore, cfg.StateKey),
		queue:   queue.New(queueStore, cfg.QueueName),
		breaker: circuitbreaker.New(stateStore, cfg.CircuitBreakerTTL),
	}, nil
}

// providerDispatchRate throttles each real provider CLI to one
// dispatch every 2 seconds, so same-iteration fallback and fast retry
// cycles never hammer an agent binary back-to-back.
const providerDispatchRate = 0.5

// buildProviders registers one rate-limited CLIProvider per entry in
// the configured priority list, except that a "gemini_stub" entry
// registers the deterministic StubProvider double instead, so the
// control loop runs end-to-end without a real agent subprocess. The
// stub is registered only when gemini_stub is in the priority list
// (the default list includes it).
func (a *app) buildProviders() (*provider.Registry, error) {
	registry := provider.NewRegistry()
	for _, name := range a.cfg.CLIProviderPriority {
		if name == "gemini_stub" {
			if err := registry.RegisterProvider(provider.NewStubProvider(provider.Result{RawOutput: `{"summary":"stub run"}`})); err != nil {
				return nil, err
			}
			continue
		}
		p := provider.NewCLIProvider(provider.CLIOptions{
			Name:    name,
			Command: a.cfg.ProviderCLIPath(name),
			Timeout: provider.DefaultDispatchTimeout,
		})
		if err := registry.RegisterProvider(provider.NewRateLimited(p, providerDispatchRate, 1)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// helperProvider resolves the provider Stage 3/4 use: a local Ollama
// instance when USE_LOCAL_HELPER_AGENT is set, otherwise the first
// entry of the dispatch priority list.
func (a *app) helperProvider(registry *provider.Registry) provider.Provider {
	if a.cfg.UseLocalHelperAgent {
		return provider.NewOllamaProvider(a.cfg.OllamaBaseURL, a.cfg.LocalHelperModel)
	}
	if len(a.cfg.CLIProviderPriority) > 0 {
		if p, ok := registry.Get(a.cfg.CLIProviderPriority[0]); ok {
			return p
		}
	}
	return nil
}

func (a *app) buildLoop() (*controlloop.Loop, error) {
	registry, err := a.buildProviders()
	if err != nil {
		return nil, err
	}

	det := validator.NewDeterministic(a.sandbox.Dir())
	helperProvider := a.helperProvider(registry)

	var helper *validator.HelperOrchestrator
	var interrogator *validator.Interrogator
	if helperProvider != nil {
		helper = validator.NewHelperOrchestrator(helperProvider, a.sandbox.Dir(), a.cfg.StrictHelper)
		interrogator = validator.NewInterrogator(helperProvider)
	}

	pipeline := validator.NewPipeline(det, helper, interrogator, validator.DefaultRules)

	deps := controlloop.Deps{
		Manager:      a.manager,
		Queue:        a.queue,
		Sandbox:      a.sandbox,
		Providers:    registry,
		Breaker:      a.breaker,
		Sessions:     session.New(a.cfg.DisableSessionReuse),
		Pipeline:     pipeline,
		Interrogator: interrogator,
		GoalProvider: helperProvider,
		Audit:        audit.NewSink(a.sandbox.AuditLogPath()),
		Prompts:      audit.NewPromptSink(a.sandbox.PromptsLogPath()),
		Metrics:      analytics.NewSink(a.sandbox.MetricsPath()),
		Priority:     a.cfg.CLIProviderPriority,
	}
	return controlloop.NewLoop(deps), nil
}

func initLogging(level string) {
	parsed, _ := logging.ParseLevel(level)
	logging.Init(parsed, os.Stderr)
}
