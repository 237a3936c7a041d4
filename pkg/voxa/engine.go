package voxa

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/voxa-ai/voxa/pkg/metrics"
	"github.com/voxa-ai/voxa/pkg/observers"
	"github.com/voxa-ai/voxa/pkg/redact"
	"github.com/voxa-ai/voxa/pkg/runner"
)

// Engine owns the process-wide pieces: config, the provider registry, the
// observer chain and the lifecycle runner. Sessions are opened against it,
// one per conversation.
type Engine struct {
	cfg       Config
	providers *ProviderRegistry
	runner    *runner.LifecycleRunner
	asyncObs  *metrics.AsyncObserver
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
}

func NewEngine(opts EngineOptions) *Engine {
	cfg := opts.Config
	SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	slog.Info("voxa_init",
		"environment", cfg.Environment,
		"recognizer_provider", cfg.Vendors.Recognizer.Provider,
		"synth_provider", cfg.Vendors.Synth.Provider,
		"assistant_provider", cfg.Vendors.Assistant.Provider,
	)

	latencyObs := observers.NewLatencyObserver(slog.Default())
	logObs := observers.NewLoggerObserver(slog.Default())
	var timelineObs *observers.TimelineObserver
	var usageObs *observers.UsageObserver
	obsList := []metrics.Observer{latencyObs, logObs}
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			_, _ = observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
		}
		timelineObs = observers.NewTimelineObserver(dir)
		usageObs = observers.NewUsageObserver(dir)
		obsList = append(obsList, timelineObs, usageObs)
	}
	multiObs := observers.NewMultiObserver(obsList...)
	asyncObs := metrics.NewAsyncObserver(multiObs, 2048)

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
	}

	e := &Engine{
		cfg:       cfg,
		providers: providers,
		asyncObs:  asyncObs,
		sessions:  make(map[string]*Session),
	}

	hooks := runner.Hooks{
		OnStart: func() {
			slog.Info("engine_ready",
				"message", "Voxa Engine Ready",
				"persona", cfg.Persona,
			)
		},
		OnStop: func() {
			if asyncObs != nil {
				asyncObs.Close()
			}
			if timelineObs != nil {
				_ = timelineObs.Close()
			}
			if usageObs != nil {
				_ = usageObs.Close()
			}
			slog.Info("shutdown",
				"goroutines", runtime.NumGoroutine(),
				"active_sessions", e.SessionCount())
		},
	}

	drainer := runner.DrainerFunc(func() error {
		e.closeAllSessions()
		return nil
	})

	e.runner = runner.NewLifecycleRunner(drainer, hooks, 10*time.Second)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Start runs the lifecycle runner in the background. It returns immediately;
// the engine drains and stops when ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

// OpenSession builds a session for the named persona. An empty name selects
// the configured default persona.
func (e *Engine) OpenSession(ctx context.Context, personaName string) (*Session, error) {
	persona := e.cfg.PersonaByName(personaName)
	sess, err := newSession(e.cfg, e.providers, persona, e.asyncObs)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if err := sess.Start(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	e.mu.Lock()
	e.sessions[sess.ID()] = sess
	e.mu.Unlock()
	return sess, nil
}

// CloseSession tears down one session and forgets it.
func (e *Engine) CloseSession(id string) {
	e.mu.Lock()
	sess := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *Engine) closeAllSessions() {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[string]*Session)
	e.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (e *Engine) ProviderRegistry() *ProviderRegistry { return e.providers }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

func SetDefaultLogger(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
