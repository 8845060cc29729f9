package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/finmesh/advisor"
	"github.com/hupe1980/finmesh/archive"
	"github.com/hupe1980/finmesh/core"
	"github.com/hupe1980/finmesh/gateway"
	"github.com/hupe1980/finmesh/logging"
	"github.com/hupe1980/finmesh/memory"
	"github.com/hupe1980/finmesh/model"
	"github.com/hupe1980/finmesh/session"
	"github.com/hupe1980/finmesh/telemetry"
	"github.com/hupe1980/finmesh/tool"
)

// Version identifies the engine build in capability descriptors.
const Version = "0.1.0"

// Config carries the engine's operational limits.
type Config struct {
	// Deadline bounds one full pipeline run, research through
	// recommendation. Zero applies the 2 minute default. The engine cancels
	// all outstanding work when it elapses.
	Deadline time.Duration

	// SessionTTL is handed to the session store at creation time. Zero
	// applies the 30 minute default.
	SessionTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Deadline <= 0 {
		c.Deadline = 2 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
}

// Options configures an Engine via functional options. Every collaborator
// has an in-memory default so New() with no options yields a fully working
// engine for tests and demos.
type Options struct {
	Config Config

	// SessionStore owns live sessions. Defaults to session.NewInMemoryStore.
	SessionStore core.SessionStore

	// MemoryStore supplies long-term user context at seed time and receives
	// the analysis record at completion. Defaults to memory.NewInMemoryStore.
	// Failures on this collaborator are logged, never propagated.
	MemoryStore core.MemoryStore

	// ArchiveStore receives completed session transcripts. Defaults to
	// archive.NewInMemoryStore. Archival failures are logged, never
	// propagated.
	ArchiveStore core.ArchiveStore

	// Gateway is the tool chokepoint handed to every invocation. When nil
	// the engine builds one with default limits and the built-in financial
	// tool set registered.
	Gateway *gateway.Gateway

	// Model backs the recommendation loop. Nil selects the deterministic
	// heuristic generator and critic.
	Model model.Model

	// ResearchTimeout bounds the research fan-out. Zero applies the
	// pipeline default.
	ResearchTimeout time.Duration

	// MaxRefinements bounds the recommendation loop. Zero applies the loop
	// default.
	MaxRefinements int

	// Hooks are invoked around each stage.
	Hooks Hooks

	// Logger defaults to a no-op.
	Logger logging.Logger
}

// WithConfig sets the engine limits.
func WithConfig(cfg Config) func(*Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithSessionStore overrides the session store.
func WithSessionStore(s core.SessionStore) func(*Options) {
	return func(o *Options) { o.SessionStore = s }
}

// WithMemoryStore overrides the user context store.
func WithMemoryStore(m core.MemoryStore) func(*Options) {
	return func(o *Options) { o.MemoryStore = m }
}

// WithArchiveStore overrides the transcript archive.
func WithArchiveStore(a core.ArchiveStore) func(*Options) {
	return func(o *Options) { o.ArchiveStore = a }
}

// WithGateway overrides the tool gateway.
func WithGateway(g *gateway.Gateway) func(*Options) {
	return func(o *Options) { o.Gateway = g }
}

// WithModel backs the recommendation loop with a language model.
func WithModel(m model.Model) func(*Options) {
	return func(o *Options) { o.Model = m }
}

// WithMaxRefinements bounds the recommendation loop.
func WithMaxRefinements(n int) func(*Options) {
	return func(o *Options) { o.MaxRefinements = n }
}

// WithResearchTimeout bounds the research fan-out window.
func WithResearchTimeout(d time.Duration) func(*Options) {
	return func(o *Options) { o.ResearchTimeout = d }
}

// WithHooks registers stage callbacks.
func WithHooks(h Hooks) func(*Options) {
	return func(o *Options) { o.Hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// Query is one advisory request.
type Query struct {
	// UserID selects the long-term context; empty skips memory seeding and
	// analysis recording.
	UserID string
	// SessionID pins the session identifier. Empty generates one.
	SessionID string
	// Text is the user's question. If it contains allocation percentages
	// ("60% stocks, 40% bonds") they seed the session's holdings.
	Text string
}

// Result is the terminal outcome of one pipeline run.
type Result struct {
	SessionID string
	Status    core.SessionStatus
	// Output is the synthesized advisory report, or the best terminal
	// output produced before a deadline cut the run short.
	Output     *core.TerminalOutput
	Transcript []core.Event
	Elapsed    time.Duration
}

// Skill describes one capability for the agent card.
type Skill struct {
	ID          string
	Name        string
	Description string
	Tags        []string
}

// Capability is the engine's self-description, rendered by the a2a package
// as an agent card.
type Capability struct {
	Name        string
	Description string
	Version     string
	Skills      []Skill
}

// Engine runs the advisory pipeline. It is safe for concurrent use; the
// agent tree is built once and shared read-only, and each Run gets its own
// session and invocation context.
type Engine struct {
	cfg      Config
	pipeline advisor.Pipeline
	sessions core.SessionStore
	memory   core.MemoryStore
	archive  core.ArchiveStore
	gateway  *gateway.Gateway
	hooks    Hooks
	logger   logging.Logger
	metrics  *telemetry.PipelineMetrics
	tracer   trace.Tracer
}

// New builds an engine. In-memory stores and a default gateway carrying the
// built-in financial tools fill any collaborator left unset.
func New(optFns ...func(*Options)) (*Engine, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Config.applyDefaults()
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.MemoryStore == nil {
		opts.MemoryStore = memory.NewInMemoryStore()
	}
	if opts.ArchiveStore == nil {
		opts.ArchiveStore = archive.NewInMemoryStore()
	}
	metrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		opts.Logger.Warn("Pipeline metrics unavailable, continuing without them", "error", err)
	}

	if opts.Gateway == nil {
		g := gateway.New(gateway.Config{Logger: opts.Logger})
		if err := g.RegisterAll(tool.Defaults()...); err != nil {
			return nil, fmt.Errorf("register default tools: %w", err)
		}
		opts.Gateway = g
	}
	opts.Gateway.UseMetrics(metrics)

	pipeline, err := advisor.BuildPipeline(advisor.PipelineConfig{
		Model:           opts.Model,
		ResearchTimeout: opts.ResearchTimeout,
		MaxRefinements:  opts.MaxRefinements,
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	return &Engine{
		cfg:      opts.Config,
		pipeline: pipeline,
		sessions: opts.SessionStore,
		memory:   opts.MemoryStore,
		archive:  opts.ArchiveStore,
		gateway:  opts.Gateway,
		hooks:    opts.Hooks,
		logger:   opts.Logger,
		metrics:  metrics,
		tracer:   otel.Tracer("github.com/hupe1980/finmesh/engine"),
	}, nil
}

// Gateway exposes the engine's tool gateway, mainly for registering extra
// tools before the first Run.
func (e *Engine) Gateway() *gateway.Gateway { return e.gateway }

// Run executes the full pipeline for one query under a single deadline.
//
// The session is seeded with the query text, any allocation percentages
// parsed from it, and the user's long-term context; seeding failures are
// logged and the run continues. Each stage's merged event is applied to the
// session before the next stage starts, and the synthesized report closes
// the transcript as a final engine-authored event. An exhausted
// recommendation loop is
// not fatal: its best candidate is kept and the run completes. When the
// deadline elapses the session is marked timed out and the best terminal
// output produced so far (if any) is returned alongside a nil error;
// otherwise Run returns an EngineTimeoutError. Hard stage failures return
// an EngineError carrying the partial transcript.
func (e *Engine) Run(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	sessionID := q.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	runID := uuid.NewString()

	ctx, span := e.tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("run.id", runID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Deadline)
	defer cancel()

	sess, err := e.sessions.Create(sessionID, e.cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	e.seed(sess, q)

	inv := core.NewInvocationContext(ctx, sessionID, runID,
		core.AgentInfo{Name: "engine", Type: "engine"}, q.Text,
		sess, e.gateway, e.logger)

	var lastOutput *core.TerminalOutput
	exhausted := false

	for _, stage := range e.pipeline.Stages() {
		if ctx.Err() != nil {
			return e.timedOut(ctx, sess, stage.Name(), lastOutput, start)
		}

		e.hooks.before(stage.Name())
		stageStart := time.Now()
		ev, runErr := stage.Run(inv)
		stageDur := time.Since(stageStart)
		e.hooks.after(stage.Name(), ev, runErr, stageDur)
		e.metrics.RecordStage(ctx, stage.Name(), stageDur, runErr == nil)

		switch {
		case runErr == nil:
		case errors.Is(runErr, core.ErrLoopExhausted):
			// The loop's best candidate still counts; note it and move on.
			exhausted = true
			e.logger.Warn("Recommendation loop exhausted its budget",
				"session_id", sessionID, "stage", stage.Name())
		case ctx.Err() != nil:
			return e.timedOut(ctx, sess, stage.Name(), lastOutput, start)
		default:
			sess.SetStatus(core.SessionFailed)
			e.archiveSession(sess)
			e.metrics.RecordRun(ctx, string(core.SessionFailed))
			span.SetAttributes(attribute.String("engine.status", string(core.SessionFailed)))
			return nil, &core.EngineError{
				Stage:      stage.Name(),
				Transcript: sess.Events(),
				Err:        runErr,
			}
		}

		if ev != nil {
			inv.Merge(*ev)
			if ev.Output != nil {
				lastOutput = ev.Output
			}
			if ev.LoopState != "" {
				e.metrics.RecordLoop(ctx, stage.Name(), ev.Iteration)
			}
		}
	}

	final := e.synthesize(sess, lastOutput, exhausted)
	report := core.NewOutputEvent(runID, "engine", final.Text)
	report.Output.Data = final.Data
	sess.AddEvent(report)
	sess.SetStatus(core.SessionCompleted)
	e.archiveSession(sess)
	e.recordAnalysis(q.UserID, sess, final)
	e.metrics.RecordRun(ctx, string(core.SessionCompleted))
	span.SetAttributes(attribute.String("engine.status", string(core.SessionCompleted)))

	return &Result{
		SessionID:  sessionID,
		Status:     core.SessionCompleted,
		Output:     final,
		Transcript: sess.Events(),
		Elapsed:    time.Since(start),
	}, nil
}

// seed writes the query and long-term user context into the fresh session.
// Memory failures are logged and skipped.
func (e *Engine) seed(sess *core.Session, q Query) {
	sess.Set("user.query", q.Text, "engine")

	if alloc, err := advisor.ParseAllocations(q.Text); err == nil {
		holdings := make(map[string]any, len(alloc))
		for name, w := range alloc {
			holdings[name] = w
		}
		sess.Set("user.holdings", holdings, "engine")
	}

	if q.UserID == "" || e.memory == nil {
		return
	}
	userCtx, err := e.memory.GetUserContext(q.UserID)
	if err != nil {
		e.logger.Warn("User context unavailable, continuing without it",
			"user_id", q.UserID, "error", err)
		return
	}
	for k, v := range userCtx {
		sess.Set(core.NamespaceKey("user", k), v, "engine")
	}
}

// timedOut marks the session, archives it and returns the best output seen
// so far. With no output at all the caller gets an EngineTimeoutError.
func (e *Engine) timedOut(ctx context.Context, sess *core.Session, stage string, lastOutput *core.TerminalOutput, start time.Time) (*Result, error) {
	sess.SetStatus(core.SessionTimedOut)
	e.archiveSession(sess)
	e.metrics.RecordRun(ctx, string(core.SessionTimedOut))
	e.logger.Warn("Pipeline deadline elapsed",
		"session_id", sess.ID, "stage", stage, "deadline", e.cfg.Deadline)

	if lastOutput == nil {
		return nil, &core.EngineTimeoutError{Deadline: e.cfg.Deadline, Stage: stage}
	}
	return &Result{
		SessionID:  sess.ID,
		Status:     core.SessionTimedOut,
		Output:     lastOutput,
		Transcript: sess.Events(),
		Elapsed:    time.Since(start),
	}, nil
}

func (e *Engine) archiveSession(sess *core.Session) {
	if e.archive == nil {
		return
	}
	if err := e.archive.Archive(sess); err != nil {
		e.logger.Warn("Session archival failed", "session_id", sess.ID, "error", err)
	}
}

// recordAnalysis persists the run's outcome to the user's long-term history.
func (e *Engine) recordAnalysis(userID string, sess *core.Session, final *core.TerminalOutput) {
	if userID == "" || e.memory == nil {
		return
	}
	state := sess.Snapshot()
	record := map[string]any{
		"session_id":     sess.ID,
		"recommendation": state.GetString(core.NamespaceKey(advisor.NamespaceRec, "current")),
		"critique":       state.GetString(core.NamespaceKey(advisor.NamespaceRec, "critique")),
		"performance":    state.GetString(core.NamespaceKey(advisor.NamespacePerformance, "summary")),
	}
	if final != nil {
		record["report"] = final.Text
	}
	if err := e.memory.RecordAnalysis(userID, record); err != nil {
		e.logger.Warn("Analysis history write failed", "user_id", userID, "error", err)
	}
}

// synthesize assembles the final advisory report from every pipeline
// namespace. It is deliberately mechanical; all reasoning happened in the
// stages.
func (e *Engine) synthesize(sess *core.Session, lastOutput *core.TerminalOutput, exhausted bool) *core.TerminalOutput {
	state := sess.Snapshot()

	section := func(title, key string) string {
		if v := state.GetString(key); v != "" {
			return title + ": " + v
		}
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Advisory Report\n")
	for _, line := range []string{
		section("Market", core.NamespaceKey(advisor.NamespaceMarket, "summary")),
		section("News", core.NamespaceKey(advisor.NamespaceNews, "summary")),
		section("Macro", core.NamespaceKey(advisor.NamespaceEcon, "summary")),
		section("Risk", core.NamespaceKey(advisor.NamespaceRisk, "summary")),
		section("Portfolio", core.NamespaceKey(advisor.NamespacePortfolio, "summary")),
		section("Performance", core.NamespaceKey(advisor.NamespacePerformance, "summary")),
		section("Recommendation", core.NamespaceKey(advisor.NamespaceRec, "current")),
		section("Review", core.NamespaceKey(advisor.NamespaceRec, "critique")),
	} {
		if line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	data := map[string]any{
		"session_id": sess.ID,
		"converged":  !exhausted,
	}
	if lastOutput != nil {
		for k, v := range lastOutput.Data {
			data[k] = v
		}
	}
	return &core.TerminalOutput{Text: strings.TrimRight(sb.String(), "\n"), Data: data}
}

// Describe returns the capability descriptor rendered by the a2a package.
func (e *Engine) Describe() Capability {
	return Capability{
		Name:        "finmesh-advisor",
		Description: "Multi-agent financial analysis and recommendation pipeline",
		Version:     Version,
		Skills: []Skill{
			{
				ID:          "market-research",
				Name:        "Market research",
				Description: "Concurrent market quote, news sentiment and macro indicator research",
				Tags:        []string{"research", "market-data"},
			},
			{
				ID:          "portfolio-analysis",
				Name:        "Portfolio analysis",
				Description: "Risk metrics, composition, diversification and rebalancing analysis",
				Tags:        []string{"analysis", "risk", "portfolio"},
			},
			{
				ID:          "recommendation",
				Name:        "Investment recommendation",
				Description: "Critiqued allocation recommendation refined to approval",
				Tags:        []string{"recommendation", "allocation"},
			},
		},
	}
}
