package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	fgerrors "github.com/randalmurphal/agentflow/pkg/agentflow/errors"
	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
	"github.com/randalmurphal/agentflow/pkg/agentflow/resource"
	"github.com/randalmurphal/agentflow/pkg/agentflow/schema"
	"github.com/randalmurphal/agentflow/pkg/agentflow/template"
)

// Result is the outcome of Execute.
type Result struct {
	Message *message.Message

	// Failures lists every step that failed, in completion order.
	Failures []StepFailure
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResources sets the resource manager used for manifest Resources.
func WithResources(m *resource.Manager) Option {
	return func(o *Orchestrator) { o.resources = m }
}

// WithRetry sets the backoff used between step attempts. MaxAttempts is
// ignored; each step's Retries decides it.
func WithRetry(cfg fgerrors.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithSchemas validates every step result whose Schema names an entry in
// reg. A mismatch fails the step permanently.
func WithSchemas(reg *schema.Registry) Option {
	return func(o *Orchestrator) { o.schemas = reg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSpanManager sets the span manager.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(o *Orchestrator) { o.spans = sm }
}

// WithMissingVariable sets how unresolved ${name} placeholders are handled.
// The default keeps them verbatim.
func WithMissingVariable(action template.MissingAction) Option {
	return func(o *Orchestrator) { o.expander = template.NewExpander(template.WithMissing(action)) }
}

// Orchestrator executes tools and pipelines.
type Orchestrator struct {
	tools     *registry.Registry[string, Tool]
	pipelines *registry.Registry[string, *Pipeline]
	resources *resource.Manager
	schemas   *schema.Registry
	retry     fgerrors.RetryConfig
	expander  *template.Expander
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tools:     registry.New[string, Tool](),
		pipelines: registry.New[string, *Pipeline](),
		retry:     fgerrors.DefaultRetry,
		expander:  template.NewExpander(),
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterTool adds a tool under its manifest name.
func (o *Orchestrator) RegisterTool(t Tool) error {
	name := t.Manifest().Name
	if name == "" {
		return errors.New("register tool: empty name")
	}
	if err := o.tools.Add(name, t); err != nil {
		return fmt.Errorf("register tool %s: %w", name, err)
	}
	return nil
}

// RegisterPipeline validates and adds a pipeline. Pipeline and tool names
// share one namespace at Execute time; pipelines win.
func (o *Orchestrator) RegisterPipeline(p Pipeline) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := o.pipelines.Add(p.Name, &p); err != nil {
		return fmt.Errorf("register pipeline %s: %w", p.Name, err)
	}
	return nil
}

// Has reports whether name resolves to a pipeline or a tool.
func (o *Orchestrator) Has(name string) bool {
	return o.pipelines.Has(name) || o.tools.Has(name)
}

// Validate checks that every pipeline's tools and every manifest's
// resources are registered.
func (o *Orchestrator) Validate() error {
	var errs []error
	for name, p := range o.pipelines.All() {
		for _, tool := range p.toolNames() {
			if !o.tools.Has(tool) {
				errs = append(errs, fmt.Errorf("pipeline %s: %w: %s", name, ErrUnknownTool, tool))
			}
		}
	}
	for name, t := range o.tools.All() {
		for _, r := range t.Manifest().Resources {
			if o.resources == nil || !o.resources.Has(r) {
				errs = append(errs, fmt.Errorf("tool %s: %w: %s", name, resource.ErrUnknownResource, r))
			}
		}
	}
	return errors.Join(errs...)
}

// Execute runs the pipeline or tool called name. view may be nil.
// On failure the returned Result still carries the recorded Failures.
func (o *Orchestrator) Execute(ctx context.Context, name string, params map[string]any, view *flowctx.View) (*Result, error) {
	p, ok := o.pipelines.Get(name)
	if !ok {
		if !o.tools.Has(name) {
			return &Result{}, &ToolError{Pipeline: name, Tool: name, Kind: KindPermanent, Err: ErrUnknownTool}
		}
		p = &Pipeline{Name: name, Steps: []Step{{Name: name, Tool: name}}}
	}

	r := &run{o: o, params: params, view: view}
	ctx, span := o.spans.StartToolSpan(ctx, name, "")
	msg, err := r.pipeline(ctx, p, "")
	o.spans.EndSpanWithError(span, err)

	res := &Result{Failures: r.failures}
	if err != nil {
		return res, err
	}
	if msg == nil {
		msg = message.New(message.RoleTool, name, "")
	}
	res.Message = msg.WithMetadata("tool_pipeline", name)
	return res, nil
}

// run is the state of one Execute call.
type run struct {
	o      *Orchestrator
	params map[string]any
	view   *flowctx.View

	mu       sync.Mutex
	failures []StepFailure
}

func (r *run) fail(f StepFailure) {
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
}

func (r *run) pipeline(ctx context.Context, p *Pipeline, previous string) (*message.Message, error) {
	switch p.Strategy {
	case Parallel:
		return r.parallel(ctx, p, previous)
	case Fallback:
		var lastErr error
		for _, s := range p.Steps {
			msg, err := r.step(ctx, p, s, previous)
			if err == nil {
				return msg, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				break
			}
		}
		return nil, lastErr
	default:
		var last *message.Message
		for _, s := range p.Steps {
			msg, err := r.step(ctx, p, s, previous)
			if err != nil {
				return nil, err
			}
			if msg == nil {
				msg = message.New(message.RoleTool, s.label(), "")
			}
			previous = msg.Content
			last = msg
		}
		return last, nil
	}
}

func (r *run) parallel(ctx context.Context, p *Pipeline, previous string) (*message.Message, error) {
	outputs := make([]StepOutput, len(p.Steps))

	if p.Aggregator != nil {
		var wg sync.WaitGroup
		for i, s := range p.Steps {
			wg.Add(1)
			go func() {
				defer wg.Done()
				msg, err := r.step(ctx, p, s, previous)
				outputs[i] = StepOutput{Step: s.label(), Message: msg, Err: err}
			}()
		}
		wg.Wait()
		return r.combine(p, outputs)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range p.Steps {
		g.Go(func() error {
			msg, err := r.step(gctx, p, s, previous)
			outputs[i] = StepOutput{Step: s.label(), Message: msg, Err: err}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aggregate(p.Name, outputs)
}

// combine runs the pipeline's Aggregator. A panic fails the pipeline with
// a permanent ToolError.
func (r *run) combine(p *Pipeline, outputs []StepOutput) (msg *message.Message, err error) {
	defer func() {
		if v := recover(); v != nil {
			cause := fgerrors.Permanent(fmt.Errorf("aggregator panicked: %v", v), p.Name)
			r.fail(StepFailure{Pipeline: p.Name, Step: p.Name, Err: cause})
			msg, err = nil, &ToolError{Pipeline: p.Name, Step: p.Name, Kind: KindPermanent, Err: cause}
		}
	}()
	return p.Aggregator(outputs)
}

// aggregate builds the default parallel result: a system message whose
// payload lists step outputs in step order.
func aggregate(pipeline string, outputs []StepOutput) (*message.Message, error) {
	items := make([]map[string]any, 0, len(outputs))
	for _, out := range outputs {
		item := map[string]any{"step": out.Step}
		if out.Message != nil {
			item["from"] = out.Message.From
			item["content"] = out.Message.Content
			if out.Message.Payload != nil {
				item["payload"] = out.Message.Payload
			}
		}
		items = append(items, item)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", pipeline, err)
	}
	msg := message.New(message.RoleSystem, pipeline, string(data))
	return msg.WithPayload(items, "tool.parallel"), nil
}

func (r *run) step(ctx context.Context, p *Pipeline, s Step, previous string) (*message.Message, error) {
	if s.Pipeline != nil {
		return r.pipeline(ctx, s.Pipeline, previous)
	}
	label := s.label()

	t, ok := r.o.tools.Get(s.Tool)
	if !ok {
		err := &ToolError{Pipeline: p.Name, Step: label, Tool: s.Tool, Kind: KindPermanent, Err: ErrUnknownTool}
		r.fail(StepFailure{Pipeline: p.Name, Step: label, Tool: s.Tool, Err: err})
		return nil, err
	}
	manifest := t.Manifest()

	input, err := r.input(manifest, s, previous)
	if err != nil {
		toolErr := &ToolError{Pipeline: p.Name, Step: label, Tool: s.Tool, Kind: KindPermanent, Err: err}
		r.fail(StepFailure{Pipeline: p.Name, Step: label, Tool: s.Tool, Err: err})
		return nil, toolErr
	}

	timeout := s.Timeout
	if timeout == 0 && r.o.resources != nil {
		for _, name := range manifest.Resources {
			if spec, ok := r.o.resources.Spec(name); ok && spec.Timeout > 0 {
				timeout = spec.Timeout
				break
			}
		}
	}

	cfg := r.o.retry
	cfg.MaxAttempts = s.Retries + 1
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		r.o.logger.Debug("retrying tool step",
			slog.String("pipeline", p.Name),
			slog.String("step", label),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	ctx, span := r.o.spans.StartToolSpan(ctx, s.Tool, label)
	result := fgerrors.WithRetryContext(ctx, cfg, func(ctx context.Context, attempt int) (*message.Message, error) {
		inv := Invocation{Tool: s.Tool, Pipeline: p.Name, Step: label, Attempt: attempt, Input: input}
		start := time.Now()
		msg, err := r.attempt(ctx, t, manifest, inv, timeout)
		r.o.metrics.RecordToolStep(ctx, s.Tool, time.Since(start), err)
		observability.LogToolStep(r.o.logger, p.Name, label, s.Tool, attempt, err)
		return msg, err
	})
	r.o.spans.EndSpanWithError(span, result.Err)

	if result.Err != nil {
		cause := result.Err
		var ce *fgerrors.CategorizedError
		if errors.As(cause, &ce) {
			cause = ce.Err
		}
		r.fail(StepFailure{Pipeline: p.Name, Step: label, Tool: s.Tool, Attempts: result.Attempts, Err: cause})
		return nil, &ToolError{
			Pipeline: p.Name,
			Step:     label,
			Tool:     s.Tool,
			Kind:     kindOf(cause),
			Attempts: result.Attempts,
			Err:      cause,
		}
	}
	if err := r.o.checkPayload(result.Value); err != nil {
		r.fail(StepFailure{Pipeline: p.Name, Step: label, Tool: s.Tool, Attempts: result.Attempts, Err: err})
		return nil, &ToolError{
			Pipeline: p.Name,
			Step:     label,
			Tool:     s.Tool,
			Kind:     KindPermanent,
			Attempts: result.Attempts,
			Err:      err,
		}
	}
	return result.Value, nil
}

// checkPayload validates msg's payload when its Schema is registered.
// Unregistered names pass.
func (o *Orchestrator) checkPayload(msg *message.Message) error {
	if o.schemas == nil || msg == nil || msg.Schema == "" || !o.schemas.Has(msg.Schema) {
		return nil
	}
	return o.schemas.Validate(msg.Schema, msg.Payload)
}

// input merges params over step input over manifest defaults, expands
// templates and checks required ports.
func (r *run) input(m Manifest, s Step, previous string) (map[string]any, error) {
	merged := make(map[string]any, len(m.Defaults)+len(s.Input)+len(r.params))
	maps.Copy(merged, m.Defaults)
	maps.Copy(merged, s.Input)
	maps.Copy(merged, r.params)

	expanded, err := r.o.expander.ExpandMap(merged, stepSource{view: r.view, previous: previous})
	if err != nil {
		return nil, &fgerrors.ValidationError{Field: "input", Message: err.Error()}
	}
	if err := m.CheckInput(expanded); err != nil {
		return nil, err
	}
	return expanded, nil
}

func (r *run) attempt(ctx context.Context, t Tool, m Manifest, inv Invocation, timeout time.Duration) (*message.Message, error) {
	if r.o.resources != nil {
		for _, name := range m.Resources {
			start := time.Now()
			h, err := r.o.resources.Checkout(ctx, name)
			r.o.metrics.RecordResourceWait(ctx, name, time.Since(start), err)
			if err != nil {
				return nil, err
			}
			defer r.o.resources.Release(h)
		}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		msg *message.Message
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fgerrors.Permanent(fmt.Errorf("tool %s panicked: %v", inv.Tool, p), inv.Step)}
			}
		}()
		msg, err := t.Call(callCtx, inv, r.view)
		done <- outcome{msg, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, &fgerrors.TimeoutError{Operation: inv.Tool, Duration: timeout, Err: out.err}
			}
			return nil, out.err
		}
		if out.msg == nil {
			out.msg = message.New(message.RoleTool, inv.Tool, "")
		}
		return out.msg, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &fgerrors.TimeoutError{Operation: inv.Tool, Duration: timeout, Err: callCtx.Err()}
	}
}

// stepSource resolves ${previous} and falls back to the view.
type stepSource struct {
	view     *flowctx.View
	previous string
}

func (s stepSource) Lookup(key string) (any, bool) {
	if key == "previous" {
		return s.previous, true
	}
	if s.view == nil {
		return nil, false
	}
	return s.view.Lookup(key)
}
