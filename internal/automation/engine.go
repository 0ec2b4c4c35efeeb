package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Execution limits applied when EngineConfig leaves them unset.
const (
	defaultConditionTimeout = 5 * time.Second
	defaultBodyTimeout      = 60 * time.Second
	defaultQueueSize        = 256
)

const tracerName = "github.com/nerrad567/gray-logic-rules/internal/automation"

// EngineConfig bounds rule execution.
type EngineConfig struct {
	// ConditionTimeout bounds each condition check. Negative disables the guard.
	ConditionTimeout time.Duration

	// BodyTimeout bounds each body run. Negative disables the guard.
	BodyTimeout time.Duration

	// QueueSize is the per-rule event buffer.
	QueueSize int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.ConditionTimeout == 0 {
		c.ConditionTimeout = defaultConditionTimeout
	}
	if c.BodyTimeout == 0 {
		c.BodyTimeout = defaultBodyTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

// firing is one event waiting in a rule's queue.
type firing struct {
	triggerID string
	inputs    Inputs
	firedAt   time.Time
}

// ruleRuntime is the engine-side state of one rule.
type ruleRuntime struct {
	rule       *Rule
	triggers   []boundTrigger
	conditions []boundCondition
	actions    []boundAction

	// lifecycle serialises activation and removal.
	lifecycle sync.Mutex

	mu    sync.RWMutex // Protects state and the closing of queue
	state RuleState
	queue chan firing
	done  chan struct{} // Closed when the worker exits
}

func (rt *ruleRuntime) currentState() RuleState {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.state
}

func (rt *ruleRuntime) setState(s RuleState) {
	rt.mu.Lock()
	rt.state = s
	rt.mu.Unlock()
}

// enqueue offers an event to the rule. It reports false when the rule no
// longer accepts events.
func (rt *ruleRuntime) enqueue(f firing) (bool, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if rt.state != StateActivating && rt.state != StateActive {
		return false, nil
	}
	select {
	case rt.queue <- f:
		return true, nil
	default:
		return false, ErrQueueFull
	}
}

// trigger looks up one of the rule's triggers by module id. The trigger list
// is fixed once the runtime is built.
func (rt *ruleRuntime) trigger(id string) (boundTrigger, bool) {
	for _, t := range rt.triggers {
		if t.module.ID == id {
			return t, true
		}
	}
	return boundTrigger{}, false
}

func (rt *ruleRuntime) ownsTrigger(id string) bool {
	_, ok := rt.trigger(id)
	return ok
}

func (rt *ruleRuntime) handlers() []Handler {
	out := make([]Handler, 0, len(rt.triggers)+len(rt.conditions)+len(rt.actions))
	for _, t := range rt.triggers {
		out = append(out, t.handler)
	}
	for _, c := range rt.conditions {
		out = append(out, c.handler)
	}
	for _, a := range rt.actions {
		out = append(out, a.handler)
	}
	return out
}

// Engine owns the active rules and dispatches trigger events to them.
//
// Each active rule has a FIFO queue drained by one worker goroutine, so a
// rule's events are handled in the order they were raised and its bodies
// never overlap. Different rules run in parallel.
//
// All public methods are thread-safe.
type Engine struct {
	registry *HandlerRegistry
	cfg      EngineConfig

	mu        sync.RWMutex // Protects rules and observers
	rules     map[string]*ruleRuntime
	observers []Observer

	metrics *Metrics
	tracer  trace.Tracer
	logger  Logger
}

// NewEngine creates a rule engine resolving modules through registry.
func NewEngine(registry *HandlerRegistry, cfg EngineConfig) *Engine {
	return &Engine{
		registry: registry,
		cfg:      cfg.withDefaults(),
		rules:    make(map[string]*ruleRuntime),
		tracer:   otel.Tracer(tracerName),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetMetrics attaches Prometheus collectors. Nil disables metrics.
func (e *Engine) SetMetrics(m *Metrics) {
	e.metrics = m
}

// SetTracerProvider replaces the global tracer provider for execution spans.
func (e *Engine) SetTracerProvider(tp trace.TracerProvider) {
	e.tracer = tp.Tracer(tracerName)
}

// AddObserver registers an observer for every processed event.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Registry returns the handler registry the engine resolves modules from.
func (e *Engine) Registry() *HandlerRegistry {
	return e.registry
}

// AddRule activates a copy of rule and returns its UID.
//
// Activation is all-or-nothing: every module must resolve in the registry
// and pass its type schema before any handler is created. If a factory or a
// trigger's Arm fails, the handlers created so far are disposed and the rule
// is not added.
//
// Parameters:
//   - ctx: reserved for cancellation of slow activations
//   - rule: the rule to activate; missing UID and module IDs are generated
//
// Returns:
//   - string: the UID of the active rule
//   - error: ErrInvalidRule, ErrRuleExists, ErrUnresolvedModuleType,
//     ErrInvalidConfiguration or a handler creation error
func (e *Engine) AddRule(ctx context.Context, rule *Rule) (string, error) {
	if rule == nil {
		return "", fmt.Errorf("%w: nil rule", ErrInvalidRule)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r := rule.DeepCopy()
	r.prepare()
	if err := ValidateRule(r); err != nil {
		return "", err
	}

	e.mu.RLock()
	_, exists := e.rules[r.UID]
	e.mu.RUnlock()
	if exists {
		return "", fmt.Errorf("%w: %s", ErrRuleExists, r.UID)
	}

	if err := e.resolveModules(r); err != nil {
		return "", err
	}

	rt, err := e.createHandlers(r)
	if err != nil {
		return "", err
	}

	rt.lifecycle.Lock()
	defer rt.lifecycle.Unlock()

	e.mu.Lock()
	if _, exists := e.rules[r.UID]; exists {
		e.mu.Unlock()
		e.disposeAll(r.UID, rt.handlers())
		return "", fmt.Errorf("%w: %s", ErrRuleExists, r.UID)
	}
	e.rules[r.UID] = rt
	e.mu.Unlock()

	for i, t := range rt.triggers {
		if err := t.handler.Arm(e.callback(r.UID, t.module.ID)); err != nil {
			for _, armed := range rt.triggers[:i] {
				armed.handler.Disarm()
			}
			rt.setState(StateCreated)
			e.forget(r.UID, rt)
			e.metrics.forgetRule(r.UID)
			e.disposeAll(r.UID, rt.handlers())
			return "", fmt.Errorf("arming trigger %s of rule %s: %w", t.module.ID, r.UID, err)
		}
	}

	rt.setState(StateActive)
	go e.runWorker(rt)

	e.metrics.ruleAdded()
	e.logger.Info("rule added",
		"rule_uid", r.UID,
		"name", r.Name,
		"triggers", len(r.Triggers),
		"conditions", len(r.Conditions),
		"actions", len(r.Actions),
	)
	return r.UID, nil
}

// resolveModules checks every module resolves and replaces each module's
// configuration with its schema-normalised copy.
func (e *Engine) resolveModules(r *Rule) error {
	var unresolved []string
	for _, m := range r.Modules() {
		if !e.registry.Resolves(m.Kind, m.TypeID) {
			unresolved = append(unresolved, fmt.Sprintf("%s %s (type %s)", m.Kind, m.ID, m.TypeID))
		}
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("%w: rule %s: %s", ErrUnresolvedModuleType, r.UID, strings.Join(unresolved, ", "))
	}

	for _, list := range [][]Module{r.Triggers, r.Conditions, r.Actions} {
		for i := range list {
			typ, ok := e.registry.Type(list[i].Kind, list[i].TypeID)
			if !ok {
				return fmt.Errorf("%w: rule %s: %s %s (type %s)", ErrUnresolvedModuleType, r.UID, list[i].Kind, list[i].ID, list[i].TypeID)
			}
			cfg, err := typ.Normalize(list[i].Configuration)
			if err != nil {
				return fmt.Errorf("rule %s module %s: %w", r.UID, list[i].ID, err)
			}
			list[i].Configuration = cfg
		}
	}
	return nil
}

// createHandlers builds one handler per module. On failure every handler
// created so far is disposed.
func (e *Engine) createHandlers(r *Rule) (*ruleRuntime, error) {
	rt := &ruleRuntime{
		rule:  r,
		state: StateActivating,
		queue: make(chan firing, e.cfg.QueueSize),
		done:  make(chan struct{}),
	}

	var created []Handler
	for _, m := range r.Modules() {
		h, err := e.registry.CreateHandler(m.Kind, m.TypeID, m)
		if err != nil {
			e.disposeAll(r.UID, created)
			if errors.Is(err, ErrUnresolvedType) {
				return nil, fmt.Errorf("%w: rule %s: %w", ErrUnresolvedModuleType, r.UID, err)
			}
			return nil, err
		}
		created = append(created, h)

		switch m.Kind {
		case TriggerModule:
			rt.triggers = append(rt.triggers, boundTrigger{module: m, handler: h.(TriggerHandler)})
		case ConditionModule:
			rt.conditions = append(rt.conditions, boundCondition{module: m, handler: h.(ConditionHandler)})
		case ActionModule:
			rt.actions = append(rt.actions, boundAction{module: m, handler: h.(ActionHandler)})
		}
	}
	return rt, nil
}

// callback binds a trigger's events to its rule.
func (e *Engine) callback(ruleUID, triggerID string) TriggerCallback {
	return func(inputs Inputs) {
		if err := e.Fire(ruleUID, triggerID, inputs); err != nil {
			e.logger.Warn("trigger event dropped",
				"rule_uid", ruleUID,
				"trigger_id", triggerID,
				"error", err,
			)
		}
	}
}

// Fire delivers one trigger event to a rule.
//
// Events for unknown or inactive rules, or naming a trigger the rule does
// not own, are dropped without error. A full queue drops the event and
// returns ErrQueueFull.
func (e *Engine) Fire(ruleUID, triggerID string, inputs Inputs) error {
	return e.submit(ruleUID, firing{triggerID: triggerID, inputs: cloneInputs(inputs), firedAt: time.Now().UTC()}, false)
}

// RunNow queues a manual run of the rule. Conditions still apply; the run
// carries no trigger.
func (e *Engine) RunNow(ruleUID string, inputs Inputs) error {
	return e.submit(ruleUID, firing{inputs: cloneInputs(inputs), firedAt: time.Now().UTC()}, true)
}

func (e *Engine) submit(ruleUID string, f firing, strict bool) error {
	e.mu.RLock()
	rt, ok := e.rules[ruleUID]
	e.mu.RUnlock()

	if !ok {
		e.metrics.recordEvent("", "dropped")
		if strict {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, ruleUID)
		}
		return nil
	}
	if !strict && !rt.ownsTrigger(f.triggerID) {
		e.metrics.recordEvent(ruleUID, "dropped")
		e.logger.Debug("event for unknown trigger dropped", "rule_uid", ruleUID, "trigger_id", f.triggerID)
		return nil
	}

	accepted, err := rt.enqueue(f)
	switch {
	case err != nil:
		e.metrics.recordEvent(ruleUID, "queue_full")
		return fmt.Errorf("rule %s: %w", ruleUID, err)
	case !accepted:
		e.metrics.recordEvent(ruleUID, "dropped")
		if strict {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, ruleUID)
		}
		return nil
	default:
		e.metrics.recordEvent(ruleUID, "accepted")
		return nil
	}
}

// runWorker drains the rule's queue until RemoveRule closes it. Events still
// queued once the rule leaves the active state are dropped.
func (e *Engine) runWorker(rt *ruleRuntime) {
	defer close(rt.done)

	for f := range rt.queue {
		if rt.currentState() != StateActive {
			e.metrics.recordEvent(rt.rule.UID, "dropped")
			continue
		}
		e.process(rt, f)
	}
}

// process evaluates the conditions and runs the body for one event, then
// records the outcome.
func (e *Engine) process(rt *ruleRuntime, f firing) {
	exec := &RuleExecution{
		ID:          GenerateID(),
		RuleUID:     rt.rule.UID,
		RuleName:    rt.rule.Name,
		TriggerID:   f.triggerID,
		TriggeredAt: f.firedAt,
		StartedAt:   time.Now().UTC(),
	}

	ctx, span := e.tracer.Start(context.Background(), "automation.rule.execute",
		trace.WithAttributes(
			attribute.String("rule.uid", exec.RuleUID),
			attribute.String("rule.trigger_id", exec.TriggerID),
		),
	)
	defer span.End()

	exec.Status, exec.Error = e.execute(ctx, rt, f, exec)

	exec.CompletedAt = time.Now().UTC()
	elapsed := exec.CompletedAt.Sub(exec.StartedAt)
	exec.DurationMS = int(elapsed.Milliseconds())

	span.SetAttributes(
		attribute.String("rule.status", string(exec.Status)),
		attribute.Int("rule.actions_invoked", exec.ActionsInvoked),
	)
	if exec.Error != "" {
		span.SetStatus(codes.Error, exec.Error)
	}

	e.metrics.recordExecution(exec, elapsed)
	e.logExecution(exec)
	e.notify(ctx, exec)
}

func (e *Engine) execute(ctx context.Context, rt *ruleRuntime, f firing, exec *RuleExecution) (ExecutionStatus, string) {
	for _, c := range rt.conditions {
		exec.ConditionsEvaluated++

		var satisfied bool
		err := e.guard(ctx, rt.rule.UID, "condition "+c.module.ID, e.cfg.ConditionTimeout, func(ctx context.Context) error {
			ok, err := c.handler.IsSatisfied(ctx, cloneInputs(f.inputs))
			satisfied = ok
			return err
		})
		if err != nil {
			return failureStatus(err), fmt.Sprintf("condition %s: %v", c.module.ID, err)
		}
		if !satisfied {
			return StatusSkipped, ""
		}
	}

	run := &Run{
		RuleUID:       rt.rule.UID,
		Inputs:        cloneInputs(f.inputs),
		Configuration: rt.rule.Configuration.Clone(),
		actions:       rt.actions,
		metrics:       e.metrics,
	}
	if t, ok := rt.trigger(f.triggerID); ok {
		run.Trigger = t.module.clone()
	}

	body := rt.rule.Body
	if body == nil {
		body = defaultBody
	}

	err := e.guard(ctx, rt.rule.UID, "body", e.cfg.BodyTimeout, func(ctx context.Context) error {
		return body(ctx, run)
	})
	exec.ActionsInvoked = int(run.invoked.Load())
	if err != nil {
		return failureStatus(err), err.Error()
	}
	return StatusCompleted, ""
}

// guard runs step under a deadline and converts panics into errors.
//
// When the deadline passes, the step's context is cancelled and the timeout
// is logged straight away, but guard still waits for the step to return so a
// rule never has two steps in flight.
func (e *Engine) guard(ctx context.Context, ruleUID, what string, timeout time.Duration, step func(context.Context) error) error {
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("%s panicked: %v", what, p)
			}
		}()
		done <- step(ctx)
	}()

	late, err := awaitStep(ctx, done, func() {
		e.logger.Warn("rule step timed out, waiting for it to return",
			"rule_uid", ruleUID,
			"step", what,
			"timeout", timeout.String(),
		)
	})
	switch {
	case late && err != nil:
		return fmt.Errorf("%w: %s exceeded %s: %w", ErrRuleTimeout, what, timeout, err)
	case late:
		return fmt.Errorf("%w: %s exceeded %s", ErrRuleTimeout, what, timeout)
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s exceeded %s: %w", ErrRuleTimeout, what, timeout, err)
	default:
		return err
	}
}

// awaitStep waits for a step's result. A result that is already in when the
// deadline passes wins over the deadline. Otherwise onLate runs and
// awaitStep keeps waiting, reporting late.
func awaitStep(ctx context.Context, done <-chan error, onLate func()) (late bool, err error) {
	select {
	case err := <-done:
		return false, err
	case <-ctx.Done():
	}
	select {
	case err := <-done:
		return false, err
	default:
	}
	onLate()
	return true, <-done
}

func failureStatus(err error) ExecutionStatus {
	if errors.Is(err, ErrRuleTimeout) {
		return StatusTimeout
	}
	return StatusFailed
}

func (e *Engine) logExecution(exec *RuleExecution) {
	args := []any{
		"rule_uid", exec.RuleUID,
		"execution_id", exec.ID,
		"trigger_id", exec.TriggerID,
		"status", string(exec.Status),
		"duration_ms", exec.DurationMS,
	}
	switch exec.Status {
	case StatusCompleted:
		e.logger.Info("rule executed", append(args, "actions_invoked", exec.ActionsInvoked)...)
	case StatusSkipped:
		e.logger.Debug("rule conditions not met", args...)
	case StatusTimeout:
		e.logger.Warn("rule execution timed out", append(args, "error", exec.Error)...)
	default:
		e.logger.Error("rule execution failed", append(args, "error", exec.Error)...)
	}
}

// notify hands a copy of the record to each observer. A panicking observer
// is logged and skipped.
func (e *Engine) notify(ctx context.Context, exec *RuleExecution) {
	e.mu.RLock()
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					e.logger.Error("execution observer panicked", "rule_uid", exec.RuleUID, "panic", fmt.Sprint(p))
				}
			}()
			cpy := *exec
			o.RuleExecuted(ctx, &cpy)
		}()
	}
}

// RemoveRule deactivates a rule and disposes its handlers.
//
// Triggers are disarmed first, then the in-flight event (if any) runs to
// completion and queued events are dropped. Dispose failures are logged and
// do not stop the teardown. Removing an unknown rule is a no-op.
//
// If ctx ends while an event is still in flight, RemoveRule returns the
// context error and the teardown finishes in the background.
func (e *Engine) RemoveRule(ctx context.Context, uid string) error {
	e.mu.RLock()
	rt, ok := e.rules[uid]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	rt.lifecycle.Lock()
	defer rt.lifecycle.Unlock()

	rt.mu.Lock()
	if rt.state != StateActive {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateDeactivating
	rt.mu.Unlock()

	for _, t := range rt.triggers {
		t.handler.Disarm()
	}

	rt.mu.Lock()
	close(rt.queue)
	rt.mu.Unlock()

	select {
	case <-rt.done:
		e.finishRemoval(rt)
		return nil
	case <-ctx.Done():
		e.logger.Warn("rule removal waiting on in-flight execution", "rule_uid", uid)
		go func() {
			<-rt.done
			e.finishRemoval(rt)
		}()
		return fmt.Errorf("removing rule %s: %w", uid, ctx.Err())
	}
}

func (e *Engine) finishRemoval(rt *ruleRuntime) {
	uid := rt.rule.UID
	e.disposeAll(uid, rt.handlers())
	rt.setState(StateRemoved)
	e.forget(uid, rt)
	e.metrics.ruleRemoved()
	e.metrics.forgetRule(uid)
	e.logger.Info("rule removed", "rule_uid", uid)
}

// forget drops rt from the rule table if it is still the registered runtime.
func (e *Engine) forget(uid string, rt *ruleRuntime) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rules[uid] == rt {
		delete(e.rules, uid)
	}
}

// disposeAll disposes every handler, logging failures.
func (e *Engine) disposeAll(ruleUID string, handlers []Handler) {
	for _, h := range handlers {
		if err := safeDispose(h); err != nil {
			e.metrics.recordDisposeError()
			e.logger.Warn("handler dispose failed",
				"rule_uid", ruleUID,
				"handler", fmt.Sprintf("%T", h),
				"error", fmt.Errorf("%w: %w", ErrHandlerDispose, err),
			)
		}
	}
}

func safeDispose(h Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("dispose panicked: %v", p)
		}
	}()
	return h.Dispose()
}

// Rule returns a copy of the active rule.
func (e *Engine) Rule(uid string) (*Rule, bool) {
	e.mu.RLock()
	rt, ok := e.rules[uid]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return rt.rule.DeepCopy(), true
}

// State returns the lifecycle state of a rule known to the engine.
func (e *Engine) State(uid string) (RuleState, bool) {
	e.mu.RLock()
	rt, ok := e.rules[uid]
	e.mu.RUnlock()
	if !ok {
		return "", false
	}
	return rt.currentState(), true
}

// Rules lists the rules known to the engine sorted by name, then UID.
func (e *Engine) Rules() []RuleSummary {
	e.mu.RLock()
	runtimes := make([]*ruleRuntime, 0, len(e.rules))
	for _, rt := range e.rules {
		runtimes = append(runtimes, rt)
	}
	e.mu.RUnlock()

	out := make([]RuleSummary, 0, len(runtimes))
	for _, rt := range runtimes {
		out = append(out, rt.rule.summary(rt.currentState()))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// Shutdown removes every rule. Errors from individual removals are joined.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	uids := make([]string, 0, len(e.rules))
	for uid := range e.rules {
		uids = append(uids, uid)
	}
	e.mu.RUnlock()

	var errs []error
	for _, uid := range uids {
		if err := e.RemoveRule(ctx, uid); err != nil {
			errs = append(errs, err)
		}
	}
	e.logger.Info("rule engine stopped", "rules", len(uids))
	return errors.Join(errs...)
}
