package alerts

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/poller"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
	webhookTimeout  = 10 * time.Second
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
//
// Value is the evaluated field (a delta for delta rules). Channel, Reading,
// Delta and ReadingAt describe the sensor reading behind the alert
// and are refreshed when it resolves. They are empty for state, warnings and
// rows rules.
type Alert struct {
	ID          string     `json:"id"`
	RuleName    string     `json:"rule_name"`
	Condition   string     `json:"condition"`
	SourceID    string     `json:"source_id"`
	SourceState string     `json:"source_state"`
	Severity    string     `json:"severity"`
	Message     string     `json:"message"`
	Channel     string     `json:"channel,omitempty"`
	Value       float64    `json:"value"`
	Reading     *float64   `json:"reading,omitempty"`
	Delta       *float64   `json:"delta,omitempty"`
	ReadingAt   *time.Time `json:"reading_at,omitempty"`
	FiredAt     time.Time  `json:"fired_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	State       string     `json:"state"`
}

// Engine evaluates alert rules against incoming frames and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:sourceID"
	lastFire map[string]time.Time // for cooldown
	history  []*Alert             // recently resolved alerts
	client   *resty.Client
	now      func() time.Time

	// deliverFn sends notifications; tests replace it to run synchronously.
	deliverFn func(*Alert)
}

// New creates an Engine from the alert configuration.
// An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   resty.New().SetTimeout(webhookTimeout),
		now:      time.Now,
	}
	e.deliverFn = func(a *Alert) { go e.deliver(a) }
	return e
}

// Evaluate tests all configured rules against f.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(f *poller.Frame) {
	if len(e.rules) == 0 || f == nil {
		return
	}

	now := e.now()
	for _, rule := range e.rules {
		fires, value, ok := evalCondition(rule.Condition, f)
		if !ok {
			continue
		}
		if fires {
			e.fire(rule, f, value, now)
		} else {
			e.resolve(rule, f, value, now)
		}
	}
}

func (e *Engine) fire(rule config.AlertRule, f *poller.Frame, value float64, now time.Time) {
	sourceID := f.SourceID
	key := rule.Name + ":" + sourceID

	e.mu.Lock()
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, seen := e.lastFire[key]; seen && now.Sub(last) <= cooldown {
		e.mu.Unlock()
		return
	}

	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:        uuid.NewString(),
		RuleName:  rule.Name,
		Condition: rule.Condition,
		SourceID:  sourceID,
		Severity:  sev,
		FiredAt:   now,
		State:     StateFiring,
	}
	a.observe(f, value)
	a.Message = fmt.Sprintf("%s on %s: %s", rule.Name, sourceID, describe(a))
	e.active[key] = a
	e.lastFire[key] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alert fired",
		"rule", rule.Name,
		"source", sourceID,
		"value", value,
		"severity", sev,
	)
	e.deliverFn(&alertCopy)
}

func (e *Engine) resolve(rule config.AlertRule, f *poller.Frame, value float64, now time.Time) {
	sourceID := f.SourceID
	key := rule.Name + ":" + sourceID

	e.mu.Lock()
	a, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	a.observe(f, value)
	a.Message = fmt.Sprintf("%s on %s recovered: %s", rule.Name, sourceID, describe(a))
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alert resolved", "rule", rule.Name, "source", sourceID)
	e.deliverFn(&alertCopy)
}

// observe records the frame's reading for the alert's channel.
func (a *Alert) observe(f *poller.Frame, value float64) {
	a.SourceState = f.State
	a.Value = value
	a.Channel = conditionChannel(a.Condition)
	a.Reading = nil
	a.Delta = nil
	a.ReadingAt = nil
	if a.Channel == "" || f.Stale {
		return
	}
	if v, ok := f.Snapshot.Latest()[a.Channel]; ok {
		a.Reading = &v
	}
	if d, ok := f.Delta.Value(a.Channel); ok {
		a.Delta = &d
	}
	if last, ok := f.Snapshot.Last(); ok && last.HasTime() {
		t := last.Time
		a.ReadingAt = &t
	}
}

// describe renders the reading behind a for messages.
func describe(a *Alert) string {
	if a.Channel == "" {
		return fmt.Sprintf("%s (source %s)", a.Condition, a.SourceState)
	}
	v := a.Value
	if a.Reading != nil {
		v = *a.Reading
	}
	s := fmt.Sprintf("%s = %.2f", a.Channel, v)
	if a.Delta != nil {
		s += fmt.Sprintf(" (%+.2f since last poll)", *a.Delta)
	}
	return s + ", rule " + a.Condition
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))
	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
