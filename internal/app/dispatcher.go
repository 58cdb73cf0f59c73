package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ayusman/handsignal/internal/metrics"
	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/plugin"
	"github.com/ayusman/handsignal/internal/session"
	"github.com/ayusman/handsignal/internal/store"
)

// BindingSource looks up the binding of a direction.
type BindingSource interface {
	GetByDirection(d movement.Direction) (*store.Binding, error)
}

// PluginResolver finds a plugin that declares an action.
type PluginResolver interface {
	Resolve(name, action string) (*plugin.Plugin, error)
}

// Runner executes a plugin request.
type Runner interface {
	Execute(ctx context.Context, p *plugin.Plugin, req *plugin.Request) (*plugin.Response, error)
}

// actionParams is sent to plugins as Request.Params.
type actionParams struct {
	SessionID string  `json:"session_id"`
	Magnitude float64 `json:"magnitude"`
	Speed     float64 `json:"speed"`
}

// Dispatcher fires the bound plugin action whenever the dominant direction
// of a tracking session changes. Attempts are at least Cooldown apart; a
// change arriving during the cooldown, or whose action failed, is picked up
// by a later reading.
type Dispatcher struct {
	bindings BindingSource
	plugins  PluginResolver
	runner   Runner
	metrics  *metrics.Metrics
	cooldown time.Duration
	now      func() time.Time

	last      movement.Direction
	lastFired time.Time
	onFire    func(movement.Direction, *store.Binding)
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(bindings BindingSource, plugins PluginResolver, runner Runner, cooldown time.Duration, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.New()
	}
	return &Dispatcher{
		bindings: bindings,
		plugins:  plugins,
		runner:   runner,
		metrics:  m,
		cooldown: cooldown,
		now:      time.Now,
		last:     movement.None,
	}
}

// OnFire registers a callback run after every executed action.
func (d *Dispatcher) OnFire(fn func(movement.Direction, *store.Binding)) {
	d.onFire = fn
}

// Run handles readings until ctx is done or the channel is closed.
func (d *Dispatcher) Run(ctx context.Context, readings <-chan session.Readings) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-readings:
			if !ok {
				return
			}
			if _, err := d.Handle(ctx, r); err != nil {
				d.metrics.PluginFailures.Add(1)
				log.Printf("Action for %s failed: %v", r.Dominant, err)
			}
		}
	}
}

// Handle processes one readings update and reports whether an action ran.
func (d *Dispatcher) Handle(ctx context.Context, r session.Readings) (bool, error) {
	if !r.IsTracking {
		d.last = movement.None
		return false, nil
	}

	dir := r.Dominant
	if dir == d.last {
		return false, nil
	}

	now := d.now()
	if !d.lastFired.IsZero() && now.Sub(d.lastFired) < d.cooldown {
		return false, nil
	}

	binding, err := d.bindings.GetByDirection(dir)
	if err != nil {
		d.lastFired = now
		return false, fmt.Errorf("look up binding: %w", err)
	}
	if binding == nil || !binding.Enabled {
		d.last = dir
		return false, nil
	}

	// Until the action succeeds the change stays pending, so a failed
	// attempt is retried at most once per cooldown.
	d.lastFired = now

	p, err := d.plugins.Resolve(binding.PluginName, binding.ActionName)
	if err != nil {
		return false, err
	}

	var magnitude float64
	if r.Movement != nil {
		magnitude = r.Movement.Magnitude
	}
	params, err := json.Marshal(actionParams{
		SessionID: r.SessionID,
		Magnitude: magnitude,
		Speed:     r.Speed,
	})
	if err != nil {
		return false, err
	}

	resp, err := d.runner.Execute(ctx, p, &plugin.Request{
		Action:    binding.ActionName,
		Direction: string(dir),
		Command:   dir.Command(),
		Config:    binding.Config,
		Params:    params,
	})
	if err != nil {
		return false, err
	}
	if !resp.Success {
		return false, fmt.Errorf("plugin %s: %s", p.Manifest.Name, resp.Error)
	}

	d.last = dir
	d.metrics.PluginsExecuted.Add(1)
	log.Printf("Direction %s -> %s/%s", dir.Command(), binding.PluginName, binding.ActionName)
	if d.onFire != nil {
		d.onFire(dir, binding)
	}
	return true, nil
}
