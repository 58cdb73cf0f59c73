// Package tray provides the system tray menu of handsignal.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/session"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle    func(track bool)
	onDashboard func()
	onQuit      func()
	tracking    bool
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuState     *systray.MenuItem
	menuDirection *systray.MenuItem
}

// New creates a new Tray instance. Tracking is off until SetState says otherwise.
func New() *Tray {
	return &Tray{}
}

// OnToggle sets the callback run when the user asks to start (true) or
// stop (false) tracking.
func (t *Tray) OnToggle(fn func(track bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the callback function to be called when the dashboard menu item is clicked.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
func (t *Tray) onReady() {
	systray.SetTitle("handsignal")
	systray.SetTooltip("handsignal fingertip direction tracking")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.tracking), "Start or stop tracking")
	systray.AddSeparator()

	t.menuState = systray.AddMenuItem("State: idle", "Session state")
	t.menuState.Disable()
	t.menuDirection = systray.AddMenuItem("Direction: STOP", "Dominant direction")
	t.menuDirection.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit handsignal")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(tracking bool) string {
	if tracking {
		return "■ Stop Tracking"
	}
	return "▶ Start Tracking"
}

// handleToggle asks for the opposite of the current tracking state. The
// menu follows once SetState reports the outcome.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	want := !t.tracking
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(want)
	}
}

// handleDashboard handles the dashboard menu item click.
func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Update reflects a readings snapshot in the menu.
func (t *Tray) Update(r session.Readings) {
	t.SetState(r.State)
	t.SetDirection(r.Dominant)
}

// SetState updates the state line and the toggle item.
func (t *Tray) SetState(s session.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracking = s == session.Tracking
	if t.menuState != nil {
		t.menuState.SetTitle("State: " + s.String())
	}
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(t.tracking))
	}
}

// SetDirection updates the dominant direction display in the menu.
func (t *Tray) SetDirection(d movement.Direction) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuDirection != nil {
		t.menuDirection.SetTitle("Direction: " + d.Command())
	}
}

// IsTracking reports the last state passed to SetState.
func (t *Tray) IsTracking() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tracking
}
