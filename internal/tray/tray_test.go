package tray

import (
	"testing"

	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/session"
)

// The menu items only exist once systray is running; these tests cover the
// state handling that does not need a desktop session.

func TestTray_ToggleRequestsOpposite(t *testing.T) {
	tr := New()

	var requests []bool
	tr.OnToggle(func(track bool) {
		requests = append(requests, track)
	})

	tr.handleToggle()
	tr.SetState(session.Tracking)
	tr.handleToggle()

	if len(requests) != 2 || !requests[0] || requests[1] {
		t.Errorf("requests = %v, want [true false]", requests)
	}
}

func TestTray_UpdateWithoutMenu(t *testing.T) {
	tr := New()

	tr.Update(session.Readings{State: session.Tracking, Dominant: movement.Left})
	if !tr.IsTracking() {
		t.Error("expected tracking after update")
	}

	tr.Update(session.Readings{State: session.Ready})
	if tr.IsTracking() {
		t.Error("expected not tracking after ready")
	}
}

func TestTray_DashboardCallback(t *testing.T) {
	tr := New()
	tr.handleDashboard()

	opened := 0
	tr.OnDashboard(func() { opened++ })
	tr.handleDashboard()

	if opened != 1 {
		t.Errorf("opened = %d, want 1", opened)
	}
}

func TestToggleTitle(t *testing.T) {
	if toggleTitle(true) == toggleTitle(false) {
		t.Error("toggle titles must differ")
	}
}
