// Package portal is the composition root: it wires the session store,
// tenant resolution, membership guard, live subscriptions and the
// mutation executor into the dashboard lifecycle the UI drives.
package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/guard"
	"github.com/collabhq/portal/internal/live"
	"github.com/collabhq/portal/internal/models"
	"github.com/collabhq/portal/internal/mutate"
	"github.com/collabhq/portal/internal/retry"
	"github.com/collabhq/portal/internal/session"
	"github.com/collabhq/portal/internal/tenant"
)

// Dashboard is the published view of the active tenant: who the viewer
// is within the organization and the live collections on screen.
type Dashboard struct {
	OrgID         string
	Organization  *models.Organization
	Membership    *models.Membership
	Requests      []*models.Request
	Activity      []*models.Activity
	Notifications []*models.Notification
}

// Config wires the core's collaborators.
type Config struct {
	Docs     docstore.Store
	Session  *session.Store
	Nav      tenant.Navigator
	Notifier mutate.Notifier
	Logger   zerolog.Logger

	// Retry applies to mutation writes. Zero value uses defaults.
	Retry retry.Options

	// RefreshInterval bounds staleness of the membership view. Zero uses
	// the live package default.
	RefreshInterval time.Duration
}

// Core owns the dashboard lifecycle for one client. Not safe to share
// across tenants; each signed-in session gets its own core.
type Core struct {
	cfg       Config
	guard     *guard.Guard
	switcher  *tenant.Switcher
	hub       *live.Hub
	refresher *live.Refresher
	exec      *mutate.Executor[func()]

	mu          sync.Mutex
	dash        Dashboard
	watchers    map[int]func(Dashboard)
	nextWatcher int
	pending     []func()
	delivering  bool

	notifCancel    func()
	notifPrincipal string
}

// NewCore creates a core. Call OpenDashboard once the session is signed
// in; Close tears everything down.
func NewCore(cfg Config) *Core {
	c := &Core{
		cfg:       cfg,
		guard:     guard.New(cfg.Docs, cfg.Logger),
		switcher:  tenant.NewSwitcher(cfg.Nav, cfg.Logger),
		refresher: live.NewRefresher(cfg.RefreshInterval, cfg.Logger),
		exec:      mutate.NewExecutor[func()](cfg.Logger, cfg.Notifier, cfg.Retry),
		watchers:  make(map[int]func(Dashboard)),
	}
	c.hub = live.NewHub(c.buildAdapters, cfg.Logger)
	return c
}

// Switcher exposes the tenant switcher for navigation-level callers.
func (c *Core) Switcher() *tenant.Switcher {
	return c.switcher
}

// Snapshot returns the current dashboard view.
func (c *Core) Snapshot() Dashboard {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dash.clone()
}

// OnChange registers a dashboard watcher; it fires on every published
// change. The returned cancel is safe to call more than once.
func (c *Core) OnChange(fn func(Dashboard)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}
}

// OpenDashboard resolves the active organization, verifies (and heals)
// the viewer's membership, then attaches the tenant-scoped live
// subscriptions. The guard runs to completion before any subscription
// opens.
func (c *Core) OpenDashboard(ctx context.Context) error {
	snap := c.cfg.Session.Snapshot()
	if !snap.Authenticated || snap.Profile == nil {
		return fault.PermissionDenied("portal.open", fault.ErrAccessDenied)
	}

	orgID := c.switcher.Active()
	if orgID == "" {
		return fault.Validation("portal.open", fmt.Errorf("no active organization"))
	}

	membership, err := c.guard.EnsureMembership(ctx, orgID, snap.Profile)
	if err != nil {
		return err
	}

	// The organization document is display data (name, plan tier); a
	// missing or failed read never blocks the dashboard.
	var org *models.Organization
	if doc, err := c.cfg.Docs.GetDocument(ctx, docstore.OrganizationPath(orgID)); err == nil {
		org = models.DecodeOrganization(doc.Data)
	} else if !fault.IsNotFound(err) {
		c.cfg.Logger.Warn().Err(err).Str("org_id", orgID).Msg("organization read failed")
	}

	c.mu.Lock()
	c.dash.OrgID = orgID
	c.dash.Organization = org
	c.dash.Membership = membership
	c.publishLocked()
	c.mu.Unlock()

	c.hub.SwitchScope(ctx, orgID)
	c.attachNotifications(ctx, snap.Profile.PrincipalID)
	c.refresher.Start(ctx, c.refreshMembership)

	c.cfg.Logger.Info().
		Str("org_id", orgID).
		Str("principal_id", snap.Profile.PrincipalID).
		Str("role", membership.Role).
		Msg("dashboard opened")
	return nil
}

// CloseDashboard detaches every subscription and clears the view. The
// core remains usable for a later OpenDashboard.
func (c *Core) CloseDashboard(ctx context.Context) {
	c.refresher.Stop()
	c.hub.SwitchScope(ctx, "")

	c.mu.Lock()
	notifCancel := c.notifCancel
	c.notifCancel = nil
	c.notifPrincipal = ""
	c.dash = Dashboard{}
	c.publishLocked()
	c.mu.Unlock()

	if notifCancel != nil {
		notifCancel()
	}
}

// SwitchOrganization switches the active tenant and reopens the
// dashboard against it. A rejected switch leaves the current dashboard
// untouched.
func (c *Core) SwitchOrganization(ctx context.Context, targetOrg string) error {
	snap := c.cfg.Session.Snapshot()
	if !snap.Authenticated || snap.Profile == nil {
		return fault.PermissionDenied("portal.switch", fault.ErrAccessDenied)
	}

	if err := c.switcher.Switch(ctx, targetOrg, snap.Profile); err != nil {
		return err
	}
	return c.OpenDashboard(ctx)
}

// Close tears the core down for good.
func (c *Core) Close() {
	c.refresher.Stop()
	c.hub.Close()

	c.mu.Lock()
	notifCancel := c.notifCancel
	c.notifCancel = nil
	c.mu.Unlock()

	if notifCancel != nil {
		notifCancel()
	}
}

// buildAdapters is the hub factory: the adapter set for one organization
// scope. Each callback re-checks the captured org id against the active
// one, so a snapshot still in flight across an organization switch is
// dropped instead of landing on the new tenant's dashboard.
// Notifications are user-scoped and handled outside the hub so they
// survive organization switches.
func (c *Core) buildAdapters(ctx context.Context, orgID string) []live.Disposable {
	requests := live.RequestsByOrg(c.cfg.Docs, c.cfg.Session, c.cfg.Logger, orgID, func(items []*models.Request) {
		c.mu.Lock()
		if c.dash.OrgID == orgID {
			c.dash.Requests = items
			c.publishLocked()
		}
		c.mu.Unlock()
	})
	activity := live.ActivityByOrg(c.cfg.Docs, c.cfg.Session, c.cfg.Logger, orgID, func(items []*models.Activity) {
		c.mu.Lock()
		if c.dash.OrgID == orgID {
			c.dash.Activity = items
			c.publishLocked()
		}
		c.mu.Unlock()
	})

	requests.Start(ctx)
	activity.Start(ctx)
	return []live.Disposable{requests, activity}
}

func (c *Core) attachNotifications(ctx context.Context, principalID string) {
	c.mu.Lock()
	if c.notifPrincipal == principalID {
		c.mu.Unlock()
		return
	}
	oldCancel := c.notifCancel
	c.notifPrincipal = principalID
	c.notifCancel = nil
	c.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}

	adapter := live.NotificationsByUser(c.cfg.Docs, c.cfg.Session, c.cfg.Logger, principalID, func(items []*models.Notification) {
		c.mu.Lock()
		if c.notifPrincipal == principalID {
			c.dash.Notifications = items
			c.publishLocked()
		}
		c.mu.Unlock()
	})
	adapter.Start(ctx)

	c.mu.Lock()
	c.notifCancel = adapter.Dispose
	c.mu.Unlock()
}

// refreshMembership re-reads the viewer's membership so role changes
// made elsewhere land within a bounded interval.
func (c *Core) refreshMembership(ctx context.Context) {
	c.mu.Lock()
	orgID := c.dash.OrgID
	current := c.dash.Membership
	c.mu.Unlock()
	if orgID == "" || current == nil {
		return
	}

	doc, err := c.cfg.Docs.GetDocument(ctx, docstore.MembershipPath(orgID, current.PrincipalID))
	if err != nil {
		c.cfg.Logger.Debug().Err(err).Str("org_id", orgID).Msg("membership refresh failed")
		return
	}

	fresh := models.DecodeMembership(doc.Data)
	c.mu.Lock()
	if c.dash.OrgID == orgID && c.dash.Membership != nil && c.dash.Membership.Role != fresh.Role {
		c.dash.Membership = fresh
		c.publishLocked()
	}
	c.mu.Unlock()
}

// publishLocked notifies watchers with the current view. Must be called
// with the lock held. Delivery is asynchronous but drains through a
// single dispatcher in publish order, so a watcher never receives an
// older view after a newer one.
func (c *Core) publishLocked() {
	dash := c.dash.clone()
	cbs := make([]func(Dashboard), 0, len(c.watchers))
	for _, cb := range c.watchers {
		cbs = append(cbs, cb)
	}

	c.pending = append(c.pending, func() {
		for _, cb := range cbs {
			cb(dash)
		}
	})
	if c.delivering {
		return
	}
	c.delivering = true
	go c.drainPending()
}

func (c *Core) drainPending() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.delivering = false
			c.mu.Unlock()
			return
		}
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		next()
	}
}

func (d Dashboard) clone() Dashboard {
	out := d
	out.Requests = append([]*models.Request(nil), d.Requests...)
	out.Activity = append([]*models.Activity(nil), d.Activity...)
	out.Notifications = append([]*models.Notification(nil), d.Notifications...)
	return out
}
