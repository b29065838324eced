// Package license coordinates credential leasing for a session.
//
// Certain server features (automation control, battery emulation) require a
// reserved license. On connect the coordinator inspects the license list,
// reserves an available license for each wanted category that the session
// does not already cover, and remembers which reservations it made itself.
// On disconnect it returns exactly those; licenses the user reserved before
// connecting are never touched.
//
// Reservation is the only place in the library that retries automatically:
// when no usable license is available the coordinator re-fetches the list at
// a fixed interval until one frees up or the deadline passes.
package license

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	oerrors "otii-client/errors"
	"otii-client/logx"
)

// State names the coordinator's position in the session lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateLoggingIn
	StateReservingLicenses
	StateReady
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLoggingIn:
		return "logging_in"
	case StateReservingLicenses:
		return "reserving_licenses"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CategoryMap maps a wanted credential category to the license types usable
// for it. An Enterprise license, for example, covers both Automation and
// Battery. Kept as one table so the mapping stays visible and testable.
var CategoryMap = map[string][]string{
	"Automation": {"Admin", "All", "Automation", "Enterprise"},
	"Battery":    {"Admin", "All", "Battery", "Enterprise"},
}

// License is one entry of the server's license list.
type License struct {
	ID         int     `json:"id"`
	Type       string  `json:"type"`
	Available  bool    `json:"available"`
	ReservedTo string  `json:"reserved_to"`
	Hostname   string  `json:"hostname"`
	Addons     []Addon `json:"addons"`
}

// Addon is a feature attached to a license.
type Addon struct {
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

// Lease records a reservation this process holds. Only auto-acquired leases
// are returned on disconnect.
type Lease struct {
	ID           int
	Category     string
	AutoAcquired bool
}

// Sender issues one command and returns the response payload. Satisfied by
// *client.Client.
type Sender interface {
	Send(cmd string, data any) (json.RawMessage, error)
}

// Credentials authenticate a user against the license server.
type Credentials struct {
	Username string
	Password string
}

// CredentialSource supplies credentials for automatic login. It reports
// false when none are configured.
type CredentialSource func() (Credentials, bool)

// DefaultRetryInterval is the fixed wait between reservation attempts.
const DefaultRetryInterval = time.Second

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetryInterval overrides the wait between reservation attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithCredentials installs the source used for automatic login.
func WithCredentials(src CredentialSource) Option {
	return func(c *Coordinator) { c.creds = src }
}

// WithLogger overrides the coordinator's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// Coordinator acquires and returns license leases for one session.
type Coordinator struct {
	sender   Sender
	creds    CredentialSource
	interval time.Duration
	log      zerolog.Logger

	mu           sync.Mutex
	state        State
	leases       []Lease
	autoLoggedIn bool
}

// NewCoordinator creates a coordinator for a session being established.
func NewCoordinator(s Sender, opts ...Option) *Coordinator {
	c := &Coordinator{
		sender:   s,
		interval: DefaultRetryInterval,
		log:      logx.Log,
		state:    StateConnecting,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Leases returns a copy of the leases this session holds.
func (c *Coordinator) Leases() []Lease {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.leases)
}

// AutoLoggedIn reports whether the coordinator itself performed the login.
func (c *Coordinator) AutoLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoLoggedIn
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()
	c.log.Debug().Stringer("from", from).Stringer("to", s).Msg("license state")
}

// EnsureLicenses makes sure the session holds a usable license for every
// wanted category. Categories already covered by a license reserved to this
// session are left alone; for the rest the first available usable license is
// reserved and recorded as auto-acquired. When no usable license is
// available the attempt is repeated at the retry interval until deadline has
// elapsed, then fails with errors.ErrLicenseUnavailable.
func (c *Coordinator) EnsureLicenses(categories []string, deadline time.Duration) error {
	for _, cat := range categories {
		if _, ok := CategoryMap[cat]; !ok {
			return fmt.Errorf("license: unknown category %q", cat)
		}
	}

	c.setState(StateReservingLicenses)
	if _, err := c.fetch(); err != nil {
		// A license list refusal means no user is logged in yet.
		if _, ok := oerrors.AsRemote(err); !ok {
			return err
		}
		if err := c.login(); err != nil {
			return err
		}
		c.setState(StateReservingLicenses)
	}

	start := time.Now()
	for {
		missing, err := c.reserveOnce(categories)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			c.setState(StateReady)
			return nil
		}
		if time.Since(start) > deadline {
			return fmt.Errorf("%w: categories %v", oerrors.ErrLicenseUnavailable, missing)
		}
		c.log.Info().
			Strs("categories", missing).
			Dur("retry_in", c.interval).
			Msg("no license available, retrying")
		time.Sleep(c.interval)
	}
}

// Release returns every auto-acquired lease and logs out if the coordinator
// itself performed the login. Pre-existing reservations are left untouched.
func (c *Coordinator) Release() error {
	c.setState(StateDisconnecting)
	c.mu.Lock()
	leases := c.leases
	c.leases = nil
	autoLoggedIn := c.autoLoggedIn
	c.autoLoggedIn = false
	c.mu.Unlock()

	var firstErr error
	for _, lease := range leases {
		if !lease.AutoAcquired {
			continue
		}
		if _, err := c.sender.Send("otii_return_license", map[string]any{"license_id": lease.ID}); err != nil {
			c.log.Warn().Err(err).Int("license_id", lease.ID).Msg("returning license")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.log.Info().Int("license_id", lease.ID).Str("category", lease.Category).Msg("license returned")
	}
	if autoLoggedIn {
		if _, err := c.sender.Send("otii_logout", nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.setState(StateDisconnected)
	return firstErr
}

// fetch retrieves the current license list.
func (c *Coordinator) fetch() ([]License, error) {
	data, err := c.sender.Send("otii_get_licenses", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Licenses []License `json:"licenses"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("license: decode license list: %w", err)
	}
	return resp.Licenses, nil
}

// reserveOnce runs one reservation pass and returns the categories still
// missing a usable license.
func (c *Coordinator) reserveOnce(categories []string) ([]string, error) {
	all, err := c.fetch()
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, cat := range categories {
		if hasReserved(all, cat) {
			continue
		}
		lic, ok := firstAvailable(all, cat)
		if !ok {
			missing = append(missing, cat)
			continue
		}
		if _, err := c.sender.Send("otii_reserve_license", map[string]any{"license_id": lic.ID}); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.leases = append(c.leases, Lease{ID: lic.ID, Category: cat, AutoAcquired: true})
		c.mu.Unlock()
		c.log.Info().Int("license_id", lic.ID).Str("category", cat).Str("type", lic.Type).Msg("license reserved")
	}
	return missing, nil
}

func (c *Coordinator) login() error {
	if c.creds == nil {
		return fmt.Errorf("license: login required but no credentials configured")
	}
	creds, ok := c.creds()
	if !ok {
		return fmt.Errorf("license: login required but no credentials available")
	}
	c.setState(StateLoggingIn)
	_, err := c.sender.Send("otii_login", map[string]any{
		"username": creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.autoLoggedIn = true
	c.mu.Unlock()
	c.log.Info().Str("username", creds.Username).Msg("logged in")
	return nil
}

// usable reports whether a license of the given type covers the category.
func usable(category, licenseType string) bool {
	return slices.Contains(CategoryMap[category], licenseType)
}

// hasReserved reports whether a license reserved to this session already
// covers the category.
func hasReserved(all []License, category string) bool {
	for _, lic := range all {
		if lic.ReservedTo != "" && lic.Available && usable(category, lic.Type) {
			return true
		}
	}
	return false
}

// firstAvailable returns the first unreserved, available license usable for
// the category.
func firstAvailable(all []License, category string) (License, bool) {
	for _, lic := range all {
		if lic.ReservedTo == "" && lic.Available && usable(category, lic.Type) {
			return lic, true
		}
	}
	return License{}, false
}
