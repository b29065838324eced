// Package otii is the typed command facade of the library.
//
// Every method builds one server command and delegates to the client layer;
// results come back decoded, failures as the structured errors of the
// errors package. Connect wires the whole stack together: optional server
// discovery, dial with retry, middleware, and automatic license leasing.
package otii

import (
	"encoding/json"
	"fmt"
	"time"

	"otii-client/client"
	"otii-client/config"
	oerrors "otii-client/errors"
	"otii-client/license"
	"otii-client/logx"
	"otii-client/middleware"
	"otii-client/protocol"
	"otii-client/registry"
	"otii-client/transport"
)

// defaultDeviceFilter selects the device types returned by GetDevices when
// the caller passes no filter.
var defaultDeviceFilter = []string{"Arc", "Ace", "Simulator"}

// Otii is a session with one Otii server.
type Otii struct {
	client *client.Client
	coord  *license.Coordinator
}

// New wraps an established client. License handling is left to the caller;
// use Connect for the managed lifecycle.
func New(c *client.Client) *Otii {
	return &Otii{client: c}
}

// Client exposes the underlying correlator for commands the facade does not
// cover.
func (o *Otii) Client() *client.Client {
	return o.client
}

// Connect establishes a session according to cfg: resolves the server
// address (directly or through the discovery registry), dials with retry
// until the connect timeout, and in auto licensing mode logs in and reserves
// the wanted license categories, retrying until the same timeout.
func Connect(cfg config.Config) (*Otii, error) {
	if cfg.LogLevel != "" {
		logx.Configure(cfg.LogLevel)
	}

	addr := cfg.Address()
	if len(cfg.Registry.Endpoints) > 0 {
		discovered, err := discover(cfg.Registry)
		if err != nil {
			return nil, err
		}
		addr = discovered
	}

	conn, greeting, err := transport.Dial(addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	if e, ok := greeting.(*protocol.ErrorResponse); ok {
		_ = conn.Close()
		return nil, oerrors.NewRemoteError(e.ErrorCode, "connect", e.Data)
	}

	mws := []middleware.Middleware{middleware.Logging(conn.Logger())}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, burst))
	}
	cl := client.New(conn, client.WithMiddleware(mws...))
	o := &Otii{client: cl}

	if cfg.Licensing != config.LicensingManual {
		coord := license.NewCoordinator(cl,
			license.WithLogger(conn.Logger()),
			license.WithCredentials(func() (license.Credentials, bool) {
				creds, ok := config.LoadCredentials(cfg.Credentials)
				return license.Credentials{Username: creds.Username, Password: creds.Password}, ok
			}),
		)
		if err := coord.EnsureLicenses(cfg.Licenses, cfg.ConnectTimeout); err != nil {
			_ = cl.Close()
			return nil, err
		}
		o.coord = coord
	}
	return o, nil
}

func discover(cfg config.RegistryConfig) (string, error) {
	reg, err := registry.NewEtcdRegistry(cfg.Endpoints)
	if err != nil {
		return "", err
	}
	defer func() { _ = reg.Close() }()

	farm := cfg.Farm
	if farm == "" {
		farm = "default"
	}
	instances, err := reg.Discover(farm)
	if err != nil {
		return "", err
	}
	if len(instances) == 0 {
		return "", fmt.Errorf("otii: no server registered for farm %q", farm)
	}
	return instances[0].Addr, nil
}

// Disconnect returns auto-acquired licenses, logs out if this session logged
// in, and closes the connection.
func (o *Otii) Disconnect() error {
	var relErr error
	if o.coord != nil {
		relErr = o.coord.Release()
	}
	if err := o.client.Close(); err != nil {
		return err
	}
	return relErr
}

// Leases returns the license leases held by this session.
func (o *Otii) Leases() []license.Lease {
	if o.coord == nil {
		return nil
	}
	return o.coord.Leases()
}

// call issues cmd with the default timeout and decodes the payload into out
// when out is non-nil.
func call(c *client.Client, cmd string, data any, out any) error {
	return callTimeout(c, cmd, data, client.DefaultTimeout, out)
}

func callTimeout(c *client.Client, cmd string, data any, timeout time.Duration, out any) error {
	payload, err := c.SendTimeout(cmd, data, timeout)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", cmd, err)
	}
	return nil
}

// CreateProject creates a new project and returns it.
func (o *Otii) CreateProject() (*Project, error) {
	var resp struct {
		ProjectID int `json:"project_id"`
	}
	if err := call(o.client, "otii_create_project", nil, &resp); err != nil {
		return nil, err
	}
	return &Project{ID: resp.ProjectID, client: o.client}, nil
}

// GetActiveProject returns the active project, or nil when there is none.
func (o *Otii) GetActiveProject() (*Project, error) {
	var resp struct {
		ProjectID int `json:"project_id"`
	}
	if err := call(o.client, "otii_get_active_project", nil, &resp); err != nil {
		return nil, err
	}
	if resp.ProjectID == -1 {
		return nil, nil
	}
	return &Project{ID: resp.ProjectID, client: o.client}, nil
}

// OpenProject opens an existing project file. force opens it even when
// unsaved data exists; progress requests progress messages while loading.
// The command may operate on large quantities of data, so it waits without
// bound.
func (o *Otii) OpenProject(filename string, force, progress bool) (*Project, error) {
	data := map[string]any{"filename": filename, "force": force, "progress": progress}
	var resp struct {
		ProjectID int    `json:"project_id"`
		Filename  string `json:"filename"`
	}
	if err := callTimeout(o.client, "otii_open_project", data, client.NoTimeout, &resp); err != nil {
		return nil, err
	}
	return &Project{ID: resp.ProjectID, Filename: resp.Filename, client: o.client}, nil
}

// GetBatteryProfiles lists the available battery profiles as raw library
// entries.
func (o *Otii) GetBatteryProfiles() ([]json.RawMessage, error) {
	var resp struct {
		BatteryProfiles []json.RawMessage `json:"battery_profiles"`
	}
	if err := call(o.client, "otii_get_battery_profiles", nil, &resp); err != nil {
		return nil, err
	}
	return resp.BatteryProfiles, nil
}

// GetBatteryProfileInfo returns the details of one battery profile.
func (o *Otii) GetBatteryProfileInfo(batteryProfileID string) (json.RawMessage, error) {
	data := map[string]any{"battery_profile_id": batteryProfileID}
	return o.client.Send("otii_get_battery_profile_info", data)
}

// GetDeviceID resolves a device name to its id.
func (o *Otii) GetDeviceID(deviceName string) (string, error) {
	var resp struct {
		DeviceID string `json:"device_id"`
	}
	err := call(o.client, "otii_get_device_id", map[string]any{"device_name": deviceName}, &resp)
	return resp.DeviceID, err
}

// GetDevices lists connected devices, waiting up to timeout for devices to
// become available. A nil filter selects Arc, Ace and Simulator devices.
func (o *Otii) GetDevices(timeout time.Duration, filter []string) ([]*Arc, error) {
	if filter == nil {
		filter = defaultDeviceFilter
	}
	data := map[string]any{"timeout": int(timeout.Seconds())}
	var resp struct {
		Devices []struct {
			Type     string `json:"type"`
			DeviceID string `json:"device_id"`
			Name     string `json:"name"`
		} `json:"devices"`
	}
	// The server itself waits up to the requested time for devices to appear.
	err := callTimeout(o.client, "otii_get_devices", data, timeout+client.DefaultTimeout, &resp)
	if err != nil {
		return nil, err
	}
	var devices []*Arc
	for _, d := range resp.Devices {
		for _, t := range filter {
			if d.Type == t {
				devices = append(devices, &Arc{Type: d.Type, ID: d.DeviceID, Name: d.Name, client: o.client})
				break
			}
		}
	}
	return devices, nil
}

// GetLicenses lists all licenses of the logged-in user.
func (o *Otii) GetLicenses() ([]license.License, error) {
	var resp struct {
		Licenses []license.License `json:"licenses"`
	}
	if err := call(o.client, "otii_get_licenses", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Licenses, nil
}

// Login logs in a user.
func (o *Otii) Login(username, password string) error {
	data := map[string]any{"username": username, "password": password}
	return call(o.client, "otii_login", data, nil)
}

// Logout logs out the current user.
func (o *Otii) Logout() error {
	return call(o.client, "otii_logout", nil, nil)
}

// ReserveLicense reserves the license with the given id.
func (o *Otii) ReserveLicense(licenseID int) error {
	return call(o.client, "otii_reserve_license", map[string]any{"license_id": licenseID}, nil)
}

// ReturnLicense returns the license with the given id.
func (o *Otii) ReturnLicense(licenseID int) error {
	return call(o.client, "otii_return_license", map[string]any{"license_id": licenseID}, nil)
}

// SetAllMain turns the main power on or off on all connected devices.
func (o *Otii) SetAllMain(enable bool) error {
	return call(o.client, "otii_set_all_main", map[string]any{"enable": enable}, nil)
}

// BatteryEmulator returns a handle to a battery emulator supply.
func (o *Otii) BatteryEmulator(batteryEmulatorID string) *BatteryEmulator {
	return &BatteryEmulator{ID: batteryEmulatorID, client: o.client}
}

// Shutdown asks the server to shut down. The server may close the
// connection before the reply arrives; that is not an error.
func (o *Otii) Shutdown() error {
	err := call(o.client, "otii_shutdown", nil, nil)
	if err != nil && (oerrors.Is(err, oerrors.ErrPeerClosed) || oerrors.Is(err, oerrors.ErrClosed)) {
		return nil
	}
	return err
}
