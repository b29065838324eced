package otii

import (
	"otii-client/client"
)

// BatteryEmulator is a handle to one battery emulator supply.
type BatteryEmulator struct {
	ID string

	client *client.Client
}

func (b *BatteryEmulator) data(extra map[string]any) map[string]any {
	data := map[string]any{"battery_emulator_id": b.ID}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func (b *BatteryEmulator) getFloat(cmd string) (float64, error) {
	var resp struct {
		Value float64 `json:"value"`
	}
	err := call(b.client, cmd, b.data(nil), &resp)
	return resp.Value, err
}

func (b *BatteryEmulator) getInt(cmd string) (int, error) {
	var resp struct {
		Value int `json:"value"`
	}
	err := call(b.client, cmd, b.data(nil), &resp)
	return resp.Value, err
}

// GetParallel returns the number of simulated batteries in parallel.
func (b *BatteryEmulator) GetParallel() (int, error) {
	return b.getInt("battery_emulator_get_parallel")
}

// GetSeries returns the number of simulated batteries in series.
func (b *BatteryEmulator) GetSeries() (int, error) {
	return b.getInt("battery_emulator_get_series")
}

// GetSOC returns the state of charge in percent.
func (b *BatteryEmulator) GetSOC() (float64, error) {
	return b.getFloat("battery_emulator_get_soc")
}

// SetSOC sets the state of charge in percent.
func (b *BatteryEmulator) SetSOC(value float64) error {
	return call(b.client, "battery_emulator_set_soc", b.data(map[string]any{"value": value}), nil)
}

// GetSOCTracking reports whether state-of-charge tracking is enabled.
func (b *BatteryEmulator) GetSOCTracking() (bool, error) {
	var resp struct {
		Enabled bool `json:"enabled"`
	}
	err := call(b.client, "battery_emulator_get_soc_tracking", b.data(nil), &resp)
	return resp.Enabled, err
}

// SetSOCTracking enables or disables state-of-charge tracking.
func (b *BatteryEmulator) SetSOCTracking(enable bool) error {
	return call(b.client, "battery_emulator_set_soc_tracking", b.data(map[string]any{"enable": enable}), nil)
}

// GetUsedCapacity returns the used capacity in coulomb.
func (b *BatteryEmulator) GetUsedCapacity() (float64, error) {
	return b.getFloat("battery_emulator_get_used_capacity")
}

// SetUsedCapacity sets the used capacity in coulomb.
func (b *BatteryEmulator) SetUsedCapacity(value float64) error {
	return call(b.client, "battery_emulator_set_used_capacity", b.data(map[string]any{"value": value}), nil)
}

// UpdateProfile switches the emulated battery profile while keeping the
// emulation running.
func (b *BatteryEmulator) UpdateProfile(batteryProfileID, mode string) error {
	data := b.data(map[string]any{"battery_profile_id": batteryProfileID, "mode": mode})
	return call(b.client, "battery_emulator_update_profile", data, nil)
}
