package otii

import (
	"encoding/json"
	"time"

	"otii-client/client"
)

// calibrateTimeout allows for the mechanical settling time of a full
// calibration cycle.
const calibrateTimeout = 10 * time.Second

// Arc is a handle to one measurement device (Arc, Ace or Simulator).
type Arc struct {
	Type string
	ID   string
	Name string

	client *client.Client
}

func (a *Arc) data(extra map[string]any) map[string]any {
	data := map[string]any{"device_id": a.ID}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func (a *Arc) set(cmd string, extra map[string]any) error {
	return call(a.client, cmd, a.data(extra), nil)
}

func (a *Arc) getFloat(cmd string) (float64, error) {
	var resp struct {
		Value float64 `json:"value"`
	}
	err := call(a.client, cmd, a.data(nil), &resp)
	return resp.Value, err
}

func (a *Arc) getInt(cmd string) (int, error) {
	var resp struct {
		Value int `json:"value"`
	}
	err := call(a.client, cmd, a.data(nil), &resp)
	return resp.Value, err
}

func (a *Arc) getBool(cmd string, key string) (bool, error) {
	var resp map[string]bool
	if err := call(a.client, cmd, a.data(nil), &resp); err != nil {
		return false, err
	}
	return resp[key], nil
}

// Calibrate performs an internal calibration of the device.
func (a *Arc) Calibrate() error {
	return callTimeout(a.client, "arc_calibrate", a.data(nil), calibrateTimeout, nil)
}

// Enable5V turns the 5V pin of the expansion port on or off.
func (a *Arc) Enable5V(enable bool) error {
	return a.set("arc_enable_5v", map[string]any{"enable": enable})
}

// EnableChannel enables or disables measurement on a channel.
func (a *Arc) EnableChannel(channel string, enable bool) error {
	return a.set("arc_enable_channel", map[string]any{"channel": channel, "enable": enable})
}

// EnableExpPort turns the expansion port on or off.
func (a *Arc) EnableExpPort(enable bool) error {
	return a.set("arc_enable_exp_port", map[string]any{"enable": enable})
}

// EnableUART turns the expansion port UART on or off.
func (a *Arc) EnableUART(enable bool) error {
	return a.set("arc_enable_uart", map[string]any{"enable": enable})
}

// GetADCResistor returns the shunt resistor value of the ADC in ohm.
func (a *Arc) GetADCResistor() (float64, error) {
	return a.getFloat("arc_get_adc_resistor")
}

// GetExpVoltage returns the voltage of the expansion port in volt.
func (a *Arc) GetExpVoltage() (float64, error) {
	return a.getFloat("arc_get_exp_voltage")
}

// GetGPI returns the state of a GPI pin (1 or 2).
func (a *Arc) GetGPI(pin int) (bool, error) {
	var resp struct {
		Value bool `json:"value"`
	}
	err := call(a.client, "arc_get_gpi", a.data(map[string]any{"pin": pin}), &resp)
	return resp.Value, err
}

// GetMainVoltage returns the main output voltage in volt.
func (a *Arc) GetMainVoltage() (float64, error) {
	return a.getFloat("arc_get_main_voltage")
}

// GetMaxCurrent returns the current limit in ampere.
func (a *Arc) GetMaxCurrent() (float64, error) {
	return a.getFloat("arc_get_max_current")
}

// GetRange returns the measurement range mode of the main output,
// "low" or "high".
func (a *Arc) GetRange() (string, error) {
	var resp struct {
		Range string `json:"range"`
	}
	err := call(a.client, "arc_get_range", a.data(nil), &resp)
	return resp.Range, err
}

// GetRx returns the state of the RX pin. Only usable while the UART is
// disabled.
func (a *Arc) GetRx() (bool, error) {
	return a.getBool("arc_get_rx", "value")
}

// GetSupplies lists all available supplies. Supply id 0 is the power box.
func (a *Arc) GetSupplies() ([]json.RawMessage, error) {
	var resp struct {
		Supplies []json.RawMessage `json:"supplies"`
	}
	err := call(a.client, "arc_get_supplies", a.data(nil), &resp)
	return resp.Supplies, err
}

// GetSupply returns the id of the active power supply.
func (a *Arc) GetSupply() (int, error) {
	var resp struct {
		SupplyID int `json:"supply_id"`
	}
	err := call(a.client, "arc_get_supply", a.data(nil), &resp)
	return resp.SupplyID, err
}

// GetSupplyParallel returns the number of simulated batteries in parallel.
func (a *Arc) GetSupplyParallel() (int, error) {
	return a.getInt("arc_get_supply_parallel")
}

// GetSupplySeries returns the number of simulated batteries in series.
func (a *Arc) GetSupplySeries() (int, error) {
	return a.getInt("arc_get_supply_series")
}

// GetSupplySocTracking reports whether state-of-charge tracking is enabled.
func (a *Arc) GetSupplySocTracking() (bool, error) {
	return a.getBool("arc_get_supply_soc_tracking", "enabled")
}

// GetSupplyUsedCapacity returns the used supply capacity in coulomb.
func (a *Arc) GetSupplyUsedCapacity() (float64, error) {
	return a.getFloat("arc_get_supply_used_capacity")
}

// GetUARTBaudrate returns the UART baud rate.
func (a *Arc) GetUARTBaudrate() (int, error) {
	return a.getInt("arc_get_uart_baudrate")
}

// GetValue returns the present value of a channel. Not available for the rx
// channel.
func (a *Arc) GetValue(channel string) (float64, error) {
	var resp struct {
		Value float64 `json:"value"`
	}
	err := call(a.client, "arc_get_value", a.data(map[string]any{"channel": channel}), &resp)
	return resp.Value, err
}

// Version holds the hardware and firmware versions of a device.
type Version struct {
	HWVersion string `json:"hw_version"`
	FWVersion string `json:"fw_version"`
}

// GetVersion returns the hardware and firmware versions of the device.
func (a *Arc) GetVersion() (Version, error) {
	var resp Version
	err := call(a.client, "arc_get_version", a.data(nil), &resp)
	return resp, err
}

// IsConnected reports whether the device is connected.
func (a *Arc) IsConnected() (bool, error) {
	return a.getBool("arc_is_connected", "connected")
}

// SetADCResistor sets the shunt resistor of the ADC, 0.001-22 ohm.
func (a *Arc) SetADCResistor(value float64) error {
	return a.set("arc_set_adc_resistor", map[string]any{"value": value})
}

// SetExpVoltage sets the expansion port voltage, 1.2-5 V.
func (a *Arc) SetExpVoltage(value float64) error {
	return a.set("arc_set_exp_voltage", map[string]any{"value": value})
}

// SetGPO sets the state of a GPO pin (1 or 2).
func (a *Arc) SetGPO(pin int, value bool) error {
	return a.set("arc_set_gpo", map[string]any{"pin": pin, "value": value})
}

// SetMain turns the main power on or off.
func (a *Arc) SetMain(enable bool) error {
	return a.set("arc_set_main", map[string]any{"enable": enable})
}

// SetMainVoltage sets the main output voltage in volt.
func (a *Arc) SetMainVoltage(value float64) error {
	return a.set("arc_set_main_voltage", map[string]any{"value": value})
}

// SetMaxCurrent sets the current limit, 0.001-5 A. Main power cuts off when
// the current exceeds it.
func (a *Arc) SetMaxCurrent(value float64) error {
	return a.set("arc_set_max_current", map[string]any{"value": value})
}

// SetRange sets the measurement range mode of the main output. "low"
// enables auto-range, "high" forces high range.
func (a *Arc) SetRange(rangeMode string) error {
	return a.set("arc_set_range", map[string]any{"range": rangeMode})
}

// SetSupply selects the power supply type with the given battery
// configuration.
func (a *Arc) SetSupply(supplyID, series, parallel int) error {
	return a.set("arc_set_supply", map[string]any{
		"supply_id": supplyID,
		"series":    series,
		"parallel":  parallel,
	})
}

// SetSupplySocTracking enables or disables state-of-charge tracking.
func (a *Arc) SetSupplySocTracking(enable bool) error {
	return a.set("arc_set_supply_soc_tracking", map[string]any{"enable": enable})
}

// SetSupplyUsedCapacity sets the used supply capacity in coulomb.
func (a *Arc) SetSupplyUsedCapacity(value float64) error {
	return a.set("arc_set_supply_used_capacity", map[string]any{"value": value})
}

// SetTx drives the TX pin as a GPO. Only usable while the UART is disabled.
func (a *Arc) SetTx(value bool) error {
	return a.set("arc_set_tx", map[string]any{"value": value})
}

// SetUARTBaudrate sets the UART baud rate.
func (a *Arc) SetUARTBaudrate(value int) error {
	return a.set("arc_set_uart_baudrate", map[string]any{"value": value})
}

// WriteTx writes data to the TX pin of the UART.
func (a *Arc) WriteTx(value string) error {
	return a.set("arc_write_tx", map[string]any{"value": value})
}
