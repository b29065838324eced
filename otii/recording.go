package otii

import (
	"encoding/json"
	"strings"
	"unicode"

	"otii-client/bulk"
	"otii-client/client"
)

// chunkSize bounds one channel-data request for regularly sampled channels.
const chunkSize = 2000

// unpagedChannels are bounded by event count rather than sample volume and
// are fetched in a single request regardless of count.
var unpagedChannels = map[string]bool{"rx": true, "i1": true, "i2": true}

// Recording is a handle to one recording of a project.
type Recording struct {
	ID   int
	Name string

	client *client.Client
}

func (r *Recording) data(extra map[string]any) map[string]any {
	data := map[string]any{"recording_id": r.ID}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// Delete deletes the recording. The handle is invalid afterwards.
func (r *Recording) Delete() error {
	if err := call(r.client, "recording_delete", r.data(nil), nil); err != nil {
		return err
	}
	r.ID = -1
	return nil
}

// DownsampleChannel reduces the sample density of a channel by factor. May
// operate on large quantities of data, so it waits without bound.
func (r *Recording) DownsampleChannel(deviceID, channel string, factor int) error {
	data := r.data(map[string]any{"device_id": deviceID, "channel": channel, "factor": factor})
	return callTimeout(r.client, "recording_downsample_channel", data, client.NoTimeout, nil)
}

// GetChannelDataCount returns the number of data entries in a channel.
func (r *Recording) GetChannelDataCount(deviceID, channel string) (int, error) {
	data := r.data(map[string]any{"device_id": deviceID, "channel": channel})
	var resp struct {
		Count int `json:"count"`
	}
	err := call(r.client, "recording_get_channel_data_count", data, &resp)
	return resp.Count, err
}

// GetChannelDataIndex returns the index of the data entry closest to
// timestamp (seconds from the start of the recording).
func (r *Recording) GetChannelDataIndex(deviceID, channel string, timestamp float64) (int, error) {
	data := r.data(map[string]any{"device_id": deviceID, "channel": channel, "timestamp": timestamp})
	var resp struct {
		Index int `json:"index"`
	}
	err := call(r.client, "recording_get_channel_data_index", data, &resp)
	return resp.Index, err
}

// TimedValue is one entry of an event channel, a value with the timestamp it
// was captured at.
type TimedValue struct {
	Timestamp float64 `json:"timestamp"`
	Value     string  `json:"value"`
}

// GetChannelData fetches count data entries from a channel starting at
// index. Regularly sampled channels are fetched in bounded pages; the event
// channels rx, i1 and i2 in one request. strip removes control characters
// from rx values. Waits without bound, transfers may be large.
func (r *Recording) GetChannelData(deviceID, channel string, index, count int, strip bool) ([]json.RawMessage, error) {
	base := map[string]any{
		"recording_id": r.ID,
		"device_id":    deviceID,
		"channel":      channel,
	}
	if !unpagedChannels[channel] {
		return bulk.FetchAll(r.client, "recording_get_channel_data", base, index, count, chunkSize)
	}

	base["index"] = index
	base["count"] = count
	payload, err := r.client.SendTimeout("recording_get_channel_data", base, client.NoTimeout)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Values []json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	if channel == "rx" && strip {
		for i, raw := range resp.Values {
			var v TimedValue
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			v.Value = removeControlCharacters(v.Value)
			stripped, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			resp.Values[i] = stripped
		}
	}
	return resp.Values, nil
}

// removeControlCharacters drops every rune in the Unicode C categories.
// UART capture picks up framing noise that renders as garbage in logs.
func removeControlCharacters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if unicode.In(ch, unicode.C) {
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// GetLogOffset returns the offset of a log channel. Pass an empty deviceID
// for imported logs.
func (r *Recording) GetLogOffset(deviceID, channel string) (int64, error) {
	data := r.data(map[string]any{"channel": channel})
	if deviceID != "" {
		data["device_id"] = deviceID
	}
	var resp struct {
		Offset int64 `json:"offset"`
	}
	err := call(r.client, "recording_get_log_offset", data, &resp)
	return resp.Offset, err
}

// SetLogOffset moves a log channel in time by offset microseconds. Pass an
// empty deviceID for imported logs.
func (r *Recording) SetLogOffset(deviceID, channel string, offset int64) error {
	data := r.data(map[string]any{"channel": channel, "offset": offset})
	if deviceID != "" {
		data["device_id"] = deviceID
	}
	return call(r.client, "recording_set_log_offset", data, nil)
}

// GetOffset returns the offset of the recording in microseconds.
func (r *Recording) GetOffset() (int64, error) {
	var resp struct {
		Offset int64 `json:"offset"`
	}
	err := call(r.client, "recording_get_offset", r.data(nil), &resp)
	return resp.Offset, err
}

// SetOffset moves the recording in time by offset microseconds.
func (r *Recording) SetOffset(offset int64) error {
	return call(r.client, "recording_set_offset", r.data(map[string]any{"offset": offset}), nil)
}

// ImportLog imports an external log file into the recording using the named
// converter and returns the id of the new log. Waits without bound.
func (r *Recording) ImportLog(filename, converter string) (string, error) {
	data := r.data(map[string]any{"filename": filename, "converter": converter})
	var resp struct {
		LogID string `json:"log_id"`
	}
	err := callTimeout(r.client, "recording_import_log", data, client.NoTimeout, &resp)
	return resp.LogID, err
}

// IsRunning reports whether the recording is ongoing.
func (r *Recording) IsRunning() (bool, error) {
	var resp struct {
		Running bool `json:"running"`
	}
	err := call(r.client, "recording_is_running", r.data(nil), &resp)
	return resp.Running, err
}

// Log adds a timestamped text entry to the recording's log window. A zero
// timestamp uses the current time. Only produces output while the recording
// is running.
func (r *Recording) Log(text string, timestamp int64) error {
	return call(r.client, "recording_log", r.data(map[string]any{"text": text, "timestamp": timestamp}), nil)
}

// Rename changes the name of the recording.
func (r *Recording) Rename(name string) error {
	if err := call(r.client, "recording_rename", r.data(map[string]any{"name": name}), nil); err != nil {
		return err
	}
	r.Name = name
	return nil
}
