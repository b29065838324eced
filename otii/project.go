package otii

import (
	"otii-client/client"
)

// Project is a handle to one project on the server.
type Project struct {
	ID       int
	Filename string

	client *client.Client
}

func (p *Project) data(extra map[string]any) map[string]any {
	data := map[string]any{"project_id": p.ID}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// Close closes the project. force discards unsaved data.
func (p *Project) Close(force bool) error {
	return call(p.client, "project_close", p.data(map[string]any{"force": force}), nil)
}

// CropData crops all recordings to the interval [start, end] in seconds.
// May operate on large quantities of data, so it waits without bound.
func (p *Project) CropData(start, end float64) error {
	data := p.data(map[string]any{"start": start, "end": end})
	return callTimeout(p.client, "project_crop_data", data, client.NoTimeout, nil)
}

// GetLastRecording returns the most recent recording, or nil when the
// project has none.
func (p *Project) GetLastRecording() (*Recording, error) {
	var resp struct {
		RecordingID int    `json:"recording_id"`
		Name        string `json:"name"`
	}
	if err := call(p.client, "project_get_last_recording", p.data(nil), &resp); err != nil {
		return nil, err
	}
	if resp.RecordingID == -1 {
		return nil, nil
	}
	return &Recording{ID: resp.RecordingID, Name: resp.Name, client: p.client}, nil
}

// GetRecordings lists the recordings of the project.
func (p *Project) GetRecordings() ([]*Recording, error) {
	var resp struct {
		Recordings []struct {
			RecordingID int    `json:"recording_id"`
			Name        string `json:"name"`
		} `json:"recordings"`
	}
	if err := call(p.client, "project_get_recordings", p.data(nil), &resp); err != nil {
		return nil, err
	}
	recordings := make([]*Recording, len(resp.Recordings))
	for i, r := range resp.Recordings {
		recordings[i] = &Recording{ID: r.RecordingID, Name: r.Name, client: p.client}
	}
	return recordings, nil
}

// Save saves the project to its current file. The project must have been
// saved before; use SaveAs for the first save.
func (p *Project) Save(progress bool) (string, error) {
	return p.SaveAs(p.Filename, false, progress)
}

// SaveAs saves the project under filename. force overwrites an existing
// file; progress requests progress messages while saving. Waits without
// bound, the project may hold large recordings.
func (p *Project) SaveAs(filename string, force, progress bool) (string, error) {
	data := p.data(map[string]any{"filename": filename, "force": force, "progress": progress})
	var resp struct {
		Filename string `json:"filename"`
	}
	if err := callTimeout(p.client, "project_save", data, client.NoTimeout, &resp); err != nil {
		return "", err
	}
	p.Filename = resp.Filename
	return resp.Filename, nil
}

// StartRecording starts a new recording on all enabled channels.
func (p *Project) StartRecording() error {
	return call(p.client, "project_start_recording", p.data(nil), nil)
}

// StopRecording stops the ongoing recording.
func (p *Project) StopRecording() error {
	return call(p.client, "project_stop_recording", p.data(nil), nil)
}
