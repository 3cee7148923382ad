package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// deviceFile is the on-disk shape: a pre-parsed form of MTConnect
// device XML.
type deviceFile struct {
	Devices []Device `json:"devices"`
}

// LoadDevices reads a device description JSON file and returns the
// devices it declares.
func LoadDevices(path string) ([]Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read devices file: %w", err)
	}
	var f deviceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse devices file %s: %w", path, err)
	}
	if len(f.Devices) == 0 {
		return nil, fmt.Errorf("devices file %s declares no devices", path)
	}
	for i, d := range f.Devices {
		if d.UUID == "" || d.Name == "" {
			return nil, fmt.Errorf("devices file %s: device %d missing uuid or name", path, i)
		}
	}
	return f.Devices, nil
}
