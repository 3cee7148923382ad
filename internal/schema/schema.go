// Package schema holds the device description registry: devices, their
// component trees, and the dataitems SHDR lines resolve against.
package schema

// DataItem categories.
const (
	CategorySample    = "SAMPLE"
	CategoryEvent     = "EVENT"
	CategoryCondition = "CONDITION"
)

// DataItem representations.
const (
	RepresentationValue      = "VALUE"
	RepresentationTimeSeries = "TIME_SERIES"
)

// Dataitem types with non-scalar wire encodings.
const (
	TypeMessage      = "MESSAGE"
	TypeAlarm        = "ALARM"
	TypeAssetChanged = "ASSET_CHANGED"
	TypeAssetRemoved = "ASSET_REMOVED"
)

// Device is one machine: a UUID, a human name, and a tree of components.
// Dataitems may hang directly off the device or off any component.
type Device struct {
	UUID       string      `json:"uuid"`
	Name       string      `json:"name"`
	Components []Component `json:"components,omitempty"`
	DataItems  []DataItem  `json:"dataitems,omitempty"`
}

// Component is a node in the device tree, e.g. "Electric" or "Axes".
type Component struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Name       string      `json:"name,omitempty"`
	Components []Component `json:"components,omitempty"`
	DataItems  []DataItem  `json:"dataitems,omitempty"`
}

// DataItem is one observable channel. Name is the short wire name SHDR
// uses; ID is stable for the life of the agent.
type DataItem struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Type           string `json:"type"`
	Category       string `json:"category"`
	SubType        string `json:"subType,omitempty"`
	Representation string `json:"representation,omitempty"`
	Units          string `json:"units,omitempty"`

	// Discrete dataitems are never duplicate-suppressed. The synthetic
	// ASSET_CHANGED/ASSET_REMOVED items are discrete so every asset
	// command leaves a trace in the stream.
	Discrete bool `json:"discrete,omitempty"`
}

// IsTimeSeries reports whether the dataitem carries sampled arrays.
func (d *DataItem) IsTimeSeries() bool {
	return d.Representation == RepresentationTimeSeries
}
