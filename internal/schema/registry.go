package schema

import (
	"sync"

	"github.com/rs/zerolog"
)

// Location describes where a dataitem sits in the device tree, used by
// the serializer to group observations into component streams.
type Location struct {
	DeviceUUID    string
	DeviceName    string
	ComponentID   string
	ComponentType string
	ComponentName string
}

type indexed struct {
	item *DataItem
	loc  Location
	// chain is the ancestor element path used by ResolvePath:
	// Device → components → DataItem.
	chain []pathElem
}

type pathElem struct {
	name  string
	attrs map[string]string
}

// Registry indexes inserted device schemas. Devices are inserted at
// startup and never mutated afterwards; reads are lock-protected anyway
// so reinsertion (replace by UUID) stays safe.
type Registry struct {
	mu         sync.RWMutex
	log        zerolog.Logger
	devices    map[string]*Device
	order      []string // device UUIDs in insertion order
	nameToUUID map[string]string
	byWire     map[string]map[string]*indexed // uuid → wire name
	byID       map[string]*indexed
	perDevice  map[string][]string // uuid → dataitem ids in schema order
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:        log.With().Str("component", "schema").Logger(),
		devices:    make(map[string]*Device),
		nameToUUID: make(map[string]string),
		byWire:     make(map[string]map[string]*indexed),
		byID:       make(map[string]*indexed),
		perDevice:  make(map[string][]string),
	}
}

// InsertSchema indexes a device description. Idempotent by UUID:
// reinserting a device replaces its previous index entries.
func (r *Registry) InsertSchema(dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.devices[dev.UUID]; ok {
		r.removeLocked(old)
	} else {
		r.order = append(r.order, dev.UUID)
	}

	// Synthetic device-scoped dataitems for asset change tracking.
	// They are indexed by id only: SHDR lines never resolve them.
	synthetic := []DataItem{
		{ID: dev.Name + "_asset_chg", Type: TypeAssetChanged, Category: CategoryEvent, Discrete: true},
		{ID: dev.Name + "_asset_rem", Type: TypeAssetRemoved, Category: CategoryEvent, Discrete: true},
	}
	dev.DataItems = append(append([]DataItem(nil), dev.DataItems...), synthetic...)

	stored := dev
	r.devices[dev.UUID] = &stored
	r.nameToUUID[dev.Name] = dev.UUID
	r.byWire[dev.UUID] = make(map[string]*indexed)

	devElem := pathElem{name: "Device", attrs: map[string]string{
		"name": dev.Name, "uuid": dev.UUID,
	}}
	devLoc := Location{
		DeviceUUID: dev.UUID, DeviceName: dev.Name,
		ComponentID: dev.UUID, ComponentType: "Device", ComponentName: dev.Name,
	}

	r.indexItems(stored.DataItems, dev.UUID, devLoc, []pathElem{devElem})
	for i := range stored.Components {
		r.indexComponent(&stored.Components[i], dev.UUID, devLoc, []pathElem{devElem})
	}

	r.log.Info().
		Str("uuid", dev.UUID).
		Str("device", dev.Name).
		Int("dataitems", len(r.perDevice[dev.UUID])).
		Msg("device schema indexed")
}

func (r *Registry) indexComponent(c *Component, uuid string, devLoc Location, chain []pathElem) {
	elem := pathElem{name: c.Type, attrs: map[string]string{"id": c.ID, "name": c.Name}}
	chain = append(chain, elem)
	loc := Location{
		DeviceUUID: devLoc.DeviceUUID, DeviceName: devLoc.DeviceName,
		ComponentID: c.ID, ComponentType: c.Type, ComponentName: c.Name,
	}
	r.indexItems(c.DataItems, uuid, loc, chain)
	for i := range c.Components {
		r.indexComponent(&c.Components[i], uuid, devLoc, chain)
	}
}

func (r *Registry) indexItems(items []DataItem, uuid string, loc Location, chain []pathElem) {
	for i := range items {
		item := &items[i]
		elem := pathElem{name: "DataItem", attrs: map[string]string{
			"id":       item.ID,
			"name":     item.Name,
			"type":     item.Type,
			"subType":  item.SubType,
			"category": item.Category,
		}}
		idx := &indexed{
			item:  item,
			loc:   loc,
			chain: append(append([]pathElem(nil), chain...), elem),
		}
		r.byID[item.ID] = idx
		r.perDevice[uuid] = append(r.perDevice[uuid], item.ID)
		if item.Name != "" && item.Type != TypeAssetChanged && item.Type != TypeAssetRemoved {
			r.byWire[uuid][item.Name] = idx
		}
	}
}

func (r *Registry) removeLocked(dev *Device) {
	for _, id := range r.perDevice[dev.UUID] {
		delete(r.byID, id)
	}
	delete(r.perDevice, dev.UUID)
	delete(r.byWire, dev.UUID)
	delete(r.nameToUUID, dev.Name)
	delete(r.devices, dev.UUID)
}

// DeviceUUID returns the UUID registered for a device name.
func (r *Registry) DeviceUUID(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uuid, ok := r.nameToUUID[name]
	return uuid, ok
}

// DeviceUUIDs returns all registered UUIDs in insertion order.
func (r *Registry) DeviceUUIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Device returns the stored device description.
func (r *Registry) Device(uuid string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[uuid]
	return d, ok
}

// Resolve looks up a dataitem by its SHDR wire name, case-sensitively,
// scoped to one device.
func (r *Registry) Resolve(uuid, wireName string) (*DataItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if items, ok := r.byWire[uuid]; ok {
		if idx, ok := items[wireName]; ok {
			return idx.item, true
		}
	}
	return nil, false
}

// DataItem returns a dataitem by id.
func (r *Registry) DataItem(id string) (*DataItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return idx.item, true
}

// LocationOf returns the device/component placement of a dataitem id.
func (r *Registry) LocationOf(id string) (Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return Location{}, false
	}
	return idx.loc, true
}

// DataItemIDs returns every dataitem id for the given devices in
// discovery order (devices in insertion order, items in schema order).
// With no uuids, all devices are included.
func (r *Registry) DataItemIDs(uuids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(uuids) == 0 {
		uuids = r.order
	}
	var ids []string
	for _, uuid := range uuids {
		ids = append(ids, r.perDevice[uuid]...)
	}
	return ids
}

// AssetChangedID returns the synthetic ASSET_CHANGED dataitem id for a device.
func (r *Registry) AssetChangedID(uuid string) (string, bool) {
	return r.syntheticID(uuid, "_asset_chg")
}

// AssetRemovedID returns the synthetic ASSET_REMOVED dataitem id for a device.
func (r *Registry) AssetRemovedID(uuid string) (string, bool) {
	return r.syntheticID(uuid, "_asset_rem")
}

func (r *Registry) syntheticID(uuid, suffix string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[uuid]
	if !ok {
		return "", false
	}
	return dev.Name + suffix, true
}
