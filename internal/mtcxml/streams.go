package mtcxml

import (
	"strconv"

	"github.com/snarg/mtcagent/internal/schema"
	"github.com/snarg/mtcagent/internal/store"
	"github.com/snarg/mtcagent/internal/xmltree"
)

// Streams builds an MTConnectStreams document. Observations nest
// device, then component, then category section, in first-seen order.
// Dataitem metadata missing from an observation (the synthesized
// UNAVAILABLE defaults) is backfilled from the registry.
func Streams(h Header, reg *schema.Registry, observations []store.Observation) *xmltree.Node {
	doc := root("MTConnectStreams", nsStreams, h.streamsNode())
	streams := doc.Add(&xmltree.Node{Name: "Streams"})

	deviceStreams := map[string]*xmltree.Node{}
	sections := map[string]*xmltree.Node{}

	for _, obs := range observations {
		loc, ok := reg.LocationOf(obs.DataItemID)
		if !ok {
			continue
		}
		if obs.Category == "" {
			if item, ok := reg.DataItem(obs.DataItemID); ok {
				obs.Name = item.Name
				obs.Type = item.Type
				obs.SubType = item.SubType
				obs.Category = item.Category
				obs.Representation = item.Representation
			}
		}

		dev := deviceStreams[loc.DeviceUUID]
		if dev == nil {
			dev = &xmltree.Node{Name: "DeviceStream"}
			dev.SetAttr("name", loc.DeviceName)
			dev.SetAttr("uuid", loc.DeviceUUID)
			streams.Add(dev)
			deviceStreams[loc.DeviceUUID] = dev
		}

		section := sections[loc.ComponentID+"/"+obs.Category]
		if section == nil {
			comp := componentStream(dev, loc)
			section = comp.Add(&xmltree.Node{Name: sectionName(obs.Category)})
			sections[loc.ComponentID+"/"+obs.Category] = section
		}
		section.Add(observationNode(obs))
	}
	return doc
}

func componentStream(dev *xmltree.Node, loc schema.Location) *xmltree.Node {
	for _, c := range dev.Children {
		if id, _ := c.Attr("componentId"); id == loc.ComponentID {
			return c
		}
	}
	comp := &xmltree.Node{Name: "ComponentStream"}
	comp.SetAttr("component", loc.ComponentType)
	comp.SetAttr("componentId", loc.ComponentID)
	if loc.ComponentName != "" {
		comp.SetAttr("name", loc.ComponentName)
	}
	return dev.Add(comp)
}

func sectionName(category string) string {
	switch category {
	case schema.CategorySample:
		return "Samples"
	case schema.CategoryCondition:
		return "Condition"
	default:
		return "Events"
	}
}

// observationNode renders one observation. The element tag comes from
// the dataitem type, except conditions which are tagged by level.
func observationNode(obs store.Observation) *xmltree.Node {
	var n *xmltree.Node

	switch v := obs.Value.(type) {
	case store.Condition:
		n = &xmltree.Node{Name: v.LevelTag(), Text: v.Message}
		n.SetAttr("type", obs.Type)
		if v.NativeCode != "" {
			n.SetAttr("nativeCode", v.NativeCode)
		}
		if v.NativeSeverity != "" {
			n.SetAttr("nativeSeverity", v.NativeSeverity)
		}
		if v.Qualifier != "" {
			n.SetAttr("qualifier", v.Qualifier)
		}
	case store.TimeSeries:
		n = &xmltree.Node{Name: pascalize(obs.Type) + "TimeSeries", Text: v.Samples}
		n.SetAttr("sampleCount", v.SampleCount)
		// An omitted wire rate serializes as 0, not as a missing attribute.
		rate := v.SampleRate
		if rate == "" {
			rate = "0"
		}
		n.SetAttr("sampleRate", rate)
	case store.Message:
		n = &xmltree.Node{Name: "Message", Text: v.Content}
		if v.NativeCode != "" {
			n.SetAttr("nativeCode", v.NativeCode)
		}
	case store.Alarm:
		n = &xmltree.Node{Name: "Alarm", Text: v.Content}
		n.SetAttr("code", v.Code)
		if v.NativeCode != "" {
			n.SetAttr("nativeCode", v.NativeCode)
		}
		n.SetAttr("severity", v.Severity)
		n.SetAttr("state", v.State)
	default:
		if obs.Category == schema.CategoryCondition {
			// A condition that has only ever been UNAVAILABLE.
			n = &xmltree.Node{Name: "Unavailable"}
			n.SetAttr("type", obs.Type)
		} else {
			n = &xmltree.Node{Name: pascalize(obs.Type), Text: obs.Value.Text()}
		}
	}

	n.SetAttr("dataItemId", obs.DataItemID)
	if obs.Name != "" {
		n.SetAttr("name", obs.Name)
	}
	if obs.SubType != "" {
		n.SetAttr("subType", obs.SubType)
	}
	n.SetAttr("timestamp", obs.Time)
	// Synthesized placeholders carry no buffer sequence; emitting 0
	// would fall outside the [firstSequence, nextSequence] window.
	if obs.Sequence > 0 {
		n.SetAttr("sequence", strconv.FormatInt(obs.Sequence, 10))
	}
	return n
}
