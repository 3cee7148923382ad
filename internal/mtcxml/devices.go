package mtcxml

import (
	"github.com/snarg/mtcagent/internal/schema"
	"github.com/snarg/mtcagent/internal/xmltree"
)

// Devices builds an MTConnectDevices document (the /probe response)
// from the registered device descriptions.
func Devices(h Header, devices []*schema.Device) *xmltree.Node {
	doc := root("MTConnectDevices", nsDevices, h.node())
	list := doc.Add(&xmltree.Node{Name: "Devices"})
	for _, dev := range devices {
		list.Add(deviceNode(dev))
	}
	return doc
}

func deviceNode(dev *schema.Device) *xmltree.Node {
	n := &xmltree.Node{Name: "Device"}
	n.SetAttr("id", dev.UUID)
	n.SetAttr("name", dev.Name)
	n.SetAttr("uuid", dev.UUID)
	addDataItems(n, dev.DataItems)
	addComponents(n, dev.Components)
	return n
}

func addComponents(parent *xmltree.Node, comps []schema.Component) {
	if len(comps) == 0 {
		return
	}
	list := parent.Add(&xmltree.Node{Name: "Components"})
	for i := range comps {
		c := &comps[i]
		n := &xmltree.Node{Name: c.Type}
		n.SetAttr("id", c.ID)
		if c.Name != "" {
			n.SetAttr("name", c.Name)
		}
		addDataItems(n, c.DataItems)
		addComponents(n, c.Components)
		list.Add(n)
	}
}

func addDataItems(parent *xmltree.Node, items []schema.DataItem) {
	if len(items) == 0 {
		return
	}
	list := parent.Add(&xmltree.Node{Name: "DataItems"})
	for i := range items {
		d := &items[i]
		n := &xmltree.Node{Name: "DataItem"}
		n.SetAttr("category", d.Category)
		n.SetAttr("id", d.ID)
		n.SetAttr("type", d.Type)
		if d.Name != "" {
			n.SetAttr("name", d.Name)
		}
		if d.SubType != "" {
			n.SetAttr("subType", d.SubType)
		}
		if d.Representation != "" {
			n.SetAttr("representation", d.Representation)
		}
		if d.Units != "" {
			n.SetAttr("units", d.Units)
		}
		if d.Discrete {
			n.SetAttr("discrete", "true")
		}
		list.Add(n)
	}
}
