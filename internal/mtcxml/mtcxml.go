// Package mtcxml builds MTConnect response documents: Devices, Streams,
// Assets, and Error. Builders assemble xmltree nodes; the HTTP layer
// serializes them.
package mtcxml

import (
	"strconv"
	"strings"
	"time"

	"github.com/snarg/mtcagent/internal/xmltree"
)

// Supported schema version the documents declare.
const SchemaVersion = "1.3"

// Document namespaces.
const (
	nsDevices = "urn:mtconnect.org:MTConnectDevices:" + SchemaVersion
	nsStreams = "urn:mtconnect.org:MTConnectStreams:" + SchemaVersion
	nsAssets  = "urn:mtconnect.org:MTConnectAssets:" + SchemaVersion
	nsError   = "urn:mtconnect.org:MTConnectError:" + SchemaVersion
)

// Header carries the fields every response document's <Header> element
// reports. Documents pick the subset that applies to them.
type Header struct {
	Sender          string
	InstanceID      int64
	BufferSize      int
	FirstSequence   int64
	LastSequence    int64
	NextSequence    int64
	AssetBufferSize int
	AssetCount      int

	// CreationTime defaults to now when empty; tests pin it.
	CreationTime string
}

func (h Header) node() *xmltree.Node {
	created := h.CreationTime
	if created == "" {
		created = time.Now().UTC().Format(time.RFC3339Nano)
	}
	n := &xmltree.Node{Name: "Header"}
	n.SetAttr("creationTime", created)
	n.SetAttr("sender", h.Sender)
	n.SetAttr("instanceId", strconv.FormatInt(h.InstanceID, 10))
	n.SetAttr("version", SchemaVersion)
	n.SetAttr("bufferSize", strconv.Itoa(h.BufferSize))
	return n
}

func (h Header) streamsNode() *xmltree.Node {
	n := h.node()
	n.SetAttr("firstSequence", strconv.FormatInt(h.FirstSequence, 10))
	n.SetAttr("lastSequence", strconv.FormatInt(h.LastSequence, 10))
	n.SetAttr("nextSequence", strconv.FormatInt(h.NextSequence, 10))
	return n
}

func (h Header) assetsNode() *xmltree.Node {
	n := h.node()
	n.SetAttr("assetBufferSize", strconv.Itoa(h.AssetBufferSize))
	n.SetAttr("assetCount", strconv.Itoa(h.AssetCount))
	return n
}

func root(name, ns string, header *xmltree.Node) *xmltree.Node {
	n := &xmltree.Node{Name: name}
	n.SetAttr("xmlns", ns)
	n.Add(header)
	return n
}

// pascalize turns a dataitem type enum into its element tag, e.g.
// POSITION becomes Position and ASSET_CHANGED becomes AssetChanged.
func pascalize(typ string) string {
	parts := strings.Split(typ, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}

// Error builds an MTConnectError document.
func Error(h Header, code, message string) *xmltree.Node {
	doc := root("MTConnectError", nsError, h.node())
	errs := doc.Add(&xmltree.Node{Name: "Errors"})
	e := &xmltree.Node{Name: "Error", Text: message}
	e.SetAttr("errorCode", code)
	errs.Add(e)
	return doc
}
