package mtcxml

import (
	"strings"

	"github.com/snarg/mtcagent/internal/store"
	"github.com/snarg/mtcagent/internal/xmltree"
)

// Assets builds an MTConnectAssets document as a string. Asset bodies
// are serialized from their stored trees with multi-status expansion;
// opaque bodies are wrapped in an element named after the asset type
// with the raw text escaped. The whole document cannot be a single
// xmltree because expansion must apply to asset subtrees only.
func Assets(h Header, assets []*store.Asset) string {
	var b strings.Builder
	b.WriteString("<MTConnectAssets xmlns=\"")
	b.WriteString(nsAssets)
	b.WriteString("\">")
	b.WriteString(h.assetsNode().String())
	b.WriteString("<Assets>")
	for _, a := range assets {
		b.WriteString(assetBody(a))
	}
	b.WriteString("</Assets></MTConnectAssets>")
	return b.String()
}

func assetBody(a *store.Asset) string {
	if a.Doc == nil {
		name := a.AssetType
		if name == "" {
			name = "Asset"
		}
		n := &xmltree.Node{Name: name, Text: a.Raw}
		stamp(n, a)
		return n.String()
	}
	doc := a.Doc.Clone()
	stamp(doc, a)
	return doc.MultiStatusString()
}

func stamp(n *xmltree.Node, a *store.Asset) {
	n.SetAttr("assetId", a.AssetID)
	n.SetAttr("timestamp", a.Time)
	if a.Removed {
		n.SetAttr("removed", "true")
	}
}
