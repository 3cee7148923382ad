// Package xmltree provides a generic mutable XML element tree.
//
// Asset bodies arrive as arbitrary XML whose element names are not known
// ahead of time, so they cannot be unmarshaled into static structs. The
// tree here is the canonical in-memory form for asset documents and for
// the response documents the agent serializes.
package xmltree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Attr is a single XML attribute. Order is preserved on serialization.
type Attr struct {
	Name  string
	Value string
}

// Node is one XML element: a name, its attributes, text content, and
// child elements. A node with no children serializes its Text as the
// element body.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// Parse reads an XML document into a Node tree. Leading and trailing
// whitespace around text content is trimmed. Comments and processing
// instructions are dropped.
func Parse(s string) (*Node, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				// Namespace declarations are kept so asset documents
				// round-trip with their original namespaces.
				name := a.Name.Local
				if a.Name.Space == "xmlns" {
					name = "xmlns:" + a.Name.Local
				}
				n.Attrs = append(n.Attrs, Attr{Name: name, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse xml: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse xml: unbalanced end element %q", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				text := strings.TrimSpace(string(t))
				if text != "" {
					stack[len(stack)-1].Text += text
				}
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("parse xml: empty document")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("parse xml: unclosed element %q", stack[len(stack)-1].Name)
	}
	return root, nil
}

// SetAttr sets or replaces an attribute on the node.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Attr returns the value of the named attribute and whether it exists.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Add appends a child element and returns it.
func (n *Node) Add(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// Find returns the first element with the given name, searching the
// node itself and then its descendants depth-first.
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// UpdateFirst replaces the text content of the first element with the
// given name, depth-first. Returns false if no element matched.
func (n *Node) UpdateFirst(name, text string) bool {
	target := n.Find(name)
	if target == nil {
		return false
	}
	target.Text = text
	return true
}

// ReplaceElement swaps the first element matching fragment.Name with the
// fragment itself. Returns false if no element matched. Replacing the
// root is allowed only by the caller copying fields; here only
// descendants are replaced.
func (n *Node) ReplaceElement(fragment *Node) bool {
	for i, c := range n.Children {
		if c.Name == fragment.Name {
			n.Children[i] = fragment
			return true
		}
	}
	for _, c := range n.Children {
		if c.ReplaceElement(fragment) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	c := &Node{Name: n.Name, Text: n.Text}
	c.Attrs = append([]Attr(nil), n.Attrs...)
	for _, child := range n.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return c
}

// String serializes the tree without multi-status expansion.
func (n *Node) String() string {
	var buf bytes.Buffer
	n.write(&buf, false)
	return buf.String()
}

// MultiStatusString serializes the tree expanding comma-separated leaf
// text into repeated elements of the same tag, e.g. a CutterStatus leaf
// holding "USED,AVAILABLE" becomes two sibling CutterStatus elements.
// Only enumeration-like lists expand; prose that happens to contain a
// comma ("carbide, coated") stays a single element.
func (n *Node) MultiStatusString() string {
	var buf bytes.Buffer
	n.write(&buf, true)
	return buf.String()
}

// multiStatusLeaf reports whether leaf text is a status enumeration:
// two or more comma-separated tokens, none empty, none containing
// whitespace.
func multiStatusLeaf(text string) bool {
	if !strings.Contains(text, ",") {
		return false
	}
	for _, part := range strings.Split(text, ",") {
		if part == "" || strings.ContainsAny(part, " \t") {
			return false
		}
	}
	return true
}

func (n *Node) write(buf *bytes.Buffer, multiStatus bool) {
	if multiStatus && len(n.Children) == 0 && multiStatusLeaf(n.Text) {
		for _, part := range strings.Split(n.Text, ",") {
			single := &Node{Name: n.Name, Attrs: n.Attrs, Text: part}
			single.write(buf, false)
		}
		return
	}

	buf.WriteByte('<')
	buf.WriteString(n.Name)
	for _, a := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	if len(n.Children) == 0 && n.Text == "" {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	if n.Text != "" {
		xml.EscapeText(buf, []byte(n.Text))
	}
	for _, c := range n.Children {
		c.write(buf, multiStatus)
	}
	buf.WriteString("</")
	buf.WriteString(n.Name)
	buf.WriteByte('>')
}
