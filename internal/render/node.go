package render

import "strings"

// Node is one element of a render tree. Markup is never assembled from raw
// strings: all text and attribute values pass through escaping when the
// tree is emitted, so user-supplied content cannot inject markup.
type Node struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// Attr is a single element attribute.
type Attr struct {
	Key   string
	Value string
}

// El builds an element node.
func El(tag string, attrs []Attr, children ...*Node) *Node {
	return &Node{Tag: tag, Attrs: attrs, Children: children}
}

// Text builds a text leaf.
func Text(s string) *Node {
	return &Node{Text: s}
}

var voidTags = map[string]bool{
	"br":  true,
	"img": true,
	"hr":  true,
}

// HTML emits the tree as markup with every text node and attribute value
// escaped.
func (n *Node) HTML() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	if n.Tag == "" {
		sb.WriteString(escape(n.Text))
		return
	}
	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	for _, attr := range n.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(attr.Key)
		sb.WriteString(`="`)
		sb.WriteString(escape(attr.Value))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	if voidTags[n.Tag] {
		return
	}
	for _, child := range n.Children {
		child.write(sb)
	}
	sb.WriteString("</")
	sb.WriteString(n.Tag)
	sb.WriteByte('>')
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escape(s string) string {
	return escaper.Replace(s)
}
