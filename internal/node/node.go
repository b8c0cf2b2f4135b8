// Package node defines the node record and the codec for node documents.
package node

import (
	"time"

	"github.com/eykd/prosemark/internal/id"
)

// Node is a single entity in the project tree. Relations are held as plain
// identifiers (arena style): the tree model owns the id→record map, so
// records never reference each other directly.
type Node struct {
	ID    id.NodeID
	Title string

	Content  string // primary text body
	Notecard string // optional short summary; "" means no notecard file
	Notes    string // optional research text; "" means no notes file
	Meta     map[string]Value

	Created time.Time
	Updated time.Time

	Parent   id.NodeID // Zero for roots
	Children []id.NodeID

	// Path is the node document's current project-relative path; "" until
	// first persisted. Maintained by the synchronization engine.
	Path string
}

// Clone returns a deep copy of the record.
func (n *Node) Clone() *Node {
	c := *n
	c.Children = append([]id.NodeID(nil), n.Children...)
	if n.Meta != nil {
		c.Meta = make(map[string]Value, len(n.Meta))
		for k, v := range n.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}
