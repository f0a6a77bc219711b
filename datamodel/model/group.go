package model

import (
	"iter"
	"strings"
)

// Node is one member of a Group: either a *Variable or a nested *Group.
// The variant set is closed, like files and directories in a filesystem.
type Node interface {
	Name() string
	Attributes() *AttributeBag

	// owner/setOwner seal the interface and track the single parent.
	owner() *Group
	setOwner(*Group)
}

// Group is a named, ordered collection of Variables and nested Groups, plus
// its own AttributeBag.  The root Group returned by an adapter's Load is the
// whole-file container; its bag holds the file-level global attributes.
//
// Ownership is strictly tree-shaped: every child has exactly one parent and
// cycles are rejected at insertion.  A Group is not safe for concurrent
// mutation; callers serialize externally.
type Group struct {
	name     string
	order    []string
	children map[string]Node
	attrs    *AttributeBag
	parent   *Group
}

// NewGroup returns an empty group.  The root group's name is conventionally
// the empty string or the originating file name.
func NewGroup(name string) *Group {
	return &Group{
		name:     name,
		children: map[string]Node{},
		attrs:    NewAttributes(),
	}
}

// Name returns the group's name.
func (g *Group) Name() string {
	return g.name
}

// Attributes returns the group's own bag, not a copy.
func (g *Group) Attributes() *AttributeBag {
	return g.attrs
}

// AddChild appends node to the group.
//
// It fails with ErrCycleDetected if node is g or an ancestor of g, with
// ErrAlreadyOwned if node currently belongs to a different group, and with
// ErrDuplicateName if a child with that name already exists.  On success g
// becomes the node's exclusive owner.
func (g *Group) AddChild(node Node) error {
	if sub, ok := node.(*Group); ok {
		for anc := g; anc != nil; anc = anc.parent {
			if anc == sub {
				return ErrCycleDetected
			}
		}
	}
	if node.owner() != nil {
		return ErrAlreadyOwned
	}
	name := node.Name()
	if _, has := g.children[name]; has {
		return ErrDuplicateName
	}
	g.children[name] = node
	g.order = append(g.order, name)
	node.setOwner(g)
	return nil
}

// RemoveChild detaches the named child and returns it, or ErrKeyNotFound.
// The detached node can then be added to another group.
func (g *Group) RemoveChild(name string) (Node, error) {
	node, has := g.children[name]
	if !has {
		return nil, ErrKeyNotFound
	}
	delete(g.children, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	node.setOwner(nil)
	return node, nil
}

// Child returns the named child, or ErrKeyNotFound.
func (g *Group) Child(name string) (Node, error) {
	node, has := g.children[name]
	if !has {
		return nil, ErrKeyNotFound
	}
	return node, nil
}

// Var returns the named child if it is a variable.  Children of other kinds
// report ErrKeyNotFound, mirroring a typed filesystem lookup.
func (g *Group) Var(name string) (*Variable, error) {
	node, err := g.Child(name)
	if err != nil {
		return nil, err
	}
	v, ok := node.(*Variable)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

// Subgroup returns the named child if it is a nested group.
func (g *Group) Subgroup(name string) (*Group, error) {
	node, err := g.Child(name)
	if err != nil {
		return nil, err
	}
	sub, ok := node.(*Group)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return sub, nil
}

// Len returns the number of children.
func (g *Group) Len() int {
	return len(g.order)
}

// Children iterates over (name, node) pairs in insertion order.
func (g *Group) Children() iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		for _, name := range g.order {
			if !yield(name, g.children[name]) {
				return
			}
		}
	}
}

// Walk iterates depth-first over every node below g, children before
// siblings, in insertion order.  Paths are the names from g down to the
// node joined with "/"; g itself is not visited.  The sequence is lazy and
// restartable, and finite because the tree has no cycles.
func (g *Group) Walk() iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		g.walk(nil, yield)
	}
}

func (g *Group) walk(prefix []string, yield func(string, Node) bool) bool {
	for _, name := range g.order {
		node := g.children[name]
		path := append(prefix, name)
		if !yield(strings.Join(path, "/"), node) {
			return false
		}
		if sub, ok := node.(*Group); ok {
			if !sub.walk(path, yield) {
				return false
			}
		}
	}
	return true
}

// Equal reports whether two trees have the same structure and metadata:
// matching child names and kinds, variable shapes and element types, and
// equal attribute bags throughout.  The names of g and other themselves are
// not compared, so trees loaded from differently-named files can match.
// Payload contents are not compared.
func (g *Group) Equal(other *Group) bool {
	if g == nil || other == nil {
		return g == other
	}
	if !g.attrs.Equal(other.attrs) || len(g.order) != len(other.order) {
		return false
	}
	for name, node := range g.children {
		onode, has := other.children[name]
		if !has {
			return false
		}
		switch n := node.(type) {
		case *Variable:
			ov, ok := onode.(*Variable)
			if !ok || !shapesEqual(n.shape, ov.shape) || n.etype != ov.etype ||
				!n.attrs.Equal(ov.attrs) {
				return false
			}
		case *Group:
			og, ok := onode.(*Group)
			if !ok || !n.Equal(og) {
				return false
			}
		}
	}
	return true
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (g *Group) owner() *Group {
	return g.parent
}

func (g *Group) setOwner(p *Group) {
	g.parent = p
}
