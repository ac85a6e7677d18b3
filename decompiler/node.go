package decompiler

// NodeKind tags the variant of a Node.
type NodeKind int

const (
	KindRoot NodeKind = iota
	KindFunction
	KindIf
	KindElse
	KindWhile   // pre-tested loop
	KindDoWhile // post-tested loop
	KindUndeterminedExit
	KindExpr
	KindDecl
	KindAssign
	KindReturn
	KindBreak
	KindContinue
	KindComment
)

var kindNames = [...]string{
	"root", "function", "if", "else", "while", "do-while", "undetermined-exit",
	"expr", "decl", "assign", "return", "break", "continue", "comment",
}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// DefaultIndent is the indentation unit used when none is configured.
const DefaultIndent = "\t"

// Node is one element of the reconstructed script tree. A node is owned by
// at most one parent and exclusively owns its children, its else branch and
// its condition expression.
type Node struct {
	Kind NodeKind

	// Cond is the condition of an if or loop, or the value of a statement.
	Cond Expression

	// Text is the signature of a function, the target of a declaration or
	// assignment, or the body of a comment.
	Text string

	// Offset is the byte offset of the instruction the node came from.
	Offset int

	parent   *Node
	children []*Node
	elseNode *Node

	indent string
	unit   string
	closed bool
}

// NewRoot returns an empty root that indents nested blocks by unit.
func NewRoot(unit string) *Node {
	if unit == "" {
		unit = DefaultIndent
	}
	return &Node{Kind: KindRoot, unit: unit}
}

// NewNode returns a detached node of the given kind.
func NewNode(kind NodeKind, offset int) *Node {
	return &Node{Kind: kind, Offset: offset, unit: DefaultIndent}
}

func newStmt(kind NodeKind, offset int, text string, value Expression) *Node {
	n := NewNode(kind, offset)
	n.Text = text
	n.Cond = value
	return n
}

// Parent returns the owning node, or nil.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the owned child nodes in order. The slice must not be
// modified.
func (n *Node) Children() []*Node { return n.children }

// Else returns the else branch of an if node.
func (n *Node) Else() *Node { return n.elseNode }

// Indent returns the indentation derived when the node was attached.
func (n *Node) Indent() string { return n.indent }

// Closed reports whether Close has been called.
func (n *Node) Closed() bool { return n.closed }

// AddChild appends c, detaching it from any previous parent first.
func (n *Node) AddChild(c *Node) {
	c.detach()
	n.children = append(n.children, c)
	c.parent = n
	n.reindentChildren(c)
}

// SetParent moves n under p. A nil p only detaches n.
func (n *Node) SetParent(p *Node) {
	if p == nil {
		n.detach()
		return
	}
	if n.parent == p && p.elseNode != n {
		return
	}
	p.AddChild(n)
}

// SetElse attaches e as the else branch of an if node, closing any previous
// else branch.
func (n *Node) SetElse(e *Node) {
	if n.elseNode == e {
		return
	}
	if n.elseNode != nil {
		old := n.elseNode
		n.elseNode = nil
		old.parent = nil
		old.Close()
	}
	if e == nil {
		return
	}
	e.detach()
	n.elseNode = e
	e.parent = n
	e.inherit()
}

// RemoveChild detaches c and reports whether it was a child of n. The caller
// takes ownership of c.
func (n *Node) RemoveChild(c *Node) bool {
	if c == nil || c.parent != n {
		return false
	}
	if n.elseNode == c {
		n.elseNode = nil
		c.parent = nil
		return true
	}
	for i, ch := range n.children {
		if ch == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			n.reindentChildren(nil)
			return true
		}
	}
	return false
}

// ReplaceChild puts repl in the place of old. old is detached and handed back
// to the caller.
func (n *Node) ReplaceChild(old, repl *Node) bool {
	if old == nil || repl == nil || old.parent != n || old == repl {
		return false
	}
	repl.detach()
	if n.elseNode == old {
		n.elseNode = repl
	} else {
		found := false
		for i, ch := range n.children {
			if ch == old {
				n.children[i] = repl
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	old.parent = nil
	repl.parent = n
	n.reindentChildren(repl)
	return true
}

func (n *Node) detach() {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
}

// reindentChildren derives the indentation of changed, or of every child
// when the layout of an else block depends on its child count.
func (n *Node) reindentChildren(changed *Node) {
	if n.Kind == KindElse || changed == nil {
		for _, ch := range n.children {
			ch.inherit()
		}
		return
	}
	changed.inherit()
}

func (n *Node) inherit() {
	if n.parent != nil {
		n.unit = n.parent.unit
		n.indent = n.parent.childIndent(n)
	}
	for _, ch := range n.children {
		ch.inherit()
	}
	if n.elseNode != nil {
		n.elseNode.inherit()
	}
}

func (n *Node) childIndent(c *Node) string {
	switch {
	case n.Kind == KindRoot:
		return n.indent
	case n.elseNode == c:
		return n.indent
	case n.isElseIf():
		return n.indent
	}
	return n.indent + n.unit
}

// isElseIf reports whether n is an else branch holding exactly one if.
func (n *Node) isElseIf() bool {
	return n.Kind == KindElse && len(n.children) == 1 && n.children[0].Kind == KindIf
}

// Close tears down the condition, the else branch and every child, and
// detaches n from its parent. Closing twice is a no-op.
func (n *Node) Close() {
	if n.closed {
		return
	}
	n.closed = true
	n.detach()
	if n.Cond != nil {
		n.Cond.Close()
		n.Cond = nil
	}
	for _, ch := range n.children {
		ch.parent = nil
		ch.Close()
	}
	n.children = nil
	if n.elseNode != nil {
		e := n.elseNode
		n.elseNode = nil
		e.parent = nil
		e.Close()
	}
	n.Text = ""
}

// Clone returns a detached deep copy.
func (n *Node) Clone() *Node {
	c := &Node{Kind: n.Kind, Text: n.Text, Offset: n.Offset, unit: n.unit, closed: n.closed}
	if n.Cond != nil {
		c.Cond = n.Cond.Clone()
	}
	for _, ch := range n.children {
		c.AddChild(ch.Clone())
	}
	if n.elseNode != nil {
		c.SetElse(n.elseNode.Clone())
	}
	return c
}

// Walk calls fn for n and every descendant in render order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, ch := range n.children {
		ch.Walk(fn)
	}
	if n.elseNode != nil {
		n.elseNode.Walk(fn)
	}
}
