package decompiler

import "strings"

// Render returns the pseudo-source text of n and its descendants.
func (n *Node) Render() string {
	var sb strings.Builder
	n.render(&sb)
	return sb.String()
}

func (n *Node) render(sb *strings.Builder) {
	if n.closed {
		return
	}
	switch n.Kind {
	case KindRoot:
		for i, c := range n.children {
			if i > 0 && (c.Kind == KindFunction || n.children[i-1].Kind == KindFunction) {
				sb.WriteString("\n")
			}
			c.render(sb)
		}
	case KindFunction:
		sb.WriteString(n.indent + n.Text + " {\n")
		n.renderChildren(sb)
		sb.WriteString(n.indent + "}\n")
	case KindIf:
		n.renderIf(sb, n.indent)
	case KindElse:
		if n.isElseIf() {
			n.children[0].renderIf(sb, n.indent+"else ")
			return
		}
		sb.WriteString(n.indent + "else {\n")
		n.renderChildren(sb)
		sb.WriteString(n.indent + "}\n")
	case KindWhile:
		sb.WriteString(n.indent + "while (" + condText(n.Cond) + ") {\n")
		n.renderChildren(sb)
		sb.WriteString(n.indent + "}\n")
	case KindDoWhile:
		sb.WriteString(n.indent + "do {\n")
		n.renderChildren(sb)
		sb.WriteString(n.indent + "} while (" + condText(n.Cond) + ");\n")
	default:
		sb.WriteString(n.indent + n.inline() + "\n")
	}
}

func (n *Node) renderIf(sb *strings.Builder, prefix string) {
	sb.WriteString(prefix + "if (" + condText(n.Cond) + ") {\n")
	n.renderChildren(sb)
	sb.WriteString(n.indent + "}\n")
	if n.elseNode != nil {
		n.elseNode.render(sb)
	}
}

func (n *Node) renderChildren(sb *strings.Builder) {
	for _, c := range n.children {
		c.render(sb)
	}
}

// inline renders a node on a single line without indentation.
func (n *Node) inline() string {
	switch n.Kind {
	case KindExpr:
		return exprText(n.Cond) + ";"
	case KindDecl:
		if n.Cond == nil {
			return n.Text + ";"
		}
		return n.Text + " = " + exprText(n.Cond) + ";"
	case KindAssign:
		return n.Text + " = " + exprText(n.Cond) + ";"
	case KindReturn:
		if n.Cond == nil {
			return "return;"
		}
		return "return " + exprText(n.Cond) + ";"
	case KindBreak:
		return "break;"
	case KindContinue:
		return "continue;"
	case KindComment:
		return "// " + n.Text
	case KindUndeterminedExit:
		return "/* undetermined loop exit: " + n.Text + " */"
	}
	lines := strings.Split(n.Render(), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}

// exprText renders a statement value without redundant outer parentheses.
func exprText(e Expression) string {
	if e == nil {
		return ""
	}
	return stripParens(e.String())
}

// condText renders a loop or if guard. One redundant pair of outer
// parentheses is dropped since the guard is already parenthesized. A missing
// condition is the always-true guard.
func condText(e Expression) string {
	if e == nil {
		return "1"
	}
	return stripParens(e.String())
}

func stripParens(s string) string {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return s
	}
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return s
			}
		}
	}
	return s[1 : len(s)-1]
}
