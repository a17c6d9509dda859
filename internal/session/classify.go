package session

import "strings"

// FragmentKind distinguishes persistent declarations from statements that
// re-run inside the synthesized entry point.
type FragmentKind int

const (
	KindDeclaration FragmentKind = iota
	KindStatement
)

// Fragment is one classified unit of submitted cell source.
type Fragment struct {
	Kind   FragmentKind
	Source string
}

// Top-level declaration starters in V. Attribute lines belong to the
// declaration that follows and count as declaration starts themselves.
var declKeywords = []string{
	"fn ",
	"struct ",
	"interface ",
	"enum ",
	"type ",
	"const ",
	"const(",
	"import ",
	"__global",
}

// Classify splits cell source into declaration and statement fragments.
// The scanner is line/brace-block based rather than a full parser; cells
// tend to contain one conceptual unit, so this holds up in practice.
func Classify(code string) []Fragment {
	lines := strings.Split(code, "\n")
	fragments := make([]Fragment, 0, 2)

	for i := 0; i < len(lines); {
		trimmed := strings.TrimSpace(lines[i])

		// Blank lines, comments, and shebangs carry no fragment.
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "#!") {
			i++
			continue
		}
		// The module clause is skipped; synthesis emits its own.
		if strings.HasPrefix(trimmed, "module ") {
			i++
			continue
		}

		kind := KindStatement
		if isTopLevelDecl(trimmed) {
			kind = KindDeclaration
		}
		block, consumed := collectBlock(lines, i)
		fragments = append(fragments, Fragment{Kind: kind, Source: block})
		i += consumed
	}
	return fragments
}

// isTopLevelDecl reports whether a line starts a top-level declaration.
func isTopLevelDecl(line string) bool {
	stripped := line
	for {
		next := stripped
		next = strings.TrimPrefix(next, "pub ")
		next = strings.TrimPrefix(next, "mut ")
		next = strings.TrimPrefix(next, "static ")
		if next == stripped {
			break
		}
		stripped = next
	}

	if strings.HasPrefix(stripped, "[") || strings.HasPrefix(stripped, "@[") {
		return true
	}
	for _, kw := range declKeywords {
		if strings.HasPrefix(stripped, kw) {
			return true
		}
	}
	return false
}

// collectBlock gathers a brace-delimited block starting at index start, or
// the single line when it opens no brace. Returns the source and the number
// of lines consumed.
func collectBlock(lines []string, start int) (string, int) {
	if !strings.Contains(lines[start], "{") {
		return lines[start], 1
	}

	depth := 0
	collected := make([]string, 0, 4)
	i := start
	for i < len(lines) {
		line := lines[i]
		for _, ch := range line {
			switch ch {
			case '{':
				depth++
			case '}':
				depth--
			}
		}
		collected = append(collected, line)
		i++
		if depth <= 0 {
			break
		}
	}
	return strings.Join(collected, "\n"), i - start
}
