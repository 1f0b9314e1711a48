package index

import (
	"path"
	"regexp"
	"strings"
)

// Pathspec selects paths by literal prefix or glob. Patterns prefixed with
// ":!" or ":^" exclude what they match. An empty pathspec matches
// everything as "*".
type Pathspec struct {
	include []specPattern
	exclude []specPattern
}

type specPattern struct {
	raw    string
	text   string
	glob   *regexp.Regexp
	prefix bool
}

// NewPathspec compiles patterns.
func NewPathspec(patterns []string) *Pathspec {
	ps := &Pathspec{}
	for _, raw := range patterns {
		text, excluded := raw, false
		for _, marker := range []string{":!", ":^", ":(exclude)"} {
			if strings.HasPrefix(text, marker) {
				text, excluded = text[len(marker):], true
				break
			}
		}
		sp := compileSpec(raw, text)
		if excluded {
			ps.exclude = append(ps.exclude, sp)
		} else {
			ps.include = append(ps.include, sp)
		}
	}
	if len(ps.include) == 0 {
		ps.include = append(ps.include, compileSpec("*", "*"))
	}
	return ps
}

func compileSpec(raw, text string) specPattern {
	text = strings.TrimPrefix(text, "./")
	if text == "" || text == "." {
		return specPattern{raw: raw, prefix: true}
	}
	sp := specPattern{raw: raw, text: strings.TrimSuffix(text, "/")}
	if strings.ContainsAny(text, "*?[") {
		if re, err := regexp.Compile(pathspecRegex(sp.text)); err == nil {
			sp.glob = re
		}
	}
	return sp
}

// Match reports whether p is selected and which pattern selected it.
func (ps *Pathspec) Match(p string) (string, bool) {
	for i := range ps.exclude {
		if ps.exclude[i].matches(p) {
			return "", false
		}
	}
	for i := range ps.include {
		if ps.include[i].matches(p) {
			return ps.include[i].raw, true
		}
	}
	return "", false
}

func (sp *specPattern) matches(p string) bool {
	if sp.text == "" {
		return true
	}
	if p == sp.text || strings.HasPrefix(p, sp.text+"/") {
		return true
	}
	if sp.glob == nil {
		return false
	}
	if sp.glob.MatchString(p) {
		return true
	}
	// A glob naming a directory selects everything below it.
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		if sp.glob.MatchString(dir) {
			return true
		}
	}
	return false
}

// pathspecRegex converts a pathspec glob to a regexp. Unlike ignore rules,
// "*" crosses directory separators, as in git pathspecs.
func pathspecRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		switch ch := glob[i]; ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	return b.String()
}
