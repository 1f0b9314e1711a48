// Package ignore evaluates .gitignore rules against worktree paths.
package ignore

import (
	"bufio"
	"bytes"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Checker determines if a worktree path should be ignored. Rules come from
// .gitignore files in the worktree, loaded lazily per directory, and from
// extra root-level sources such as $GIT_DIR/info/exclude. The .git
// directory is always ignored.
type Checker struct {
	fs billy.Filesystem

	mu     sync.Mutex
	byDir  map[string][]pattern // directory ("" for root) -> its .gitignore rules
	global []pattern            // lowest precedence, evaluated at the root
}

type pattern struct {
	base     string // directory holding the rule file, "" for the root
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool // pattern contains a slash, so match against the path below base
	regex    *regexp.Regexp
}

// New creates a Checker for worktree. fs may be nil, in which case only
// rules added with AddPatterns apply.
func New(fs billy.Filesystem) *Checker {
	return &Checker{fs: fs, byDir: make(map[string][]pattern)}
}

// AddPatterns adds root-level rules with lower precedence than any
// .gitignore file, the way git treats info/exclude.
func (c *Checker) AddPatterns(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = append(c.global, parsePatterns("", data)...)
}

// AddPatternsFromFile reads rules from name on fsys if it exists.
func (c *Checker) AddPatternsFromFile(fsys billy.Filesystem, name string) {
	if fsys == nil {
		return
	}
	data, err := util.ReadFile(fsys, name)
	if err != nil {
		return
	}
	c.AddPatterns(data)
}

func parsePatterns(base string, data []byte) []pattern {
	var out []pattern
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if p := parseLine(base, scanner.Text()); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// parseLine parses a single line from a .gitignore file. Returns nil if the
// line is empty or a comment.
func parseLine(base, line string) *pattern {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasSuffix(line, `\ `) {
		line = strings.TrimRight(line, " \t")
	}
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := &pattern{base: base}
	switch {
	case strings.HasPrefix(line, "!"):
		p.negated = true
		line = line[1:]
	case strings.HasPrefix(line, `\!`), strings.HasPrefix(line, `\#`):
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if strings.Contains(line, "/") {
		p.anchored = true
	}
	if line == "" {
		return nil
	}

	p.pattern = line
	if strings.Contains(line, "**") {
		if re, err := regexp.Compile(globToRegex(line)); err == nil {
			p.regex = re
		}
	}
	return p
}

// IsIgnored reports whether the slash-separated path, relative to the
// worktree root, is ignored. A path inside an ignored directory is ignored
// regardless of later negations, as in git.
func (c *Checker) IsIgnored(p string, isDir bool) bool {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return false
	}
	parts := strings.Split(p, "/")
	if parts[0] == ".git" {
		return true
	}

	for i := 1; i < len(parts); i++ {
		if c.match(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return c.match(p, isDir)
}

// match evaluates the rules that apply to p: deeper .gitignore files win
// over shallower ones, later lines over earlier ones.
func (c *Checker) match(p string, isDir bool) bool {
	dir := path.Dir(p)
	if dir == "." {
		dir = ""
	}

	var scopes []string
	for d := dir; ; d = parentDir(d) {
		scopes = append(scopes, d)
		if d == "" {
			break
		}
	}

	for _, scope := range scopes {
		rules := c.rulesFor(scope)
		for i := len(rules) - 1; i >= 0; i-- {
			if rules[i].matches(p, isDir) {
				return !rules[i].negated
			}
		}
	}

	c.mu.Lock()
	global := c.global
	c.mu.Unlock()
	for i := len(global) - 1; i >= 0; i-- {
		if global[i].matches(p, isDir) {
			return !global[i].negated
		}
	}
	return false
}

func parentDir(d string) string {
	if i := strings.LastIndexByte(d, '/'); i >= 0 {
		return d[:i]
	}
	return ""
}

func (c *Checker) rulesFor(dir string) []pattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rules, ok := c.byDir[dir]; ok {
		return rules
	}
	var rules []pattern
	if c.fs != nil {
		if data, err := util.ReadFile(c.fs, path.Join(dir, ".gitignore")); err == nil {
			rules = parsePatterns(dir, data)
		}
	}
	c.byDir[dir] = rules
	return rules
}

// matches checks a path relative to the worktree root against the rule.
func (p *pattern) matches(target string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}
	rel := target
	if p.base != "" {
		if !strings.HasPrefix(target, p.base+"/") {
			return false
		}
		rel = target[len(p.base)+1:]
	}

	if p.anchored {
		return p.match(rel)
	}
	return p.match(path.Base(rel))
}

func (p *pattern) match(target string) bool {
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	matched, _ := path.Match(p.pattern, target)
	return matched
}

func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if ch == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// "**/" matches zero or more leading directories.
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		if ch == '?' {
			b.WriteString("[^/]")
			continue
		}
		if strings.ContainsRune(`.+()|[]{}^$\`, rune(ch)) {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	b.WriteString("$")
	return b.String()
}
