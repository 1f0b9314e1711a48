package repo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/ini.v1"
)

// Config is the repository's git config file. Section and key names are
// case-insensitive; a subsection is addressed as `remote "origin"`.
type Config struct {
	fs   billy.Filesystem
	file *ini.File
}

func loadConfig(fs billy.Filesystem) (*Config, error) {
	data, err := util.ReadFile(fs, "config")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	f, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:             true,
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &Config{fs: fs, file: f}, nil
}

// Get returns the value of section.key, or "" when unset.
func (c *Config) Get(section, key string) string {
	s, err := c.file.GetSection(section)
	if err != nil || !s.HasKey(key) {
		return ""
	}
	return strings.TrimSpace(s.Key(key).String())
}

// Bool returns section.key as a git boolean, or def when unset or
// unparsable.
func (c *Config) Bool(section, key string, def bool) bool {
	s, err := c.file.GetSection(section)
	if err != nil || !s.HasKey(key) {
		return def
	}
	v, err := s.Key(key).Bool()
	if err != nil {
		return def
	}
	return v
}

// Set assigns section.key in memory. Save persists it.
func (c *Config) Set(section, key, value string) {
	c.file.Section(section).Key(key).SetValue(value)
}

// Unset removes section.key.
func (c *Config) Unset(section, key string) {
	if s, err := c.file.GetSection(section); err == nil {
		s.DeleteKey(key)
	}
}

// Save writes the config file atomically.
func (c *Config) Save() error {
	var buf bytes.Buffer
	if _, err := c.file.WriteTo(&buf); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	tmp, err := util.TempFile(c.fs, "", "config.tmp-")
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		_ = c.fs.Remove(tmp.Name())
		return fmt.Errorf("save config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmp.Name())
		return fmt.Errorf("save config: %w", err)
	}
	if err := c.fs.Rename(tmp.Name(), "config"); err != nil {
		_ = c.fs.Remove(tmp.Name())
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// UserName returns user.name.
func (c *Config) UserName() string { return c.Get("user", "name") }

// UserEmail returns user.email.
func (c *Config) UserEmail() string { return c.Get("user", "email") }

// Bare returns core.bare.
func (c *Config) Bare() bool { return c.Bool("core", "bare", false) }

// FileMode returns core.fileMode; false makes executable-bit changes
// invisible to diffs against the worktree.
func (c *Config) FileMode() bool { return c.Bool("core", "filemode", true) }

// MergeRenames returns merge.renames, defaulting to diff.renames.
func (c *Config) MergeRenames() bool {
	return c.Bool("merge", "renames", c.DiffRenames())
}

// DiffRenames returns diff.renames.
func (c *Config) DiffRenames() bool { return c.Bool("diff", "renames", true) }

// LogAllRefUpdates returns core.logAllRefUpdates as "true", "false" or
// "always". Unset means true for non-bare repositories.
func (c *Config) LogAllRefUpdates() string {
	v := strings.ToLower(c.Get("core", "logallrefupdates"))
	switch v {
	case "always":
		return "always"
	case "":
		if c.Bare() {
			return "false"
		}
		return "true"
	}
	if c.Bool("core", "logallrefupdates", true) {
		return "true"
	}
	return "false"
}
