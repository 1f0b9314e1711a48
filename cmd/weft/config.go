package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/odvcencio/weft/pkg/diff3"
)

// toolConfig is the per-user configuration of the weft command, separate
// from the repository's own config file.
type toolConfig struct {
	Log     logSection     `toml:"log"`
	User    userSection    `toml:"user"`
	Signing signingSection `toml:"signing"`
	Diff    diffSection    `toml:"diff"`
	Merge   mergeSection   `toml:"merge"`
}

type logSection struct {
	Level string `toml:"level"`
}

type userSection struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type signingSection struct {
	Key     string `toml:"key"`
	Enabled bool   `toml:"enabled"`
}

type diffSection struct {
	ContextLines    int `toml:"context_lines"`
	RenameThreshold int `toml:"rename_threshold"`
}

type mergeSection struct {
	// Preference resolves conflicting hunks: "", "ours", "theirs" or "union".
	Preference string `toml:"preference"`
}

const toolConfigRelPath = "weft/config.toml"

// loadToolConfig decodes path, or the config found under the XDG config
// directories when path is empty. A missing default file yields zero
// values; a missing explicit file is an error.
func loadToolConfig(path string) (*toolConfig, error) {
	cfg := &toolConfig{}
	if path == "" {
		found, err := xdg.SearchConfigFile(toolConfigRelPath)
		if err != nil {
			return cfg, nil
		}
		path = found
	}
	md, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("tool config %s: not found", path)
	}
	if err != nil {
		return nil, fmt.Errorf("tool config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("tool config %s: unknown key %s", path, undecoded[0])
	}
	if _, err := cfg.favor(); err != nil {
		return nil, fmt.Errorf("tool config %s: %w", path, err)
	}
	return cfg, nil
}

// favor maps [merge] preference to a conflict resolution mode.
func (c *toolConfig) favor() (diff3.Favor, error) {
	return parseFavor(c.Merge.Preference)
}

func parseFavor(s string) (diff3.Favor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "normal":
		return diff3.FavorNone, nil
	case "ours":
		return diff3.FavorOurs, nil
	case "theirs":
		return diff3.FavorTheirs, nil
	case "union":
		return diff3.FavorUnion, nil
	}
	return diff3.FavorNone, fmt.Errorf("unknown merge preference %q", s)
}

func parseLogLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}
