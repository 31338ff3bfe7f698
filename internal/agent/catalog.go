package agent

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed definitions/*.yaml
var embedded embed.FS

// Load reads definitions from dir, or the embedded set when dir is empty.
func Load(dir string, logger *zap.Logger) ([]Definition, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(dir) == "" {
		sub, err := fs.Sub(embedded, "definitions")
		if err != nil {
			return nil, fmt.Errorf("open embedded definitions: %w", err)
		}
		return loadFS(sub, logger)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("agents dir: %w", err)
	}
	return loadFS(os.DirFS(dir), logger)
}

func loadFS(fsys fs.FS, logger *zap.Logger) ([]Definition, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read agent definitions: %w", err)
	}

	defs := make([]Definition, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if def.ID == "" {
			def.ID = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("%s: agent id %q already defined in %s", name, def.ID, prev)
		}
		seen[def.ID] = name
		logger.Debug("loaded agent definition", zap.String("agent", def.ID), zap.String("file", name))
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no agent definitions found")
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}

// Parse decodes one YAML definition, rejecting unknown keys.
func Parse(data []byte) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("parse agent definition: %w", err)
	}
	return def, nil
}
