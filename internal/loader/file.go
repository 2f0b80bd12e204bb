package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File reads a YAML (.yaml, .yml) or JSON (.json) document.
type File struct {
	Path string
}

func (f File) Name() string { return f.Path }

func (f File) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return Document{}, fmt.Errorf("could not read problem file: %w", err)
	}
	var doc Document
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
	default:
		return Document{}, fmt.Errorf("unsupported problem file extension %q", filepath.Ext(f.Path))
	}
	if err != nil {
		return Document{}, fmt.Errorf("could not parse %s: %w", f.Path, err)
	}
	return doc, nil
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
