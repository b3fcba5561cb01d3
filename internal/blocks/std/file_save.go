package std

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/objectstore"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("file.save", newFileSave)
}

type fileSaveBlock struct {
	bucket      string
	path        string
	contentTpl  string
	encoding    string
	contentType string
}

func newFileSave(settings map[string]any) (blocks.Block, error) {
	path := blocks.GetString(settings, "path", "")
	if path == "" {
		return nil, blocks.ConfigError("file.save: %q setting is required", "path")
	}
	return &fileSaveBlock{
		bucket:      blocks.GetString(settings, "bucket", "default"),
		path:        path,
		contentTpl:  blocks.GetString(settings, "content", ""),
		encoding:    blocks.GetString(settings, "content_encoding", "text"),
		contentType: blocks.GetString(settings, "content_type", "application/octet-stream"),
	}, nil
}

func (b *fileSaveBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *fileSaveBlock) ToolCompatible() bool   { return true }
func (b *fileSaveBlock) Extras() map[string]any { return nil }

func (b *fileSaveBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"path"},
		"properties": map[string]any{
			"path":             map[string]any{"type": "string", "minLength": 1},
			"bucket":           map[string]any{"type": "string"},
			"content":          map[string]any{"type": "string"},
			"content_encoding": map[string]any{"type": "string", "enum": []string{"text", "base64", "data_url"}},
			"content_type":     map[string]any{"type": "string"},
		},
	}
}

func (b *fileSaveBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	if in.Caps.Store == nil {
		return blocks.Output{}, blocks.DependencyError(errNoObjectStore)
	}

	flat := template.FlattenUpstream(in.Upstream)

	path, err := template.Render(b.path, flat, template.Strict)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("file.save: render path: %v", err)
	}

	data, contentType, err := b.resolveContent(ctx, flat, in.Caps.Store)
	if err != nil {
		return blocks.Output{}, err
	}

	size, err := in.Caps.Store.Put(ctx, b.bucket, path, bytes.NewReader(data))
	if err != nil {
		return blocks.Output{}, blocks.DependencyError(err)
	}

	url, expiresAt := in.Caps.Store.SignedURL(b.bucket, path)

	ref := blocks.FileRef{
		Bucket:             b.bucket,
		Path:               path,
		Size:               size,
		ContentType:        contentType,
		SignedURL:          url,
		SignedURLExpiresAt: expiresAt.Format(time.RFC3339),
	}

	return blocks.Output{Data: map[string]any{"files": []blocks.FileRef{ref}}}, nil
}

// resolveContent follows spec.md's content resolution order: an explicit
// "content" setting (rendered, then decoded per "content_encoding") takes
// priority; with no content configured, the first upstream FileRef is
// re-fetched from the object store and its bytes re-saved under this
// node's own path.
func (b *fileSaveBlock) resolveContent(ctx context.Context, flat map[string]any, store *objectstore.Store) ([]byte, string, error) {
	if b.contentTpl != "" {
		rendered, err := template.Render(b.contentTpl, flat, template.Permissive)
		if err != nil {
			return nil, "", blocks.ConfigError("file.save: render content: %v", err)
		}
		data, err := decodeContent(rendered, b.encoding)
		if err != nil {
			return nil, "", blocks.ConfigError("file.save: decode content: %v", err)
		}
		return data, b.contentType, nil
	}

	ref, ok := firstUpstreamFileRef(flat)
	if !ok {
		return nil, "", blocks.ConfigError("file.save: no %q setting and no upstream file to re-save", "content")
	}

	rc, err := store.Get(ctx, ref.Bucket, ref.Path)
	if err != nil {
		return nil, "", blocks.DependencyError(err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, "", blocks.DependencyError(err)
	}

	contentType := ref.ContentType
	if contentType == "" {
		contentType = b.contentType
	}
	return buf.Bytes(), contentType, nil
}

func decodeContent(raw, encoding string) ([]byte, error) {
	switch encoding {
	case "", "text":
		return []byte(raw), nil
	case "base64":
		return base64.StdEncoding.DecodeString(raw)
	case "data_url":
		_, payload, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, blocks.ConfigError("file.save: %q content is not a data URL", "content")
		}
		return base64.StdEncoding.DecodeString(payload)
	default:
		return nil, blocks.ConfigError("file.save: unknown %q value %q", "content_encoding", encoding)
	}
}

// firstUpstreamFileRef looks for a FileRef-shaped map among the flattened
// upstream values — either a file.save's own {"files": [...]} output
// (already unwrapped by FlattenUpstream's "data" handling) or a single
// FileRef map under any key.
func firstUpstreamFileRef(flat map[string]any) (blocks.FileRef, bool) {
	for _, v := range flat {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		files, ok := m["files"]
		if !ok {
			continue
		}
		if ref, ok := fileRefFromAny(firstSliceElement(files)); ok {
			return ref, true
		}
	}
	for _, v := range flat {
		if ref, ok := fileRefFromAny(v); ok {
			return ref, true
		}
	}
	return blocks.FileRef{}, false
}

func firstSliceElement(v any) any {
	switch s := v.(type) {
	case []any:
		if len(s) > 0 {
			return s[0]
		}
	case []blocks.FileRef:
		if len(s) > 0 {
			return s[0]
		}
	}
	return nil
}

func fileRefFromAny(v any) (blocks.FileRef, bool) {
	switch ref := v.(type) {
	case blocks.FileRef:
		return ref, true
	case map[string]any:
		bucket, _ := ref["bucket"].(string)
		path, _ := ref["path"].(string)
		if bucket == "" || path == "" {
			return blocks.FileRef{}, false
		}
		contentType, _ := ref["content_type"].(string)
		return blocks.FileRef{Bucket: bucket, Path: path, ContentType: contentType}, true
	default:
		return blocks.FileRef{}, false
	}
}
