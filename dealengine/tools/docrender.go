package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mna-automation/dealcore/dealengine/gateway"
	"github.com/mna-automation/dealcore/dealengine/typeutil"
)

// DocumentRenderer writes the deal documents (strategy report, valuation
// report, closing summary) as markdown files under a deal directory. It is
// the only write-style tool in the standard set: callers attach an
// idempotency key so a retried stage never rewrites a finished document.
type DocumentRenderer struct {
	dir string
}

// NewDocumentRenderer creates a renderer rooted at dir. The directory is
// created on first render.
func NewDocumentRenderer(dir string) *DocumentRenderer {
	return &DocumentRenderer{dir: dir}
}

// Definition exposes the renderer as the document_render tool.
func (d *DocumentRenderer) Definition() *gateway.ToolDefinition {
	return &gateway.ToolDefinition{
		Name:        ToolDocumentRender,
		Description: "Writes a markdown document into the deal folder",
		Category:    "document",
		WriteStyle:  true,
		Classify:    d.classify,
		Handler:     d.handle,
	}
}

// errBadRenderParams marks caller mistakes that retrying cannot fix.
var errBadRenderParams = errors.New("invalid document_render parameters")

func (d *DocumentRenderer) classify(err error) gateway.ErrorClass {
	if errors.Is(err, errBadRenderParams) {
		return gateway.ErrorClassPermanent
	}
	// Filesystem hiccups (full disk recovering, slow NFS) may clear up.
	return gateway.ErrorClassTransient
}

func (d *DocumentRenderer) handle(ctx context.Context, params map[string]any) (map[string]any, error) {
	name, ok := typeutil.SafeString(params["name"])
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: 'name' is required", errBadRenderParams)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: 'name' must be a bare file name, got %q", errBadRenderParams, name)
	}
	content, ok := typeutil.SafeString(params["content"])
	if !ok || content == "" {
		return nil, fmt.Errorf("%w: 'content' is required", errBadRenderParams)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(d.dir, name+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}

	return map[string]any{
		"path":        path,
		"bytes":       len(content),
		"rendered_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
