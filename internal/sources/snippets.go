//go:build cgo

package sources

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"pce/internal/config"
	"pce/internal/logging"
	"pce/internal/relevance"
)

// snippetMaxLines caps how many lines of a function body one snippet
// carries.
const snippetMaxLines = 40

// SnippetsAdapter extracts function-level code snippets relevant to the
// prompt from the project's own source tree.
type SnippetsAdapter struct {
	repoRoot string
	cfg      config.SnippetsSourceConfig
	logger   *logging.Logger
}

// NewSnippetsAdapter creates a snippet adapter rooted at repoRoot.
func NewSnippetsAdapter(repoRoot string, cfg config.SnippetsSourceConfig, logger *logging.Logger) *SnippetsAdapter {
	return &SnippetsAdapter{repoRoot: repoRoot, cfg: cfg, logger: logger}
}

// Kind implements Adapter.
func (a *SnippetsAdapter) Kind() SourceKind { return KindSnippet }

var extLanguages = map[string]*sitter.Language{
	".go":  golang.GetLanguage(),
	".js":  javascript.GetLanguage(),
	".jsx": javascript.GetLanguage(),
	".ts":  typescript.GetLanguage(),
	".py":  python.GetLanguage(),
}

var functionNodeTypes = map[string][]string{
	".go":  {"function_declaration", "method_declaration"},
	".js":  {"function_declaration", "method_definition", "generator_function_declaration"},
	".jsx": {"function_declaration", "method_definition"},
	".ts":  {"function_declaration", "method_definition"},
	".py":  {"function_definition"},
}

// Fetch implements Adapter. Individual file parse failures are skipped;
// the scan itself only fails on a filesystem error at the root.
func (a *SnippetsAdapter) Fetch(ctx context.Context, q Query) ([]ContextItem, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	var items []ContextItem
	seen := make(map[string]bool)
	scanned := 0

	err := filepath.WalkDir(a.repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if a.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		lang, ok := extLanguages[ext]
		if !ok {
			return nil
		}
		if scanned >= a.cfg.MaxFilesScanned {
			return filepath.SkipAll
		}
		scanned++

		info, err := d.Info()
		if err != nil || info.Size() > int64(a.cfg.MaxFileSizeBytes) {
			return nil
		}

		source, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(a.repoRoot, path)
		if relErr != nil {
			rel = path
		}

		fileItems, err := a.extract(ctx, parser, lang, functionNodeTypes[ext], source, rel, q.Prompt)
		if err != nil {
			a.logger.Warn("Snippet extraction failed for file", map[string]interface{}{
				"file":  rel,
				"error": err.Error(),
			})
			return nil
		}

		for _, item := range fileItems {
			if seen[item.Origin] {
				continue
			}
			seen[item.Origin] = true
			items = append(items, item)
		}
		return nil
	})
	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return items, err
	}

	return topByRelevance(items, a.cfg.MaxItems), nil
}

func (a *SnippetsAdapter) ignored(dirName string) bool {
	if strings.HasPrefix(dirName, ".") && dirName != "." {
		return true
	}
	for _, ignore := range a.cfg.Ignore {
		if dirName == ignore {
			return true
		}
	}
	return false
}

// extract parses one file and returns prompt-relevant function snippets.
func (a *SnippetsAdapter) extract(ctx context.Context, parser *sitter.Parser, lang *sitter.Language, nodeTypes []string, source []byte, relPath, prompt string) ([]ContextItem, error) {
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	wanted := make(map[string]bool, len(nodeTypes))
	for _, t := range nodeTypes {
		wanted[t] = true
	}

	var items []ContextItem
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if wanted[node.Type()] {
			if item, ok := a.snippetFor(node, source, relPath, prompt); ok {
				items = append(items, item)
			}
			// Nested functions inside a matched one are not re-extracted
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())

	return items, nil
}

func (a *SnippetsAdapter) snippetFor(node *sitter.Node, source []byte, relPath, prompt string) (ContextItem, bool) {
	name := ""
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(source)
	}

	body := node.Content(source)
	lines := strings.Split(body, "\n")
	if len(lines) > snippetMaxLines {
		lines = append(lines[:snippetMaxLines], "// ...")
		body = strings.Join(lines, "\n")
	}

	score := relevance.Score(prompt, name+" "+body)
	if score == 0 {
		return ContextItem{}, false
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	return ContextItem{
		Kind:      KindSnippet,
		Text:      fmt.Sprintf("From %s:%d:\n%s", relPath, startLine, body),
		Relevance: score,
		Origin:    fmt.Sprintf("%s:%d-%d", relPath, startLine, endLine),
	}, true
}
