package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"pce/internal/config"
	"pce/internal/logging"
	"pce/internal/relevance"
)

// FactsAdapter extracts project-level facts from manifests and layout.
// The scan is read-only and shallow: manifests at the repo root only.
type FactsAdapter struct {
	repoRoot string
	cfg      config.FactsSourceConfig
	logger   *logging.Logger
}

// NewFactsAdapter creates a project-fact adapter rooted at repoRoot.
func NewFactsAdapter(repoRoot string, cfg config.FactsSourceConfig, logger *logging.Logger) *FactsAdapter {
	return &FactsAdapter{repoRoot: repoRoot, cfg: cfg, logger: logger}
}

// Kind implements Adapter.
func (a *FactsAdapter) Kind() SourceKind { return KindFact }

// Fetch implements Adapter. Unreadable or malformed manifests are
// skipped with a warning; they never fail the fetch.
func (a *FactsAdapter) Fetch(ctx context.Context, q Query) ([]ContextItem, error) {
	var facts []string

	collectors := []func() []string{
		a.goModFacts,
		a.packageJSONFacts,
		a.pyprojectFacts,
		a.cargoFacts,
		a.pubspecFacts,
		a.composeFacts,
		a.layoutFacts,
	}

	for _, collect := range collectors {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		facts = append(facts, collect()...)
	}

	// Dedup by fact text
	seen := make(map[string]bool, len(facts))
	items := make([]ContextItem, 0, len(facts))
	for _, fact := range facts {
		if fact == "" || seen[fact] {
			continue
		}
		seen[fact] = true
		items = append(items, ContextItem{
			Kind:      KindFact,
			Text:      fact,
			Relevance: factRelevance(q.Prompt, fact),
			Origin:    "project-scan",
		})
	}

	return topByRelevance(items, a.cfg.MaxItems), nil
}

// factRelevance blends a baseline (every project fact is mildly useful)
// with lexical overlap against the prompt.
func factRelevance(prompt, fact string) float64 {
	return 0.4 + 0.6*relevance.Score(prompt, fact)
}

func (a *FactsAdapter) goModFacts() []string {
	path := filepath.Join(a.repoRoot, "go.mod")
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var facts []string
	var deps []string
	inRequire := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "module "):
			facts = append(facts, fmt.Sprintf("Go module %s", strings.TrimPrefix(line, "module ")))
		case strings.HasPrefix(line, "go "):
			facts = append(facts, fmt.Sprintf("Go version %s", strings.TrimPrefix(line, "go ")))
		case line == "require (":
			inRequire = true
		case inRequire && line == ")":
			inRequire = false
		case inRequire && !strings.Contains(line, "// indirect"):
			if fields := strings.Fields(line); len(fields) >= 1 {
				deps = append(deps, fields[0])
			}
		}
	}

	if len(deps) > 0 {
		facts = append(facts, "Go dependencies: "+strings.Join(capList(deps, 12), ", "))
	}
	return facts
}

func (a *FactsAdapter) packageJSONFacts() []string {
	data, err := os.ReadFile(filepath.Join(a.repoRoot, "package.json"))
	if err != nil {
		return nil
	}

	var pkg struct {
		Name            string            `json:"name"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		a.logger.Warn("Malformed package.json skipped", map[string]interface{}{"error": err.Error()})
		return nil
	}

	var facts []string
	if pkg.Name != "" {
		facts = append(facts, fmt.Sprintf("Node.js project %q", pkg.Name))
	}
	if len(pkg.Dependencies) > 0 {
		facts = append(facts, "npm dependencies: "+strings.Join(capList(sortedKeys(pkg.Dependencies), 12), ", "))
	}
	if len(pkg.DevDependencies) > 0 {
		facts = append(facts, "npm dev dependencies: "+strings.Join(capList(sortedKeys(pkg.DevDependencies), 8), ", "))
	}
	return facts
}

func (a *FactsAdapter) pyprojectFacts() []string {
	data, err := os.ReadFile(filepath.Join(a.repoRoot, "pyproject.toml"))
	if err != nil {
		return nil
	}

	var py struct {
		Project struct {
			Name         string   `toml:"name"`
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
	}
	if err := toml.Unmarshal(data, &py); err != nil {
		a.logger.Warn("Malformed pyproject.toml skipped", map[string]interface{}{"error": err.Error()})
		return nil
	}

	var facts []string
	if py.Project.Name != "" {
		facts = append(facts, fmt.Sprintf("Python project %q", py.Project.Name))
	}
	if len(py.Project.Dependencies) > 0 {
		facts = append(facts, "Python dependencies: "+strings.Join(capList(py.Project.Dependencies, 12), ", "))
	}
	return facts
}

func (a *FactsAdapter) cargoFacts() []string {
	data, err := os.ReadFile(filepath.Join(a.repoRoot, "Cargo.toml"))
	if err != nil {
		return nil
	}

	var cargo struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
		Dependencies map[string]interface{} `toml:"dependencies"`
	}
	if err := toml.Unmarshal(data, &cargo); err != nil {
		a.logger.Warn("Malformed Cargo.toml skipped", map[string]interface{}{"error": err.Error()})
		return nil
	}

	var facts []string
	if cargo.Package.Name != "" {
		facts = append(facts, fmt.Sprintf("Rust crate %q", cargo.Package.Name))
	}
	if len(cargo.Dependencies) > 0 {
		keys := make([]string, 0, len(cargo.Dependencies))
		for k := range cargo.Dependencies {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		facts = append(facts, "Cargo dependencies: "+strings.Join(capList(keys, 12), ", "))
	}
	return facts
}

func (a *FactsAdapter) pubspecFacts() []string {
	data, err := os.ReadFile(filepath.Join(a.repoRoot, "pubspec.yaml"))
	if err != nil {
		return nil
	}

	var pub struct {
		Name         string                 `yaml:"name"`
		Dependencies map[string]interface{} `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(data, &pub); err != nil {
		a.logger.Warn("Malformed pubspec.yaml skipped", map[string]interface{}{"error": err.Error()})
		return nil
	}

	var facts []string
	if pub.Name != "" {
		facts = append(facts, fmt.Sprintf("Dart/Flutter project %q", pub.Name))
	}
	if len(pub.Dependencies) > 0 {
		keys := make([]string, 0, len(pub.Dependencies))
		for k := range pub.Dependencies {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		facts = append(facts, "Dart dependencies: "+strings.Join(capList(keys, 12), ", "))
	}
	return facts
}

func (a *FactsAdapter) composeFacts() []string {
	var data []byte
	var err error
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		data, err = os.ReadFile(filepath.Join(a.repoRoot, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil
	}

	var compose struct {
		Services map[string]struct {
			Image string `yaml:"image"`
		} `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &compose); err != nil {
		a.logger.Warn("Malformed compose file skipped", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if len(compose.Services) == 0 {
		return nil
	}

	parts := make([]string, 0, len(compose.Services))
	for name, svc := range compose.Services {
		if svc.Image != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, svc.Image))
		} else {
			parts = append(parts, name)
		}
	}
	sort.Strings(parts)
	return []string{"Docker Compose services: " + strings.Join(parts, ", ")}
}

func (a *FactsAdapter) layoutFacts() []string {
	var facts []string
	if fileReadable(filepath.Join(a.repoRoot, "Dockerfile")) {
		facts = append(facts, "Project has a Dockerfile")
	}
	if dirReadable(filepath.Join(a.repoRoot, ".github", "workflows")) {
		facts = append(facts, "Project uses GitHub Actions workflows")
	}
	if fileReadable(filepath.Join(a.repoRoot, "Makefile")) {
		facts = append(facts, "Project has a Makefile")
	}
	return facts
}

func capList(values []string, max int) []string {
	if len(values) > max {
		return values[:max]
	}
	return values
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fileReadable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirReadable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
