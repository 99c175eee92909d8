package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/uaspace/internal/config"
	"github.com/Benny93/uaspace/internal/graph"
	"github.com/Benny93/uaspace/internal/parsers"
)

// FileEntry represents a nodeset file found on disk.
type FileEntry struct {
	// Path is the absolute file path.
	Path string

	// RelPath is the path relative to the walked directory.
	RelPath string

	// Content is the file content.
	Content []byte

	// SHA256 is the hash of the file content.
	SHA256 string
}

// Default patterns to ignore (in addition to .gitignore).
var defaultIgnorePatterns = []string{
	".git/",
	".uaspace/",
	"node_modules/",
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*~",
}

// WalkNodeSets walks dir and returns every XML file whose root element is
// UANodeSet, in lexical path order. Paths matched by the default ignore
// patterns, patterns or dir/.gitignore are skipped.
func WalkNodeSets(dir string, patterns []gitignore.Pattern) ([]FileEntry, error) {
	loaded, err := loadGitignore(dir)
	if err != nil {
		return nil, fmt.Errorf("loading .gitignore: %w", err)
	}
	matcher := newIgnoreMatcher(append(loaded, patterns...))

	var entries []FileEntry
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != dir && shouldSkipDir(d.Name(), path, dir, matcher) {
				return filepath.SkipDir
			}
			return nil
		}

		if !isNodeSetFile(d.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if matcher.Match(splitPath(relPath), false) {
			return nil
		}

		entry, ok, err := readNodeSetFile(path, relPath)
		if err != nil {
			return err
		}
		if ok {
			entries = append(entries, entry)
		}
		return nil
	})

	return entries, err
}

// readNodeSetFile reads path; ok is false when it is not a nodeset document.
func readNodeSetFile(path, relPath string) (FileEntry, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return FileEntry{}, false, err
	}
	if !parsers.IsNodeSet(content) {
		return FileEntry{}, false, nil
	}

	hash := sha256.Sum256(content)
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileEntry{}, false, err
	}
	return FileEntry{
		Path:    abs,
		RelPath: relPath,
		Content: content,
		SHA256:  hex.EncodeToString(hash[:]),
	}, true, nil
}

func newIgnoreMatcher(patterns []gitignore.Pattern) gitignore.Matcher {
	all := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns)+len(patterns))
	for _, p := range defaultIgnorePatterns {
		all = append(all, gitignore.ParsePattern(p, nil))
	}
	all = append(all, patterns...)
	return gitignore.NewMatcher(all)
}

// loadGitignore loads .gitignore patterns from dir.
func loadGitignore(dir string) ([]gitignore.Pattern, error) {
	content, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, nil
}

// isNodeSetFile checks if a file name has the .xml extension.
func isNodeSetFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}

// shouldSkipDir checks if a directory should be skipped.
func shouldSkipDir(name, path, root string, matcher gitignore.Matcher) bool {
	if name == ".git" {
		return true
	}
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return matcher.Match(splitPath(relPath), true)
}

// splitPath splits a path into its components.
func splitPath(path string) []string {
	return strings.Split(path, string(filepath.Separator))
}

// DiscoverPlan orders nodeset files so that every document follows the
// documents defining the models it requires, and derives each document's
// alias from its model URI ("http://opcfoundation.org/UA/DI/" -> "DI").
// Ties keep the input order. Documents defining the base namespace are left
// out; requirements on models outside the set are left for the importer to
// check against the namespaces already loaded.
func DiscoverPlan(entries []FileEntry) ([]config.NodeSetEntry, error) {
	docs, err := discover(entries, nil)
	if err != nil {
		return nil, err
	}
	return planOf(docs), nil
}

// document is a nodeset found by discover.
type document struct {
	entry    FileEntry
	uri      string
	requires []string
	alias    string
	depends  []string
}

// discover parses entries and returns them in dependency order. Aliases in
// taken are not handed out.
func discover(entries []FileEntry, taken map[string]bool) ([]*document, error) {
	var parser parsers.Parser = parsers.NewNodeSetParser()
	var docs []*document
	byURI := make(map[string]*document)
	for _, entry := range entries {
		ns, err := parser.Parse(entry.Path, entry.Content)
		if err != nil {
			return nil, err
		}
		uri := ns.OwnNamespace()
		if uri == "" || uri == graph.BaseNamespaceURI {
			continue
		}
		if prev, ok := byURI[uri]; ok {
			return nil, fmt.Errorf("%w: %s and %s both define %q", graph.ErrDuplicate, prev.entry.RelPath, entry.RelPath, uri)
		}
		doc := &document{entry: entry, uri: uri, requires: ns.RequiredModels()}
		docs = append(docs, doc)
		byURI[uri] = doc
	}

	used := map[string]bool{graph.BaseAlias: true}
	for alias := range taken {
		used[alias] = true
	}
	for _, doc := range docs {
		doc.alias = uniqueAlias(aliasFromURI(doc.uri), used)
	}
	for _, doc := range docs {
		for _, req := range doc.requires {
			if dep, ok := byURI[req]; ok && dep != doc {
				doc.depends = append(doc.depends, dep.alias)
			}
		}
	}

	// Kahn's algorithm, always picking the earliest ready document.
	placed := make(map[*document]bool, len(docs))
	ordered := make([]*document, 0, len(docs))
	for len(ordered) < len(docs) {
		var next *document
		for _, doc := range docs {
			if !placed[doc] && requirementsPlaced(doc, byURI, placed) {
				next = doc
				break
			}
		}
		if next == nil {
			var stuck []string
			for _, doc := range docs {
				if !placed[doc] {
					stuck = append(stuck, doc.entry.RelPath)
				}
			}
			return nil, fmt.Errorf("%w: circular model requirements between %s", graph.ErrUnresolvedDependency, strings.Join(stuck, ", "))
		}
		ordered = append(ordered, next)
		placed[next] = true
	}
	return ordered, nil
}

func requirementsPlaced(doc *document, byURI map[string]*document, placed map[*document]bool) bool {
	for _, req := range doc.requires {
		if dep, ok := byURI[req]; ok && dep != doc && !placed[dep] {
			return false
		}
	}
	return true
}

func planOf(docs []*document) []config.NodeSetEntry {
	plan := make([]config.NodeSetEntry, 0, len(docs))
	for _, doc := range docs {
		plan = append(plan, config.NodeSetEntry{Path: doc.entry.Path, Alias: doc.alias, Depends: doc.depends})
	}
	return plan
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)

// aliasFromURI returns the last path or URN segment of uri, stripped to
// alphanumerics.
func aliasFromURI(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	alias := nonAlphanumeric.ReplaceAllString(trimmed, "")
	if alias == "" {
		return "NS"
	}
	return alias
}

// uniqueAlias appends a counter to alias until it is unused, then marks it
// used.
func uniqueAlias(alias string, used map[string]bool) string {
	candidate := alias
	for n := 2; used[candidate]; n++ {
		candidate = alias + strconv.Itoa(n)
	}
	used[candidate] = true
	return candidate
}
