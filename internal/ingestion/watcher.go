package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/uaspace/internal/graph"
)

// DefaultBatchDelay is how long the watcher waits after the last change
// before importing.
const DefaultBatchDelay = 2 * time.Second

// WatchOptions configures WatchNodeSets.
type WatchOptions struct {
	Pipeline PipelineOptions

	// BatchDelay defaults to DefaultBatchDelay.
	BatchDelay time.Duration

	// OnReady is called once the directory is being watched.
	OnReady func()

	// OnBatch is called after each batch. When nil, a summary is printed.
	OnBatch func(result *PipelineResult, err error)
}

// WatchNodeSets monitors dir for nodeset files and imports new ones into
// space. Changes are batched; each batch is ordered with DiscoverPlan and
// imported with ContinueOnError set. Documents whose namespace is already
// loaded are skipped, so the address space only grows.
// Blocks until the context is cancelled.
func WatchNodeSets(ctx context.Context, dir string, space *graph.AddressSpace, opts WatchOptions) error {
	patterns, err := loadGitignore(dir)
	if err != nil {
		return fmt.Errorf("loading .gitignore: %w", err)
	}
	matcher := newIgnoreMatcher(patterns)

	delay := opts.BatchDelay
	if delay <= 0 {
		delay = DefaultBatchDelay
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory tree recursively
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && shouldSkipDir(d.Name(), path, dir, matcher) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	if opts.OnReady != nil {
		opts.OnReady()
	}

	// Batch changed files for efficient importing
	changed := make(map[string]bool)
	batchTimer := time.NewTimer(delay)
	batchTimer.Stop() // Don't start yet

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !shouldSkipDir(info.Name(), event.Name, dir, matcher) {
						_ = watcher.Add(event.Name)
					}
					continue
				}
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !shouldWatchFile(event.Name, dir, matcher) {
				continue
			}

			changed[event.Name] = true
			batchTimer.Reset(delay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-batchTimer.C:
			if len(changed) == 0 {
				continue
			}
			result, err := processChangedFiles(ctx, dir, space, changed, opts.Pipeline)
			if opts.OnBatch != nil {
				opts.OnBatch(result, err)
			} else {
				reportBatch(result, err)
			}
			changed = make(map[string]bool)
		}
	}
}

// processChangedFiles imports the nodesets among the changed paths that
// define a namespace not yet in space.
func processChangedFiles(ctx context.Context, dir string, space *graph.AddressSpace, changed map[string]bool, opts PipelineOptions) (*PipelineResult, error) {
	paths := make([]string, 0, len(changed))
	for path := range changed {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var entries []FileEntry
	for _, path := range paths {
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			continue
		}
		entry, ok, err := readNodeSetFile(path, relPath)
		if err != nil {
			// Removed or renamed away before the batch fired.
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if ok {
			entries = append(entries, entry)
		}
	}

	table := space.Namespaces()
	taken := make(map[string]bool)
	for alias := range table.Aliases() {
		taken[alias] = true
	}
	docs, err := discover(entries, taken)
	if err != nil {
		return nil, err
	}

	// Loaded documents drop out; dependencies on them use their bound alias.
	aliasOf := make(map[string]string, len(docs))
	fresh := make([]*document, 0, len(docs))
	for _, doc := range docs {
		if idx, err := table.IndexOf(doc.uri); err == nil {
			if aliases := table.AliasesOf(idx); len(aliases) > 0 {
				aliasOf[doc.uri] = aliases[0]
			}
			continue
		}
		aliasOf[doc.uri] = doc.alias
		fresh = append(fresh, doc)
	}
	for _, doc := range fresh {
		doc.depends = nil
		for _, req := range doc.requires {
			if alias, ok := aliasOf[req]; ok && req != doc.uri {
				doc.depends = append(doc.depends, alias)
			}
		}
	}

	opts.ContinueOnError = true
	return RunPipeline(ctx, space, planOf(fresh), opts)
}

func reportBatch(result *PipelineResult, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error processing changes: %v\n", err)
		return
	}
	for _, imp := range result.Imports {
		fmt.Printf("  Imported %s: %d nodes, %d references\n", imp.Alias, imp.Nodes, imp.References)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(os.Stderr, "  Failed %s: %v\n", f.Alias, f.Err)
	}
}

// shouldWatchFile checks if a changed path may hold a nodeset.
func shouldWatchFile(path, dir string, matcher gitignore.Matcher) bool {
	relPath, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if matcher != nil && matcher.Match(splitPath(relPath), false) {
		return false
	}
	return isNodeSetFile(path)
}
