// Package ingestion imports NodeSet2 documents into an address space: the
// importer itself, the embedded base nodeset, the import pipeline, directory
// discovery and the directory watcher.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/uaspace/internal/config"
	"github.com/Benny93/uaspace/internal/graph"
	"github.com/Benny93/uaspace/internal/metrics"
	"github.com/Benny93/uaspace/internal/parsers"
	"github.com/Benny93/uaspace/internal/storage"
)

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// PipelineOptions configures RunPipeline. Every field is optional.
type PipelineOptions struct {
	// Store holds rollback snapshots and receives the search index.
	Store storage.Backend

	// Metrics records import outcomes.
	Metrics *metrics.Registry

	Progress ProgressCallback

	// Rollback restores the address space when an import fails.
	Rollback bool

	// ContinueOnError keeps importing after a failed entry.
	ContinueOnError bool

	// Namespaces are registered after the imports.
	Namespaces []string

	// Concurrency bounds parallel parsing. Zero means GOMAXPROCS.
	Concurrency int
}

// PipelineOptionsFromPlan copies the plan's failure handling and namespaces.
func PipelineOptionsFromPlan(plan *config.Plan) PipelineOptions {
	return PipelineOptions{
		Rollback:        plan.Rollback,
		ContinueOnError: plan.ContinueOnError,
		Namespaces:      plan.Namespaces,
	}
}

// ImportFailure is an entry that could not be imported.
type ImportFailure struct {
	Alias      string
	Path       string
	Err        error
	RolledBack bool
}

// PipelineResult summarizes a pipeline run.
type PipelineResult struct {
	Imports    []*ImportResult
	Failures   []ImportFailure
	Nodes      int
	References int
	Namespaces int
	Indexed    int

	DurationSecs float64
}

// RunPipeline imports entries into space in order. Documents are read and
// parsed concurrently, then imported one at a time so every entry sees the
// namespaces of the entries before it.
//
// With Rollback set, the address space is snapshotted before each import
// and restored when the import fails. Without ContinueOnError the first
// failure ends the run and is returned; with it, failures are collected in
// the result and reported on stderr.
func RunPipeline(ctx context.Context, space *graph.AddressSpace, entries []config.NodeSetEntry, opts PipelineOptions) (*PipelineResult, error) {
	start := time.Now()
	result := &PipelineResult{}
	progress := opts.Progress
	if progress == nil {
		progress = func(string, float64) {}
	}

	// Phase 1: Parsing
	progress("Parsing nodesets", 0.0)
	docs, parseErrs, err := parseAll(ctx, entries, opts)
	if err != nil {
		return nil, err
	}
	progress("Parsing nodesets", 1.0)

	// Phase 2: Importing
	progress("Importing nodesets", 0.0)
	importer := NewImporter(space)
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if parseErrs[i] != nil {
			opts.Metrics.RecordImport(entry.Alias, metrics.ResultFailed, 0, 0, 0)
			result.Failures = append(result.Failures, ImportFailure{Alias: entry.Alias, Path: entry.Path, Err: parseErrs[i]})
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", entry.Alias, parseErrs[i])
			continue
		}

		imported, failure, err := importOne(ctx, importer, space, entry, docs[i], opts)
		if err != nil {
			return nil, err
		}
		if failure != nil {
			if !opts.ContinueOnError {
				return nil, fmt.Errorf("importing %s (%s): %w", entry.Alias, entry.Path, failure.Err)
			}
			result.Failures = append(result.Failures, *failure)
			fmt.Fprintf(os.Stderr, "Warning: import of %s failed: %v\n", entry.Alias, failure.Err)
		} else {
			result.Imports = append(result.Imports, imported)
		}
		progress("Importing nodesets", float64(i+1)/float64(len(entries)))
	}
	progress("Importing nodesets", 1.0)

	// Phase 3: Namespaces
	for _, uri := range opts.Namespaces {
		if _, err := space.AddNamespace(uri); err != nil {
			return nil, fmt.Errorf("registering namespace %q: %w", uri, err)
		}
	}

	// Phase 4: Search index
	if opts.Store != nil {
		progress("Indexing nodes", 0.0)
		indexed, err := reindex(ctx, space, opts.Store)
		if err != nil {
			return nil, err
		}
		result.Indexed = indexed
		progress("Indexing nodes", 1.0)
	}

	result.Nodes = space.NodeCount()
	result.References = space.ReferenceCount()
	result.Namespaces = space.Namespaces().Len()
	result.DurationSecs = time.Since(start).Seconds()
	opts.Metrics.UpdateAddressSpace(result.Nodes, result.References)

	return result, nil
}

// parseAll reads and parses every entry concurrently. Without
// ContinueOnError the first failure cancels the rest and is returned;
// otherwise failures are returned per entry.
func parseAll(ctx context.Context, entries []config.NodeSetEntry, opts PipelineOptions) ([]*parsers.NodeSet, []error, error) {
	docs := make([]*parsers.NodeSet, len(entries))
	errs := make([]error, len(entries))

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := parsers.NewNodeSetParser().ParseFile(entry.Path)
			if err != nil {
				if opts.ContinueOnError {
					errs[i] = err
					return nil
				}
				return fmt.Errorf("parsing %s (%s): %w", entry.Alias, entry.Path, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return docs, errs, nil
}

// importOne imports a single document, restoring the pre-import snapshot on
// failure when rollback is enabled. The returned error is reserved for
// failures of the rollback machinery itself.
func importOne(ctx context.Context, importer *Importer, space *graph.AddressSpace, entry config.NodeSetEntry, doc *parsers.NodeSet, opts PipelineOptions) (*ImportResult, *ImportFailure, error) {
	snapshotName := "pre-import:" + entry.Alias
	var snap *graph.Snapshot
	if opts.Rollback {
		snap = space.Snapshot()
		if opts.Store != nil {
			if err := opts.Store.SaveSnapshot(ctx, snapshotName, snap); err != nil {
				return nil, nil, fmt.Errorf("saving snapshot before %s: %w", entry.Alias, err)
			}
			defer func() { _ = opts.Store.DeleteSnapshot(ctx, snapshotName) }()
		}
	}

	started := time.Now()
	imported, err := importer.Import(doc, entry.Alias, entry.Depends)
	elapsed := time.Since(started)
	if err == nil {
		opts.Metrics.RecordImport(entry.Alias, metrics.ResultSuccess, imported.Nodes, imported.References+imported.ImplicitLinks, elapsed)
		return imported, nil, nil
	}

	failure := &ImportFailure{Alias: entry.Alias, Path: entry.Path, Err: err}
	if !opts.Rollback {
		opts.Metrics.RecordImport(entry.Alias, metrics.ResultFailed, 0, 0, elapsed)
		return nil, failure, nil
	}

	if opts.Store != nil {
		stored, loadErr := opts.Store.LoadSnapshot(ctx, snapshotName)
		if loadErr != nil {
			return nil, nil, fmt.Errorf("loading snapshot for %s: %w", entry.Alias, loadErr)
		}
		snap = stored
	}
	if err := space.Restore(snap); err != nil {
		return nil, nil, fmt.Errorf("rolling back %s: %w", entry.Alias, err)
	}
	failure.RolledBack = true
	opts.Metrics.RecordRollback()
	opts.Metrics.RecordImport(entry.Alias, metrics.ResultRolledBack, 0, 0, elapsed)
	return nil, failure, nil
}

// reindex replaces the search index with the current nodes.
func reindex(ctx context.Context, space *graph.AddressSpace, store storage.Backend) (int, error) {
	if err := store.ClearIndex(ctx); err != nil {
		return 0, fmt.Errorf("clearing search index: %w", err)
	}
	nodes := make([]*graph.Node, 0, space.NodeCount())
	for node := range space.IterNodes() {
		nodes = append(nodes, node)
	}
	if err := store.IndexNodes(ctx, nodes); err != nil {
		return 0, fmt.Errorf("indexing nodes: %w", err)
	}
	return len(nodes), nil
}
