// Package cmd provides CLI command implementations for uaspace.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/uaspace/internal/config"
	"github.com/Benny93/uaspace/internal/graph"
	"github.com/Benny93/uaspace/internal/ingestion"
	"github.com/Benny93/uaspace/internal/metrics"
	"github.com/Benny93/uaspace/internal/storage"
	"github.com/Benny93/uaspace/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// Globals are the flags shared by every command. Each command starts from
// the base nodeset and imports the plan they describe.
type Globals struct {
	Config          string   `short:"c" type:"existingfile" help:"YAML import plan"`
	NodeSet         []string `short:"n" name:"nodeset" placeholder:"ALIAS=PATH" help:"Nodeset to import; each depends on the ones before it"`
	Dir             string   `short:"d" type:"existingdir" help:"Import every nodeset found under a directory, ordered by model requirements"`
	Rollback        bool     `help:"Restore the address space when an import fails"`
	ContinueOnError bool     `help:"Keep importing after a failed nodeset"`
	Quiet           bool     `short:"q" help:"Suppress progress output"`

	out    io.Writer `kong:"-"`
	errOut io.Writer `kong:"-"`
}

func (g *Globals) stdout() io.Writer {
	if g.out != nil {
		return g.out
	}
	return os.Stdout
}

func (g *Globals) stderr() io.Writer {
	if g.errOut != nil {
		return g.errOut
	}
	return os.Stderr
}

// plan assembles the import plan from --config, --dir and --nodeset, in
// that order.
func (g *Globals) plan() (*config.Plan, error) {
	plan := &config.Plan{}
	if g.Config != "" {
		loaded, err := config.Load(g.Config)
		if err != nil {
			return nil, err
		}
		plan = loaded
	}

	if g.Dir != "" {
		files, err := ingestion.WalkNodeSets(g.Dir, nil)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", g.Dir, err)
		}
		discovered, err := ingestion.DiscoverPlan(files)
		if err != nil {
			return nil, fmt.Errorf("ordering nodesets in %s: %w", g.Dir, err)
		}
		plan.NodeSets = append(plan.NodeSets, discovered...)
	}

	if err := plan.Append(g.NodeSet...); err != nil {
		return nil, err
	}

	if g.Rollback {
		plan.Rollback = true
	}
	if g.ContinueOnError {
		plan.ContinueOnError = true
	}
	return plan, nil
}

// load bootstraps a fresh address space and runs the import plan. opts
// supplies the store and metrics; failure handling comes from the plan.
func (g *Globals) load(ctx context.Context, opts ingestion.PipelineOptions) (*graph.AddressSpace, *ingestion.PipelineResult, error) {
	plan, err := g.plan()
	if err != nil {
		return nil, nil, err
	}

	space, err := ingestion.NewBootstrappedSpace()
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrapping base nodeset: %w", err)
	}

	fromPlan := ingestion.PipelineOptionsFromPlan(plan)
	opts.Rollback = fromPlan.Rollback
	opts.ContinueOnError = fromPlan.ContinueOnError
	opts.Namespaces = fromPlan.Namespaces
	if !g.Quiet && opts.Progress == nil {
		w := g.stderr()
		opts.Progress = func(phase string, pct float64) {
			fmt.Fprintf(w, "\r\033[K%s (%.0f%%)", phase, pct*100)
		}
	}

	result, err := ingestion.RunPipeline(ctx, space, plan.NodeSets, opts)
	if !g.Quiet {
		fmt.Fprintln(g.stderr()) // Newline after progress
	}
	if err != nil {
		return nil, nil, fmt.Errorf("running import plan: %w", err)
	}
	return space, result, nil
}

// ImportCmd imports the plan and prints a summary.
type ImportCmd struct {
	Output string `short:"o" help:"Write the resulting address space as a JSON snapshot"`
	Store  string `help:"Badger directory receiving the snapshot and search index"`
}

// Run executes the import command.
func (c *ImportCmd) Run(g *Globals) error {
	ctx := context.Background()

	var opts ingestion.PipelineOptions
	if c.Store != "" {
		store := storage.NewBadgerBackend()
		if err := store.Initialize(c.Store, false); err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		defer func() { _ = store.Close() }()
		opts.Store = store
	}

	space, result, err := g.load(ctx, opts)
	if err != nil {
		return err
	}

	out := g.stdout()
	if len(result.Failures) == 0 {
		green.Fprintln(out, "✓ Import complete")
	} else {
		yellow.Fprintf(out, "⚠ Import finished with %d failures\n", len(result.Failures))
	}
	for _, imp := range result.Imports {
		fmt.Fprintf(out, "  %-12s ns=%d %s (%d nodes, %d references)\n", imp.Alias, imp.NamespaceIndex, imp.NamespaceURI, imp.Nodes, imp.References+imp.ImplicitLinks)
	}
	for _, f := range result.Failures {
		state := ""
		if f.RolledBack {
			state = " (rolled back)"
		}
		red.Fprintf(out, "  %-12s %v%s\n", f.Alias, f.Err, state)
	}
	fmt.Fprintf(out, "  Nodes:          %d\n", result.Nodes)
	fmt.Fprintf(out, "  References:     %d\n", result.References)
	fmt.Fprintf(out, "  Namespaces:     %d\n", result.Namespaces)
	fmt.Fprintf(out, "  Duration:       %.2fs\n", result.DurationSecs)

	snap := space.Snapshot()
	if opts.Store != nil {
		if err := opts.Store.SaveSnapshot(ctx, "latest", snap); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}
	if c.Output != "" {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		if err := os.WriteFile(c.Output, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		green.Fprintf(out, "✓ Wrote %s\n", c.Output)
	}
	return nil
}

// BrowseCmd lists the references of a node.
type BrowseCmd struct {
	Node       string `arg:"" help:"NodeId, browse path from Objects or ALIAS:Name symbol"`
	Ref        string `short:"r" default:"HierarchicalReferences" help:"Reference type"`
	Inverse    bool   `xor:"direction" help:"List inverse references"`
	All        bool   `xor:"direction" help:"List references in both directions"`
	NoSubtypes bool   `help:"Match the reference type exactly"`
}

// Run executes the browse command.
func (c *BrowseCmd) Run(g *Globals) error {
	g.Quiet = true
	space, _, err := g.load(context.Background(), ingestion.PipelineOptions{})
	if err != nil {
		return err
	}

	node, err := space.Get(c.Node)
	if err != nil {
		return err
	}
	refType, err := space.Get(c.Ref)
	if err != nil {
		return fmt.Errorf("reference type: %w", err)
	}

	direction := graph.BrowseForward
	switch {
	case c.Inverse:
		direction = graph.BrowseInverse
	case c.All:
		direction = graph.BrowseBoth
	}

	refs, err := space.Browse(node.ID, refType.ID, direction, !c.NoSubtypes)
	if err != nil {
		return err
	}

	out := g.stdout()
	fmt.Fprintf(out, "%s (%s) %s\n", node.BrowseName, node.Class, node.ID)
	if len(refs) == 0 {
		fmt.Fprintln(out, "  No matching references")
		return nil
	}
	for _, r := range refs {
		arrow := "->"
		if !r.IsForward {
			arrow = "<-"
		}
		fmt.Fprintf(out, "  %s %s %s\n", nameOf(space, r.ReferenceType), arrow, labelOf(space, r.Target))
	}
	return nil
}

// ReadCmd prints the attributes of a node.
type ReadCmd struct {
	Node string `arg:"" help:"NodeId, browse path from Objects or ALIAS:Name symbol"`
	JSON bool   `help:"Print the node as JSON"`
}

// Run executes the read command.
func (c *ReadCmd) Run(g *Globals) error {
	g.Quiet = true
	space, _, err := g.load(context.Background(), ingestion.PipelineOptions{})
	if err != nil {
		return err
	}

	node, err := space.Get(c.Node)
	if err != nil {
		return err
	}

	out := g.stdout()
	if c.JSON {
		data, err := json.MarshalIndent(node, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "NodeId:       %s\n", node.ID)
	fmt.Fprintf(out, "NodeClass:    %s\n", node.Class)
	fmt.Fprintf(out, "BrowseName:   %s\n", node.BrowseName)
	if node.DisplayName != nil {
		fmt.Fprintf(out, "DisplayName:  %s\n", node.DisplayName)
	}
	if node.Description != nil {
		fmt.Fprintf(out, "Description:  %s\n", node.Description)
	}
	if node.SymbolicName != "" {
		fmt.Fprintf(out, "SymbolicName: %s\n", node.SymbolicName)
	}
	if !node.ParentID.IsNull() {
		fmt.Fprintf(out, "Parent:       %s\n", labelOf(space, node.ParentID))
	}
	if va := node.Variable; va != nil {
		if !va.DataType.IsNull() {
			fmt.Fprintf(out, "DataType:     %s\n", labelOf(space, va.DataType))
		}
		fmt.Fprintf(out, "ValueRank:    %d\n", va.ValueRank)
		if len(va.Dimensions) > 0 {
			fmt.Fprintf(out, "Dimensions:   %v\n", va.Dimensions)
		}
		switch {
		case va.Value == nil:
		case va.Value.IsArray:
			fmt.Fprintf(out, "Value:        %v\n", va.Value.Elements)
		default:
			fmt.Fprintf(out, "Value:        %v\n", va.Value.Scalar)
		}
	}
	return nil
}

// SearchCmd searches node names and descriptions.
type SearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"l" default:"20" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run(g *Globals) error {
	ctx := context.Background()
	g.Quiet = true

	store := storage.NewMemoryBackend()
	defer func() { _ = store.Close() }()
	if _, _, err := g.load(ctx, ingestion.PipelineOptions{Store: store}); err != nil {
		return err
	}

	results, err := store.FTSSearch(ctx, c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	out := g.stdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "\n%d. %s (%s)\n", i+1, r.BrowseName, r.Class)
		fmt.Fprintf(out, "   NodeId: %s\n", r.NodeID)
		fmt.Fprintf(out, "   Score: %.3f\n", r.Score)
		if r.Snippet != "" {
			fmt.Fprintf(out, "   %s\n", r.Snippet)
		}
	}
	return nil
}

// ServeCmd starts the MCP server over the imported address space.
type ServeCmd struct {
	MetricsAddr string `help:"Serve Prometheus metrics on this address, e.g. :9090"`
	Watch       bool   `short:"w" help:"Import nodesets added to --dir while serving"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stdout carries JSON-RPC only.
	g.Quiet = true

	reg := metrics.NewRegistry()
	store := storage.NewMemoryBackend()
	defer func() { _ = store.Close() }()

	opts := ingestion.PipelineOptions{Store: store, Metrics: reg}
	space, result, err := g.load(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stderr(), "Loaded %d nodes in %d namespaces\n", result.Nodes, result.Namespaces)

	if c.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              c.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(g.stderr(), "Metrics server error: %v\n", err)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		fmt.Fprintf(g.stderr(), "Metrics on %s/metrics\n", c.MetricsAddr)
	}

	if c.Watch {
		if g.Dir == "" {
			return fmt.Errorf("--watch needs --dir")
		}
		go func() {
			err := ingestion.WatchNodeSets(ctx, g.Dir, space, ingestion.WatchOptions{Pipeline: opts})
			if err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(g.stderr(), "Watch error: %v\n", err)
			}
		}()
		fmt.Fprintf(g.stderr(), "Watching %s\n", g.Dir)
	}

	go func() {
		<-osSignalChannel()
		cancel()
	}()

	server := mcp.NewServer(space, store)
	err = server.RunStdio(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func metricsMux(reg *metrics.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	return mux
}

// WatchCmd imports the plan, then imports nodesets as they appear in a
// directory.
type WatchCmd struct {
	Path  string        `arg:"" type:"existingdir" help:"Directory to watch"`
	Delay time.Duration `default:"2s" help:"Quiet period before a batch of changes is imported"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if g.Dir == "" {
		g.Dir = c.Path
	}
	space, result, err := g.load(ctx, ingestion.PipelineOptions{})
	if err != nil {
		return err
	}

	out := g.stdout()
	fmt.Fprintln(out, "## Watch Mode")
	fmt.Fprintf(out, "Loaded %d nodes in %d namespaces\n", result.Nodes, result.Namespaces)
	fmt.Fprintf(out, "Watching %s for new nodesets (Ctrl+C to stop)\n\n", c.Path)

	go func() {
		<-osSignalChannel()
		fmt.Fprintln(out, "\nStopping watch mode...")
		cancel()
	}()

	err = ingestion.WatchNodeSets(ctx, c.Path, space, ingestion.WatchOptions{
		BatchDelay: c.Delay,
		OnBatch: func(result *ingestion.PipelineResult, err error) {
			printBatch(out, result, err)
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Fprintln(out, "Watch mode stopped.")
	return nil
}

func printBatch(out io.Writer, result *ingestion.PipelineResult, err error) {
	if err != nil {
		red.Fprintf(out, "✗ %v\n", err)
		return
	}
	for _, imp := range result.Imports {
		green.Fprintf(out, "✓ Imported %s (%s): %d nodes\n", imp.Alias, imp.NamespaceURI, imp.Nodes)
	}
	for _, f := range result.Failures {
		red.Fprintf(out, "✗ %s: %v\n", f.Alias, f.Err)
	}
	if len(result.Imports)+len(result.Failures) > 0 {
		fmt.Fprintf(out, "  Address space: %d nodes, %d references\n", result.Nodes, result.References)
	}
}

// SetupCmd writes an MCP client configuration that serves the current plan.
type SetupCmd struct {
	Client string `enum:"claude,cursor,qwen,none" default:"none" help:"Client to configure (claude|cursor|qwen); none prints the config"`
	Global bool   `help:"Write to the client's global configuration directory"`
	Path   string `help:"Custom directory for the configuration file"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	cfg := generateMCPConfig(g)
	if c.Client == "none" {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(g.stdout(), string(data))
		return nil
	}

	path, err := configPath(c.Client, c.Path, c.Global)
	if err != nil {
		return err
	}
	if err := writeConfig(path, cfg); err != nil {
		return err
	}
	green.Fprintf(g.stdout(), "✓ Created %s MCP config at %s\n", c.Client, path)
	return nil
}

// generateMCPConfig reproduces the plan flags as serve arguments.
func generateMCPConfig(g *Globals) map[string]any {
	args := []string{"serve"}
	if g.Config != "" {
		args = append(args, "--config", absPath(g.Config))
	}
	if g.Dir != "" {
		args = append(args, "--dir", absPath(g.Dir))
	}
	for _, spec := range g.NodeSet {
		alias, path, _ := strings.Cut(spec, "=")
		args = append(args, "--nodeset", alias+"="+absPath(path))
	}
	if g.Rollback {
		args = append(args, "--rollback")
	}
	if g.ContinueOnError {
		args = append(args, "--continue-on-error")
	}
	return map[string]any{
		"mcpServers": map[string]any{
			"uaspace": map[string]any{
				"command": "uaspace",
				"args":    args,
			},
		},
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func configPath(client, dir string, global bool) (string, error) {
	name := "mcp.json"
	if client == "claude" {
		name = "settings.json"
	}
	if dir != "" {
		return filepath.Join(dir, name), nil
	}

	base := "."
	if global {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locating home directory: %w", err)
		}
		base = home
	}
	return filepath.Join(base, "."+client, name), nil
}

func writeConfig(configPath string, cfg map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	content, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if err := os.WriteFile(configPath, append(content, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Helper functions

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func nameOf(space *graph.AddressSpace, id graph.NodeId) string {
	if n, err := space.GetNode(id); err == nil {
		return n.Name()
	}
	return id.String()
}

func labelOf(space *graph.AddressSpace, id graph.NodeId) string {
	n, err := space.GetNode(id)
	if err != nil {
		return id.String()
	}
	return fmt.Sprintf("%s (%s) %s", n.BrowseName, n.Class, id)
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Import ImportCmd `cmd:"" help:"Import nodesets and print a summary"`
	Browse BrowseCmd `cmd:"" help:"List the references of a node"`
	Read   ReadCmd   `cmd:"" help:"Print the attributes of a node"`
	Search SearchCmd `cmd:"" help:"Search node names and descriptions"`
	Serve  ServeCmd  `cmd:"" help:"Start the MCP server (stdio transport)"`
	Watch  WatchCmd  `cmd:"" help:"Import nodesets as they appear in a directory"`
	Setup  SetupCmd  `cmd:"" help:"Configure an MCP client to serve the import plan"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("uaspace"),
		kong.Description("Address space builder for OPC UA information models"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}
