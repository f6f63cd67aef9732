// Command checkctl is the reference CLI harness for the check execution
// engine: it loads a YAML check catalog, wires every provider the engine
// ships, runs one end-to-end execution for a given trigger event and PR
// context, and prints the shaped results. Adapted from the teacher's
// examples/multi-llm-review/main.go argument-parsing and config-loading
// conventions (flag.FlagSet, a platform default config path via
// os.UserConfigDir, ${VAR} environment-variable expansion inside the
// loaded document) and its workflow-wiring main(): build every
// collaborator, construct the engine, Run, report the final state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/probelabs/visor-sub002/graph/model"
	"github.com/probelabs/visor-sub002/graph/model/anthropic"
	"github.com/probelabs/visor-sub002/graph/model/google"
	"github.com/probelabs/visor-sub002/graph/model/openai"

	"github.com/probelabs/visor-sub002/internal/config"
	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/engine/runner"
	"github.com/probelabs/visor-sub002/internal/eventbus"
	"github.com/probelabs/visor-sub002/internal/expr"
	"github.com/probelabs/visor-sub002/internal/journal"
	"github.com/probelabs/visor-sub002/internal/journal/sqlstore"
	"github.com/probelabs/visor-sub002/internal/memstore"
	"github.com/probelabs/visor-sub002/internal/metrics"
	"github.com/probelabs/visor-sub002/internal/provider"
	"github.com/probelabs/visor-sub002/internal/provider/ai"
	"github.com/probelabs/visor-sub002/internal/provider/command"
	"github.com/probelabs/visor-sub002/internal/provider/httpcheck"
	"github.com/probelabs/visor-sub002/internal/provider/memory"
	"github.com/probelabs/visor-sub002/internal/provider/noop"
	"github.com/probelabs/visor-sub002/internal/provider/script"
	"github.com/probelabs/visor-sub002/internal/provider/workflow"
	"github.com/probelabs/visor-sub002/internal/session"
)

// args is the parsed command line.
type args struct {
	configFile string
	event      string
	format     string // "text" or "json"
	journalDB  string // optional sqlite path for a durable audit export

	prNumber int
	prTitle  string
	prAuthor string
	prBase   string
	prHead   string
	prFiles  string // comma-separated

	aiProvider string // "openai", "anthropic", or "google"
	aiModel    string

	err error
}

func parseArgs(osArgs []string) args {
	fs := flag.NewFlagSet("checkctl", flag.ContinueOnError)

	configFile := fs.String("config", defaultConfigPath(), "path to the check catalog YAML file")
	event := fs.String("event", "manual", "trigger event name, matched against each check's triggers")
	format := fs.String("format", "text", "output format: text or json")
	journalDB := fs.String("journal-db", "", "optional path to a SQLite file for a durable audit export")

	prNumber := fs.Int("pr-number", 0, "PR number")
	prTitle := fs.String("pr-title", "", "PR title")
	prAuthor := fs.String("pr-author", "", "PR author login")
	prBase := fs.String("pr-base", "main", "PR base branch")
	prHead := fs.String("pr-head", "", "PR head branch")
	prFiles := fs.String("pr-files", "", "comma-separated list of changed file paths")

	aiProvider := fs.String("ai-provider", "", `AI chat backend: openai, anthropic, or google (unset disables the "ai" check type)`)
	aiModel := fs.String("ai-model", "", "AI chat model name")

	if err := fs.Parse(osArgs); err != nil {
		return args{err: fmt.Errorf("flag parsing error: %w", err)}
	}

	return args{
		configFile: *configFile, event: *event, format: *format, journalDB: *journalDB,
		prNumber: *prNumber, prTitle: *prTitle, prAuthor: *prAuthor, prBase: *prBase, prHead: *prHead, prFiles: *prFiles,
		aiProvider: *aiProvider, aiModel: *aiModel,
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "checks.yaml"
	}
	return filepath.Join(dir, "checkctl", "checks.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return []byte(envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	}))
}

func main() {
	a := parseArgs(os.Args[1:])
	if a.err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", a.err)
		os.Exit(1)
	}
	os.Exit(run(a))
}

func run(a args) int {
	raw, err := os.ReadFile(a.configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		return 1
	}

	parsed, err := config.Load(expandEnvVars(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	for _, w := range parsed.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	bubble := make(chan eventbus.Envelope, 256)
	memStore := memstore.New()
	registry := buildRegistry(parsed.Checks, parsed.Options, a, bubble, memStore)

	runID := "run-" + uuid.NewString()
	mem := journal.NewInMemory()
	bus := eventbus.New(eventbus.NewLogEmitter(os.Stderr, a.format == "json"), runID, uuid.NewString)

	bubbleDone := make(chan struct{})
	go func() {
		defer close(bubbleDone)
		for env := range bubble {
			bus.Publish(env.WorkflowID, env.Wave, env.Kind, env.Payload)
		}
	}()

	eng := runner.New(runner.Deps{
		Providers: registry,
		Journal:   mem,
		Evaluator: expr.New(nil),
		Metrics:   metrics.New(nil),
		Bus:       bus,
		Memory:    memStore,
	}, runner.Config{
		Checks:             parsed.Checks,
		MaxParallelism:     parsed.Options.MaxParallelism,
		MaxAIConcurrency:   parsed.Options.MaxAIConcurrency,
		FailFast:           parsed.Options.FailFast,
		RoutingMaxLoops:    parsed.Options.RoutingMaxLoops,
		MaxWorkflowDepth:   parsed.Options.MaxWorkflowDepth,
		SuppressionEnabled: parsed.Options.SuppressionEnabled,
	})

	out := eng.Run(context.Background(), runner.Input{
		RunID: runID,
		Event: a.event,
		PR:    buildPRInfo(a),
	})
	close(bubble)
	<-bubbleDone

	exportJournal(mem, a.journalDB, runID)
	report(out, a.format)

	if !out.Statistics.Balanced() {
		fmt.Fprintln(os.Stderr, "Warning: statistics invariant violated (total != succeeded+failed+skipped)")
	}
	if out.Statistics.FailedExecutions > 0 {
		return 1
	}
	return 0
}

func buildPRInfo(a args) expr.PRInfo {
	var files []string
	if a.prFiles != "" {
		files = strings.Split(a.prFiles, ",")
	}
	return expr.PRInfo{
		Number:     a.prNumber,
		Title:      a.prTitle,
		Author:     a.prAuthor,
		BaseBranch: a.prBase,
		HeadBranch: a.prHead,
		Files:      files,
	}
}

// buildRegistry wires every provider the engine ships, following the
// teacher's createProviders convention of skipping a provider (with a
// stderr warning) when its configuration is incomplete rather than
// failing the whole run.
func buildRegistry(checks map[string]engine.CheckSpec, opts config.RunOptions, a args, bubble chan eventbus.Envelope, store *memstore.Store) *provider.Registry {
	reg := provider.NewRegistry()
	reg.Register(engine.CheckCommand, command.New())
	reg.Register(engine.CheckHTTP, httpcheck.New())
	reg.Register(engine.CheckScript, script.New())
	reg.Register(engine.CheckMemory, memory.New(store))
	reg.Register(engine.CheckNoop, noop.New())
	reg.Register(engine.CheckWorkflow, workflow.New(checks, reg, opts.MaxWorkflowDepth, bubble))

	if chatModel := buildChatModel(a); chatModel != nil {
		reg.Register(engine.CheckAI, ai.New(chatModel, session.New(), uuid.NewString))
	} else if a.aiProvider != "" {
		fmt.Fprintf(os.Stderr, "Warning: ai provider %q requested but its API key is not set, skipping\n", a.aiProvider)
	}

	return reg
}

// buildChatModel resolves the requested AI backend to one of the
// teacher's graph/model adapters, reading its API key from the
// provider's conventional environment variable. Returns nil when no
// provider was requested or its key is absent.
func buildChatModel(a args) model.ChatModel {
	switch a.aiProvider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return openai.NewChatModel(key, defaultString(a.aiModel, "gpt-4"))
		}
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			return anthropic.NewChatModel(key, defaultString(a.aiModel, "claude-3-5-sonnet-20241022"))
		}
	case "google":
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return google.NewChatModel(key, defaultString(a.aiModel, "gemini-1.5-pro"))
		}
	}
	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// exportJournal persists every entry accumulated during the run to a
// SQLite file when journalDB is set (§1 durable audit history).
// sqlstore.SQLite implements its own Append(ctx, entry)/Close contract,
// distinct from journal.Journal's dependency-satisfaction queries, so it
// is used here as a write-behind export sink rather than as the engine's
// live Journal implementation.
func exportJournal(mem *journal.InMemory, path, runID string) {
	if path == "" {
		return
	}
	store, err := sqlstore.NewSQLite(path, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open journal export db %q: %v\n", path, err)
		return
	}
	defer store.Close()

	ctx := context.Background()
	for _, e := range mem.Entries() {
		if err := store.Append(ctx, e); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: journal export failed for check %q: %v\n", e.CheckID, err)
			return
		}
	}
}

// report prints either a human-readable summary or the full Results/
// Statistics as JSON.
func report(out runner.Output, format string) {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"finalState": out.FinalState,
			"statistics": out.Statistics,
			"results":    out.Results,
		})
		return
	}

	fmt.Printf("Run finished: %s\n", out.FinalState)
	fmt.Printf("Checks configured: %d, executions: %d (ok=%d failed=%d skipped=%d), duration=%s\n",
		out.Statistics.TotalChecksConfigured, out.Statistics.TotalExecutions,
		out.Statistics.SuccessfulExecutions, out.Statistics.FailedExecutions, out.Statistics.SkippedChecks,
		out.Statistics.TotalDuration)

	for group, g := range out.Results.Groups {
		fmt.Printf("\ngroup %s:\n", group)
		for _, c := range g.Checks {
			fmt.Printf("  %-24s status=%-8s issues=%d\n", c.CheckID, c.Latest.Status, len(c.Issues))
			for _, issue := range c.Issues {
				fmt.Printf("    [%s] %s:%d %s\n", issue.Severity, issue.File, issue.Line, issue.Message)
			}
		}
	}
}
