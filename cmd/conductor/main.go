// Command conductor runs the tool-use orchestration core from the command
// line: autonomous objectives, deterministic demo plans, and journal
// inspection/rollback.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/martinemde/conductor/agent"
	"github.com/martinemde/conductor/audit"
	"github.com/martinemde/conductor/config"
	"github.com/martinemde/conductor/journal"
	"github.com/martinemde/conductor/llm"
	"github.com/martinemde/conductor/mcp"
	"github.com/martinemde/conductor/plan"
	"github.com/martinemde/conductor/router"
	"github.com/martinemde/conductor/sandbox"
	"github.com/martinemde/conductor/tools"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime bundles the wired core for command handlers.
type runtime struct {
	cfg        *config.Config
	sink       *audit.Sink
	journal    *journal.Journal
	policy     *sandbox.Policy
	agent      *agent.Agent
	mcpHost    *mcp.Host
}

func (rt *runtime) close() {
	if rt.mcpHost != nil {
		rt.mcpHost.Shutdown()
	}
	if rt.sink != nil {
		_ = rt.sink.Close()
	}
}

// setup wires the core: audit store, sandbox policy, journal, providers,
// router, tools, MCP host, plan runner, agent.
func setup(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := audit.OpenStore(cfg.AuditPath())
	if err != nil {
		return nil, err
	}
	sink := audit.NewSink(nil, store)
	audit.SetDefault(sink)

	policy, err := sandbox.NewPolicy(cfg.SandboxRoot, cfg.CommandWhitelist)
	if err != nil {
		return nil, err
	}

	jnl, err := journal.New(cfg.JournalDir(), cfg.BackupsDir())
	if err != nil {
		return nil, err
	}

	rt := router.New(sink, cfg.RoutingRules, cfg.DefaultProvider)
	for _, provider := range []llm.Provider{
		llm.NewAnthropicProvider(),
		llm.NewOpenAIProvider(),
		llm.NewPerplexityProvider(),
		llm.NewGeminiProvider(),
	} {
		rt.Register(provider)
	}

	registry := tools.NewRegistry()
	toolbox := &tools.Toolbox{
		Policy:   policy,
		Journal:  jnl,
		Sink:     sink,
		Router:   rt,
		MemoPath: cfg.MemoPath(),
	}
	if err := toolbox.RegisterAll(registry); err != nil {
		return nil, err
	}

	host := mcp.NewHost(nil, policy)
	host.Start(ctx, cfg.MCPServers, registry)

	dispatcher := tools.NewDispatcher(registry, sink)
	runner := plan.NewRunner(dispatcher, policy, sink)

	return &runtime{
		cfg:     cfg,
		sink:    sink,
		journal: jnl,
		policy:  policy,
		agent:   agent.New(rt, dispatcher, runner, sink),
		mcpHost: host,
	}, nil
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "conductor",
		Short:         "Autonomous tool-use orchestration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(newDemoCommand(&configPath))
	root.AddCommand(newJournalCommand(&configPath))
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCommand(configPath *string) *cobra.Command {
	var maxIterations, maxToolCalls int
	var provider string

	cmd := &cobra.Command{
		Use:   "run <objective>",
		Short: "Run an objective through the agent loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			opts := agent.DefaultOptions()
			opts.MaxIterations = orDefault(maxIterations, rt.cfg.MaxIterations)
			opts.MaxToolCalls = orDefault(maxToolCalls, rt.cfg.MaxToolCalls)
			opts.ForceProvider = provider

			result, err := rt.agent.RunObjective(ctx, args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration budget")
	cmd.Flags().IntVar(&maxToolCalls, "max-tool-calls", 0, "tool call budget")
	cmd.Flags().StringVar(&provider, "provider", "", "force a specific provider")
	return cmd
}

// demoSteps is the deterministic demo plan: the first step targets a path
// outside the sandbox and falls back inside it, then the plan builds, marks
// executable, and runs a script.
func demoSteps() []plan.Step {
	script := "#!/usr/bin/env bash\necho \"Agent OK $(date -Iseconds)\"\n"
	return []plan.Step{
		{
			ID:   "s0",
			Kind: plan.StepFilesystem,
			Params: map[string]any{
				"operation": "write",
				"path":      "/outside/main.sh",
				"content":   script,
			},
			Fallback: map[string]any{
				"operation": "write",
				"path":      "demo_v2/main.sh",
				"content":   script,
			},
		},
		{
			ID:     "s1",
			Kind:   plan.StepFilesystem,
			Params: map[string]any{"operation": "mkdir", "path": "demo_v2"},
		},
		{
			ID:        "s2",
			Kind:      plan.StepFilesystem,
			Params:    map[string]any{"operation": "write", "path": "demo_v2/main.sh", "content": script},
			DependsOn: []string{"s1"},
		},
		{
			ID:        "s3",
			Kind:      plan.StepFilesystem,
			Params:    map[string]any{"operation": "chmod", "path": "demo_v2/main.sh", "mode": "755"},
			DependsOn: []string{"s2"},
		},
		{
			ID:        "s4",
			Kind:      plan.StepTerminal,
			Params:    map[string]any{"command": "./demo_v2/main.sh", "expect_output_contains": "Agent OK"},
			DependsOn: []string{"s3"},
		},
	}
}

func newDemoCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the deterministic demo plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			report, runErr := rt.agent.RunSteps(ctx, "", demoSteps())
			if report != nil {
				if err := printJSON(report); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}

func newJournalCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and roll back the action journal",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List runs with journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			rt, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			runs, err := rt.journal.ListRuns()
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Println(run)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "view <run-id>",
		Short: "Show a run's journal entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			rt, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			entries, err := rt.journal.Entries(args[0])
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback <run-id>",
		Short: "Roll back all reversible effects of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			rt, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.journal.RollbackRun(args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	})

	return cmd
}

func orDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
