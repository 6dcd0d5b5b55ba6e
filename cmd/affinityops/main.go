package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"affinityops/internal/affinity"
	"affinityops/internal/agent"
	"affinityops/internal/config"
	"affinityops/internal/llm"
	"affinityops/internal/logging"
	"affinityops/internal/resolve"
	"affinityops/internal/tools"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "affinityops",
	Short: "affinityops - conversational operations assistant for Affinity CRM",
	Long: `affinityops is a chat assistant that operates an Affinity CRM workspace.

It turns natural-language requests into tool calls against the Affinity
API: finding companies and lists, creating records, attaching notes, and
updating list fields. Names and dropdown labels are resolved to ids
before anything is written.

Run without arguments to start the interactive chat session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cwd := workspace
		if cwd == "" {
			cwd, _ = os.Getwd()
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logging.Initialize(cwd, verbose || cfg.Logging.Debug); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

// runCmd executes a single instruction
var runCmd = &cobra.Command{
	Use:   "run [instruction]",
	Short: "Process one instruction and exit",
	Long: `Processes a single natural-language instruction through the agent loop
and prints the answer. Useful for scripting, e.g.:

  affinityops run "add acme.com to the Dealflow list"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstruction,
}

// whoamiCmd verifies the configured credentials
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated user and workspace",
	RunE:  runWhoami,
}

// toolsCmd lists the tool catalog
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the assistant",
	RunE:  listTools,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: .affinityops/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// buildAgent wires clients, resolver, catalog and loop from the config.
func buildAgent(cfg *config.Config) (*agent.Agent, *tools.Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	v1 := affinity.NewV1Client(affinity.V1Config{
		APIKey:  cfg.Affinity.V1APIKey,
		BaseURL: cfg.Affinity.BaseURL,
	})
	v2 := affinity.NewV2Client(affinity.V2Config{
		BearerToken: cfg.Affinity.V2APIKey,
		BaseURL:     cfg.Affinity.BaseURL,
	})
	resolver := resolve.NewResolverWithConfig(v1, v2, resolve.Config{
		MaxListPages:    cfg.Agent.MaxListPages,
		MaxCompanyPages: cfg.Agent.MaxCompanyPages,
	})
	catalog := tools.NewCatalog(tools.Deps{V1: v1, V2: v2, Resolver: resolver})

	client := llm.NewClientWithConfig(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.GetLLMTimeout(),
	})

	loop := agent.NewWithConfig(client, catalog, agent.Config{MaxTurns: cfg.Agent.MaxTurns})

	logger.Info("agent ready",
		zap.Bool("v1", cfg.HasV1()),
		zap.Bool("v2", cfg.HasV2()),
		zap.String("model", cfg.LLM.Model),
		zap.Int("tools", catalog.Registry().Count()))
	return loop, catalog, nil
}

// runInstruction executes a single instruction through the agent loop
func runInstruction(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loop, _, err := buildAgent(cfg)
	if err != nil {
		return err
	}

	input := strings.Join(args, " ")
	logger.Info("Processing instruction", zap.String("input", input))

	result, err := loop.Run(ctx, nil, input)
	if err != nil {
		return err
	}

	printTrace(result)
	fmt.Println(result.Text)
	return nil
}

// runChat starts the interactive session
func runChat() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loop, catalog, err := buildAgent(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("affinityops: %d tools loaded. Type 'exit' to quit.\n", catalog.Registry().Count())
	if !cfg.HasV1() {
		fmt.Println("note: v1 key missing: create, note and field-value actions are unavailable.")
	}
	if !cfg.HasV2() {
		fmt.Println("note: v2 key missing: directory reads and list-field updates are unavailable.")
	}

	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		result, err := loop.Run(ctx, history, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		printTrace(result)
		fmt.Println(result.Text)
		history = result.Messages
	}
}

// printTrace shows the tool calls of a run when verbose is on.
func printTrace(result *agent.Result) {
	if !verbose {
		return
	}
	for _, event := range result.Trace {
		status := "ok"
		if event.IsError {
			status = "error"
		}
		fmt.Fprintf(os.Stderr, "  [%s] %s(%s) -> %s (%v)\n",
			status, event.Tool, event.Arguments, event.Result, event.Duration.Round(time.Millisecond))
	}
}

// runWhoami checks the v2 credentials directly, without the model
func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.HasV2() {
		return fmt.Errorf("whoami needs the v2 API key (set AFFINITY_V2_API_KEY)")
	}

	v2 := affinity.NewV2Client(affinity.V2Config{
		BearerToken: cfg.Affinity.V2APIKey,
		BaseURL:     cfg.Affinity.BaseURL,
	})
	identity, err := v2.WhoAmI(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// listTools prints the catalog with descriptions
func listTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v1 := affinity.NewV1Client(affinity.V1Config{APIKey: cfg.Affinity.V1APIKey})
	v2 := affinity.NewV2Client(affinity.V2Config{BearerToken: cfg.Affinity.V2APIKey})
	catalog := tools.NewCatalog(tools.Deps{V1: v1, V2: v2, Resolver: resolve.NewResolver(v1, v2)})

	for _, def := range catalog.Definitions() {
		fmt.Printf("%-26s %s\n", def.Name, def.Description)
	}
	return nil
}
