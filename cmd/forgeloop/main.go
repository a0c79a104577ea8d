// forgeloop runs an autonomous task agent: the model proposes one command
// per cycle, the operator confirms (or runs with --yes), and the loop
// executes until the agent finishes or the operator quits.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/calref/forgeloop/agent"
	"github.com/calref/forgeloop/config"
	"github.com/calref/forgeloop/history"
	"github.com/calref/forgeloop/multillm"
)

var version = "dev"

var (
	configPath string
	taskFlag   string
	autoYes    bool
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "forgeloop",
	Short: "forgeloop - autonomous action proposal and execution loop",
	Long: `forgeloop drives a task agent through propose/confirm/execute cycles.

Each cycle the model proposes exactly one command; the operator approves,
declines with feedback, or lets --yes approve everything. The run ends when
the agent invokes finish or the operator quits.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent loop for a task",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runLoop(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the forgeloop version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("forgeloop", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	runCmd.Flags().StringVarP(&taskFlag, "task", "t", "", "task for the agent (overrides config)")
	runCmd.Flags().BoolVarP(&autoYes, "yes", "y", false, "approve every proposal without asking")
	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		if configPath == "" {
			// No file anywhere: run on defaults, keys from the environment.
			return config.Default(), nil
		}
		return nil, err
	}
	return config.Load(path)
}

func runLoop(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if taskFlag != "" {
		cfg.Agent.Task = taskFlag
	}
	if cfg.Agent.Task == "" {
		return fmt.Errorf("no task given: set agent.task in config or pass --task")
	}

	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil && !verbose {
		logger = logger.WithOptions(zap.IncreaseLevel(level))
	}

	adapter, err := multillm.NewGollmAdapter(cfg.LLM.Provider, cfg.LLM.APIKey,
		multillm.WithModel(cfg.LLM.Model))
	if err != nil {
		return fmt.Errorf("configure %s provider: %w", cfg.LLM.Provider, err)
	}
	client := multillm.NewClient(multillm.WithProvider(cfg.LLM.Provider, adapter))
	defer client.Close()
	completer := multillm.NewCompleterWithClient(client, cfg.LLM.Provider, cfg.LLM.Model)

	store, err := history.NewStore(cfg.Loop.HistoryDB)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	settings := &agent.Settings{
		Name:        cfg.Agent.Name,
		Description: cfg.Agent.Description,
		Task:        cfg.Agent.Task,
	}
	ag := agent.New(settings, agent.NewOneShotStrategy(), completer, agent.Config{
		DisabledCommands: cfg.Loop.DisabledCommands,
		SendTokenLimit:   cfg.Loop.SendTokenLimit,
	}, logger)
	defer ag.Close()

	ag.Attach(
		agent.NewSystemComponent(),
		history.NewComponent(store, completer, cfg.Loop.HistoryTokenBudget, logger),
	)

	go drainEvents(ag.Events())

	stdin := bufio.NewReader(os.Stdin)
	for {
		proposal, err := propose(ctx, ag, cfg.Loop.ParseRetries)
		if err != nil {
			return err
		}

		if proposal.Thoughts != "" {
			fmt.Printf("\n%s\n", proposal.Thoughts)
		}
		if proposal.UseTool != nil {
			fmt.Printf("-> %s\n", proposal.UseTool.String())
		}

		var result *agent.ActionResult
		if autoYes {
			result, err = ag.Execute(ctx, proposal)
		} else {
			approved, feedback, readErr := confirm(stdin)
			if readErr != nil {
				return readErr
			}
			if approved {
				result, err = ag.Execute(ctx, proposal)
			} else if feedback == "" {
				fmt.Println("Stopping.")
				return nil
			} else {
				result, err = ag.DoNotExecute(ctx, proposal, feedback)
			}
		}
		if err != nil {
			var term *agent.TerminatedError
			if errors.As(err, &term) {
				fmt.Printf("\nAgent finished: %s\n", term.Reason)
				return nil
			}
			return err
		}

		fmt.Println(result.String())
	}
}

// propose runs one proposal cycle, feeding parse failures back to the model
// up to retries times.
func propose(ctx context.Context, ag *agent.Agent, retries int) (*agent.ActionProposal, error) {
	proposal, err := ag.ProposeAction(ctx)
	for attempt := 0; err != nil && attempt < retries; attempt++ {
		var re *agent.ResponseError
		if !errors.As(err, &re) {
			return nil, err
		}
		logger.Warn("unparseable model reply, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		proposal, err = ag.RetryProposeAction(ctx, err)
	}
	return proposal, err
}

// confirm reads the operator's decision: empty or y approves, n declines and
// prompts for feedback, q quits (decline with empty feedback).
func confirm(stdin *bufio.Reader) (approved bool, feedback string, err error) {
	fmt.Print("Execute? [Y/n/q] ")
	line, err := stdin.ReadString('\n')
	if err != nil {
		return false, "", err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, "", nil
	case "q", "quit":
		return false, "", nil
	default:
		fmt.Print("Feedback for the agent: ")
		line, err = stdin.ReadString('\n')
		if err != nil {
			return false, "", err
		}
		feedback = strings.TrimSpace(line)
		if feedback == "" {
			feedback = "The user declined this action."
		}
		return false, feedback, nil
	}
}

func drainEvents(events <-chan agent.Event) {
	for ev := range events {
		logger.Debug("agent event",
			zap.String("kind", string(ev.Kind)),
			zap.Any("data", ev.Data))
	}
}
