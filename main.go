package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/volition-run/volition/agent"
	"github.com/volition-run/volition/chatmodel"
	"github.com/volition-run/volition/config"
	"github.com/volition-run/volition/history"
	"github.com/volition-run/volition/session"
	"github.com/volition-run/volition/strategy"
	"github.com/volition-run/volition/toolserver"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Printf("Failed to determine working directory: %v\n", err)
		os.Exit(1)
	}

	root, err := history.DiscoverProjectRoot(cwd)
	if err != nil {
		fmt.Printf("Failed to discover project root: %v\n", err)
		os.Exit(1)
	}

	store, err := history.Open(root)
	if err != nil {
		fmt.Printf("Failed to open session history: %v\n", err)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		runGoal(root, store, logger, args)
	case "resume":
		resumeSession(root, store, logger, args)
	case "list":
		listSessions(store, args)
	case "show":
		showSession(store, args)
	case "delete":
		deleteSession(store, args)
	case "version":
		fmt.Printf("volition %s (%s)\n", Version, License)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: volition <run|resume|list|show|delete|version> [args]")
	fmt.Println("  run <goal...>            start a new run with a goal string")
	fmt.Println("  resume <id> <message...> continue a previous session with a new message")
	fmt.Println("  list [limit]             list sessions, most recently updated first")
	fmt.Println("  show <id>                print a session's task and message count")
	fmt.Println("  delete <id>              remove a session")
}

func runGoal(root string, store *history.Store, logger *zap.Logger, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: volition run <goal...>")
		os.Exit(1)
	}
	goal := strings.Join(args, " ")

	rec, err := loadConfig(root, logger)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	orch, cleanup, err := buildOrchestrator(rec, logger)
	if err != nil {
		fmt.Printf("Failed to initialize agent: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	state := session.New(goal)
	if err := store.Lock(state.ID); err != nil {
		fmt.Printf("Failed to acquire session lock: %v\n", err)
		os.Exit(1)
	}
	defer store.Unlock(state.ID)

	strat := strategy.NewConversation(defaultStrategyFor(rec), nil)
	result := orch.Run(context.Background(), strat, state)

	if err := store.Save(state); err != nil {
		logger.Warn("failed to persist session", zap.Error(err))
	}

	if result.Err != nil {
		fmt.Printf("Run failed: %v\n", result.Err)
		os.Exit(1)
	}
	fmt.Printf("session %s\n%s\n", state.ID, result.FinalResult)
}

func resumeSession(root string, store *history.Store, logger *zap.Logger, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: volition resume <id> <message...>")
		os.Exit(1)
	}
	id, message := args[0], strings.Join(args[1:], " ")

	locked, err := store.Locked(id)
	if err != nil {
		fmt.Printf("Failed to check session lock: %v\n", err)
		os.Exit(1)
	}
	if locked {
		fmt.Printf("Session %s is locked by another run.\n", id)
		os.Exit(1)
	}

	state, err := store.Load(id)
	if err != nil {
		fmt.Printf("Failed to load session %s: %v\n", id, err)
		os.Exit(1)
	}
	// Conversation.Initialize reads state.Task as this turn's new input.
	state.Task = message

	rec, err := loadConfig(root, logger)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	orch, cleanup, err := buildOrchestrator(rec, logger)
	if err != nil {
		fmt.Printf("Failed to initialize agent: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := store.Lock(id); err != nil {
		fmt.Printf("Failed to acquire session lock: %v\n", err)
		os.Exit(1)
	}
	defer store.Unlock(id)

	strat := strategy.NewConversation(defaultStrategyFor(rec), state.Messages)
	result := orch.Run(context.Background(), strat, state)

	if err := store.Save(state); err != nil {
		logger.Warn("failed to persist session", zap.Error(err))
	}

	if result.Err != nil {
		fmt.Printf("Run failed: %v\n", result.Err)
		os.Exit(1)
	}
	fmt.Println(result.FinalResult)
}

func listSessions(store *history.Store, args []string) {
	limit := 0
	if len(args) > 0 {
		fmt.Sscanf(args[0], "%d", &limit)
	}

	summaries, err := store.List(limit)
	if err != nil {
		fmt.Printf("Failed to list sessions: %v\n", err)
		os.Exit(1)
	}
	for _, s := range summaries {
		fmt.Printf("%s  %s  %3d msgs  %s\n", s.ID, s.UpdatedAt.Format(time.RFC3339), s.MessageCount, s.Task)
	}
}

func showSession(store *history.Store, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: volition show <id>")
		os.Exit(1)
	}
	state, err := store.Load(args[0])
	if err != nil {
		fmt.Printf("Failed to load session %s: %v\n", args[0], err)
		os.Exit(1)
	}
	fmt.Println(history.Preview(state))
}

func deleteSession(store *history.Store, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: volition delete <id>")
		os.Exit(1)
	}
	if err := store.Delete(args[0]); err != nil {
		fmt.Printf("Failed to delete session %s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func loadConfig(root string, logger *zap.Logger) (*config.Record, error) {
	return config.Load(filepath.Join(root, "Volition.toml"), logger)
}

// buildOrchestrator constructs the provider registry, tool-server
// registry, and strategy factory from a decoded configuration, and
// returns an Orchestrator plus a cleanup func that shuts down every
// tool-server child process.
func buildOrchestrator(rec *config.Record, logger *zap.Logger) (*agent.Orchestrator, func(), error) {
	models := make(map[string]chatmodel.Model, len(rec.Providers))
	for id := range rec.Providers {
		resolved, err := rec.Resolve(id)
		if err != nil {
			return nil, nil, err
		}

		model, err := buildModel(resolved)
		if err != nil {
			return nil, nil, err
		}
		models[id] = chatmodel.WithRetry(model, 2, logger)
	}

	providers, err := chatmodel.NewRegistry(models, rec.DefaultProvider)
	if err != nil {
		return nil, nil, err
	}

	var serverConfigs []toolserver.ServerConfig
	for id, sc := range rec.MCPServers {
		serverConfigs = append(serverConfigs, toolserver.ServerConfig{ID: id, Command: sc.Command, Args: sc.Args})
	}

	ctx := context.Background()
	toolServers, err := toolserver.NewRegistry(ctx, serverConfigs, logger)
	if err != nil {
		return nil, nil, err
	}
	if failed := toolServers.Failed(); len(failed) > 0 {
		logger.Warn("some tool servers failed to start", zap.Strings("servers", failed))
	}

	factory := strategyFactory(rec)

	orch := &agent.Orchestrator{
		Providers:   providers,
		ToolServers: toolServers,
		Strategies:  factory,
		Logger:      logger,
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := toolServers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down tool servers", zap.Error(err))
		}
	}

	return orch, cleanup, nil
}

func buildModel(p config.ResolvedProvider) (chatmodel.Model, error) {
	switch p.Type {
	case "openai":
		return chatmodel.NewOpenAICompatible(p.ID, p.ModelConfig.Endpoint, p.APIKey, p.ModelConfig.ModelName)
	case "gemini":
		return chatmodel.NewGemini(p.ID, p.ModelConfig.Endpoint, p.APIKey, p.ModelConfig.ModelName)
	case "ollama":
		return chatmodel.NewOllama(p.ID, p.ModelConfig.Endpoint, p.ModelConfig.ModelName)
	default:
		return nil, fmt.Errorf("provider %q: unsupported type %q", p.ID, p.Type)
	}
}

// strategyFactory builds the StrategyFactory the orchestrator consults
// for Delegate steps. "complete_task" is always available; "plan_execute"
// requires the matching configuration section.
func strategyFactory(rec *config.Record) agent.StrategyFactory {
	return func(kind string) (strategy.Strategy, error) {
		switch kind {
		case "complete_task":
			return strategy.NewCompleteTask(rec.SystemPrompt), nil
		case "plan_execute":
			pe := rec.Strategies.PlanExecute
			if pe.PlanningProvider == "" || pe.ExecutionProvider == "" {
				return nil, fmt.Errorf("strategy %q requested but strategies.plan_execute is not configured", kind)
			}
			return strategy.NewPlanExecute(pe.PlanningProvider, pe.ExecutionProvider, rec.SystemPrompt), nil
		default:
			return nil, fmt.Errorf("unknown strategy kind %q", kind)
		}
	}
}

// defaultStrategyFor picks the top-level strategy for a fresh run: if
// strategies.plan_execute is configured, runs use it; otherwise a
// direct CompleteTask.
func defaultStrategyFor(rec *config.Record) strategy.Strategy {
	pe := rec.Strategies.PlanExecute
	if pe.PlanningProvider != "" && pe.ExecutionProvider != "" {
		return strategy.NewPlanExecute(pe.PlanningProvider, pe.ExecutionProvider, rec.SystemPrompt)
	}
	return strategy.NewCompleteTask(rec.SystemPrompt)
}
