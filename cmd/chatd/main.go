package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/chatstore"
	"github.com/quillhq/chatd/config"
	"github.com/quillhq/chatd/llm"
	"github.com/quillhq/chatd/llm/anthropic"
	"github.com/quillhq/chatd/llm/minimax"
	"github.com/quillhq/chatd/llm/ollama"
	"github.com/quillhq/chatd/llm/openai"
	chatdlogger "github.com/quillhq/chatd/logger"
	"github.com/quillhq/chatd/migrations"
	"github.com/quillhq/chatd/notestore"
	"github.com/quillhq/chatd/pipeline"
	"github.com/quillhq/chatd/tools"
)

const mcpStartupTimeout = 60 * time.Second

// noteServiceAdapter adapts notestore.Store to tools.NoteService.
type noteServiceAdapter struct {
	store *notestore.Store
}

func (a *noteServiceAdapter) SearchNotes(ctx context.Context, query string, limit int) ([]tools.NoteResult, error) {
	results, err := a.store.SearchNotes(ctx, query, limit)
	return toNoteResults(results), err
}

func (a *noteServiceAdapter) KeywordSearch(ctx context.Context, query string, limit int) ([]tools.NoteResult, error) {
	results, err := a.store.KeywordSearch(ctx, query, limit)
	return toNoteResults(results), err
}

func (a *noteServiceAdapter) ListNotes(ctx context.Context, parentID string, limit int) ([]tools.NoteResult, error) {
	results, err := a.store.ListNotes(ctx, parentID, limit)
	return toNoteResults(results), err
}

func (a *noteServiceAdapter) ReadNote(ctx context.Context, noteID string) (*tools.Note, error) {
	note, err := a.store.ReadNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	return &tools.Note{
		ID:      note.ID,
		Title:   note.Title,
		Type:    note.Type,
		Content: note.Content,
	}, nil
}

func toNoteResults(results []notestore.Result) []tools.NoteResult {
	converted := make([]tools.NoteResult, len(results))
	for i, r := range results {
		converted[i] = tools.NoteResult{
			ID:      r.ID,
			Title:   r.Title,
			Preview: r.Preview,
			Score:   r.Score,
		}
	}
	return converted
}

// chatStorageAdapter adapts chatstore.Store to pipeline.ChatStorage.
type chatStorageAdapter struct {
	store *chatstore.Store
}

func (a *chatStorageAdapter) RecordToolExecution(ctx context.Context, rec *pipeline.ToolExecutionRecord) error {
	arguments := ""
	if len(rec.Arguments) > 0 {
		if raw, err := json.Marshal(rec.Arguments); err == nil {
			arguments = string(raw)
		}
	}
	return a.store.RecordToolExecution(ctx, chatstore.ToolExecution{
		ConversationID: rec.ConversationID,
		CallID:         rec.CallID,
		Name:           rec.Name,
		Arguments:      arguments,
		Result:         rec.Result,
		Error:          rec.Error,
		CreatedAt:      rec.CreatedAt,
	})
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     = flag.String("config", config.GetConfigPath(), "Path to config file")
		dbPath         = flag.String("db", "", "Path to SQLite database file (overrides config)")
		logFile        = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty         = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		prompt         = flag.String("prompt", "", "Run a single prompt and exit instead of the interactive loop")
		conversationID = flag.String("conversation", "", "Conversation ID to resume (default: new conversation)")
		model          = flag.String("model", "", "Model override, bare or as provider:model")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	appConfig, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	effectiveLogFile := appConfig.Logging.File
	if *logFile != "" {
		effectiveLogFile = *logFile
	}
	logger, err := chatdlogger.InitWithOptions(effectiveLogFile, *pretty || appConfig.Logging.Pretty, appConfig.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	effectiveDBPath := appConfig.Database.Path
	if *dbPath != "" {
		effectiveDBPath = *dbPath
	}

	logger.Info().
		Str("config", *configPath).
		Str("db", effectiveDBPath).
		Str("provider", appConfig.Provider).
		Msg("chatd starting")

	// ---------------------------
	// 1. Open SQLite + stores
	// ---------------------------

	db, err := sql.Open("sqlite3", effectiveDBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.RunMigrations(db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	chatStore := chatstore.NewStore(db, logger)
	noteStore := notestore.NewStore(db, logger)

	// ---------------------------
	// 2. Provider registry
	// ---------------------------

	registry := llm.NewRegistry(config.LLMProviderConfig(appConfig))
	registry.RegisterFactory(llm.ProviderAnthropic, anthropic.Factory(logger))
	registry.RegisterFactory(llm.ProviderOpenAI, openai.Factory)
	registry.RegisterFactory(llm.ProviderOllama, ollama.Factory)
	registry.RegisterFactory(llm.ProviderMiniMax, minimax.Factory)
	registry.Use(llm.NewLoggingMiddleware(logger))

	// ---------------------------
	// 3. Tool registry + MCP servers
	// ---------------------------

	toolRegistry := tools.NewRegistry(logger)
	if err := tools.RegisterNoteTools(toolRegistry, &noteServiceAdapter{store: noteStore}, logger); err != nil {
		return fmt.Errorf("failed to register note tools: %w", err)
	}

	bridges := startMCPServers(logger, toolRegistry, appConfig.MCPServers)
	defer func() {
		for _, bridge := range bridges {
			_ = bridge.Close()
		}
	}()

	// ---------------------------
	// 4. Pipeline
	// ---------------------------

	chat := pipeline.New(
		config.ChatPipelineConfig(appConfig),
		registry,
		toolRegistry,
		&chatStorageAdapter{store: chatStore},
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	convID := *conversationID
	if convID == "" {
		convID = uuid.NewString()
		logger.Info().Str("conversationID", convID).Msg("Starting new conversation")
	}

	session := &chatSession{
		pipeline:       chat,
		store:          chatStore,
		logger:         logger,
		conversationID: convID,
		model:          *model,
	}
	if err := session.loadHistory(ctx); err != nil {
		return err
	}

	if *prompt != "" {
		if err := session.turn(ctx, *prompt); err != nil {
			return err
		}
	} else if err := session.interact(ctx); err != nil {
		return err
	}

	logSnapshot(logger, chat.Metrics().Snapshot())
	logger.Info().Msg("chatd shutdown complete")
	return nil
}

// chatSession runs chat turns against the pipeline, persisting the
// transcript as it goes.
type chatSession struct {
	pipeline       *pipeline.Pipeline
	store          *chatstore.Store
	logger         zerolog.Logger
	conversationID string
	model          string
	history        []llm.Message
}

func (s *chatSession) loadHistory(ctx context.Context) error {
	history, err := s.store.LoadTranscript(ctx, s.conversationID)
	if err != nil {
		return fmt.Errorf("failed to load transcript: %w", err)
	}
	if len(history) > 0 {
		s.logger.Info().
			Int("messages", len(history)).
			Str("conversationID", s.conversationID).
			Msg("Resuming conversation")
	}
	s.history = history
	return nil
}

// interact reads prompts from stdin until EOF or cancellation.
func (s *chatSession) interact(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Printf("chatd ready (conversation %s). Ctrl-D to exit.\n", s.conversationID)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// turn runs one prompt through the pipeline, streaming output to stdout.
func (s *chatSession) turn(ctx context.Context, prompt string) error {
	userMsg := llm.NewTextMessage(llm.RoleUser, prompt)
	s.history = append(s.history, userMsg)
	if err := s.store.AppendMessage(ctx, s.conversationID, userMsg); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist user message")
	}

	printed := false
	result, err := s.pipeline.Execute(ctx, &pipeline.ChatRequest{
		ConversationID: s.conversationID,
		Messages:       s.history,
		Model:          s.model,
		Callback: func(text string, done bool, chunk *llm.StreamChunk) error {
			if text != "" {
				fmt.Print(text)
				printed = true
			}
			if done && printed {
				fmt.Println()
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	if !printed && result.Text != "" {
		fmt.Println(result.Text)
	}

	assistantMsg := llm.NewTextMessage(llm.RoleAssistant, result.Text)
	s.history = append(s.history, assistantMsg)
	if err := s.store.AppendMessage(ctx, s.conversationID, assistantMsg); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist assistant message")
	}

	s.logger.Info().
		Str("provider", string(result.Provider)).
		Str("model", result.Model).
		Int("iterations", result.Iterations).
		Int("toolCalls", result.ToolCalls).
		Bool("streamed", result.Streamed).
		Msg("Turn complete")
	return nil
}

// startMCPServers launches configured MCP servers and registers their tools.
// Failures are logged and skipped so one bad server does not take the
// daemon down.
func startMCPServers(logger zerolog.Logger, registry *tools.Registry, servers map[string]*config.MCPServerConfig) []*tools.MCPBridge {
	if len(servers) == 0 {
		logger.Info().Msg("No MCP servers configured")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), mcpStartupTimeout)
	defer cancel()

	var bridges []*tools.MCPBridge
	for name, serverConfig := range servers {
		if serverConfig == nil || serverConfig.Command == "" {
			logger.Warn().Str("name", name).Msg("MCP server has no command, skipping")
			continue
		}

		bridge, err := tools.NewStdioBridge(ctx, serverConfig.Command, serverConfig.Args, serverConfig.Env, logger)
		if err != nil {
			logger.Error().Str("name", name).Err(err).Msg("Failed to start MCP server")
			continue
		}
		if err := bridge.RegisterTools(ctx, registry); err != nil {
			logger.Error().Str("name", name).Err(err).Msg("Failed to register MCP tools")
			_ = bridge.Close()
			continue
		}

		logger.Info().
			Str("name", name).
			Int("tools", len(bridge.BridgedTools())).
			Msg("Registered MCP server")
		bridges = append(bridges, bridge)
	}
	return bridges
}

func logSnapshot(logger zerolog.Logger, snapshot pipeline.MetricsSnapshot) {
	logger.Info().
		Int64("totalExecutions", snapshot.TotalExecutions).
		Int64("failedExecutions", snapshot.FailedExecutions).
		Int64("toolCalls", snapshot.ToolCallsExecuted).
		Msg("Pipeline metrics")
}
