package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"vault-assistant/assistant"
	"vault-assistant/config"
	"vault-assistant/db"
	"vault-assistant/llm"
	"vault-assistant/logger"
	"vault-assistant/settings"
	"vault-assistant/store"
	"vault-assistant/trigger"
	"vault-assistant/vault"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	testConn := flag.Bool("test-connection", false, "Send a test question through the active provider and exit")
	workflowNote := flag.String("workflow", "", "Run the workflow for the given note and exit")
	ask := flag.String("ask", "", "Ask one question, print the answer and exit")
	exportID := flag.String("export", "", "Export the conversation with this id and exit")
	exportOut := flag.String("export-file", "conversation.json", "Destination for -export (.md for markdown)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vault-assistant v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Str("version", version).Str("vault", cfg.VaultPath).Msg("starting vault assistant")

	sm := settings.NewManager(cfg.SettingsPath())
	if err := sm.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load settings")
	}

	v, err := vault.NewOSVault(cfg.VaultPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open vault")
	}

	stats, err := db.Open(cfg.StatsPath())
	if err != nil {
		log.Warn().Err(err).Msg("usage stats unavailable")
		stats = nil
	} else {
		defer stats.Close()
	}

	registry := llm.NewRegistry()
	svc := assistant.NewService(sm, registry, v, stats, log)
	svc.Initialize()
	defer svc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notify := func(msg string) {
		if sm.Get().Notifications {
			log.Info().Str("notification", msg).Msg("user notification")
		}
	}
	handler := trigger.NewHandler(v, svc, sm, registry, notify, log)

	switch {
	case *testConn:
		result := svc.TestConnection(ctx)
		if !result.OK {
			fmt.Fprintf(os.Stderr, "Connection test failed: %s\n", result.Err)
			os.Exit(1)
		}
		fmt.Printf("Connection OK: %s\n", result.Preview)
		return

	case *workflowNote != "":
		if err := handler.RunWorkflow(ctx, *workflowNote); err != nil {
			log.Fatal().Err(err).Msg("workflow failed")
		}
		return

	case *ask != "":
		runAsk(ctx, svc, cfg, *ask, log)
		return

	case *exportID != "":
		conversations := store.NewStore(cfg.ConversationsPath())
		if err := conversations.Export(*exportID, *exportOut, store.FormatForPath(*exportOut)); err != nil {
			log.Fatal().Err(err).Msg("export failed")
		}
		fmt.Printf("Exported conversation %s to %s\n", *exportID, *exportOut)
		return
	}

	watcher, err := vault.NewWatcher(v.Root(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start vault watcher")
	}
	defer watcher.Close()
	logger.SafeGo(log, "vault-watcher", func() { watcher.Run(ctx) })

	log.Info().Str("keyword", sm.Get().TriggerKeyword).Str("suffix", sm.Get().TriggerSuffix).
		Msg("watching vault for inline questions")

	for event := range watcher.Events() {
		if err := handler.HandleModify(ctx, event.Path); err != nil {
			log.Error().Err(err).Str("note", event.Path).Msg("failed to handle note change")
		}
	}
}

// runAsk answers one question from the command line and records the
// exchange as a stored conversation.
func runAsk(ctx context.Context, svc *assistant.Service, cfg config.Config, question string, log zerolog.Logger) {
	answer, err := svc.AskQuestion(ctx, question, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Question failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(answer)

	conversations := store.NewStore(cfg.ConversationsPath())
	msgs := []llm.Message{
		llm.NewMessage("user", question),
		llm.NewMessage("assistant", answer),
	}
	if _, err := conversations.Save(msgs, ""); err != nil {
		log.Warn().Err(err).Msg("failed to save conversation")
	}
}
