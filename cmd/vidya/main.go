package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/vidya/internal/agent"
	"github.com/rahul/vidya/internal/capability"
	"github.com/rahul/vidya/internal/gateway"
	"github.com/rahul/vidya/internal/governance"
	"github.com/rahul/vidya/internal/observability"
	"github.com/rahul/vidya/internal/store"
	"github.com/rahul/vidya/pkg/config"
)

func main() {
	observability.PrintBanner()

	// Route all log output through the terminal mutex so it never
	// interleaves with the live status line.
	log.SetOutput(observability.NewTermWriter())

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg := config.LoadConfig(cfgPath)

	st, err := store.Open(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	// Initialize LLM (using default enabled provider)
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	logger := observability.NewLogger()
	gen := capability.NewGenerator(llm, logger)

	registry := capability.NewRegistry()
	registry.Register(capability.NewResolveCourse(st))
	registry.Register(capability.NewAnalyzeContent())
	registry.Register(capability.NewStudyPlan(st, gen))
	registry.Register(capability.NewUpdateStudyPlan(st, gen))
	registry.Register(capability.NewIngest(st))
	registry.Register(capability.NewKnowledgeStore(st))
	registry.Register(capability.NewKnowledgeQuery(st, gen))
	registry.Register(capability.NewFlashcards(st, gen))
	registry.Register(capability.NewQuiz(st, gen))
	registry.Register(capability.NewResearch(gen, cfg.App.UseBrowser))
	registry.Register(capability.NewProgress(st))

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: keep injection-style payloads out of capability
	// parameters.
	_ = gov.DenyParams(`(?i)<script`)
	_ = gov.DenyParams(`(?i);\s*drop\s+table`)

	sessions := agent.NewManager(st, cfg.Memory.HistoryLimit)

	coord := agent.NewCoordinator(registry, gov, logger)
	coord.FanOut = cfg.Orchestrator.FanOut
	coord.MaxRetries = cfg.Orchestrator.MaxRetries
	coord.TaskTimeout = cfg.Orchestrator.TaskTimeout

	orch := &agent.Orchestrator{
		Classifier:  agent.NewClassifier(llm, registry),
		Planner:     agent.NewPlanner(registry),
		Coordinator: coord,
		Synthesizer: agent.NewSynthesizer(llm, logger),
		Sessions:    sessions,
		Logger:      logger,
		TurnTimeout: cfg.Orchestrator.TurnTimeout,
	}

	var gateways []gateway.Messenger
	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, orch)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, tg)
	}
	if dcCfg, ok := cfg.GetDiscordConfig(); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, orch)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, dc)
	}
	if len(gateways) == 0 {
		log.Fatal("No gateway is enabled in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live status line (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	}()

	for _, gw := range gateways {
		gw := gw
		go func() {
			if err := gw.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop()
			}
		}()
	}

	<-ctx.Done()

	for _, gw := range gateways {
		if err := gw.Stop(); err != nil {
			log.Printf("Error stopping gateway: %v", err)
		}
	}

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] VIDYA CORE DE-INITIALIZED. GOODBYE.\033[0m")
}
