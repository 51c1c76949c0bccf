// Command sentientosd runs the core control-plane daemon: the activity
// loop, the supervised-service manager, the prometheus/websocket
// observability surface, and (when configured) the RL policy injector,
// all under one long-lived process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mscrnt/sentientos/internal/activity"
	"github.com/mscrnt/sentientos/internal/checkpoint"
	"github.com/mscrnt/sentientos/internal/condition"
	"github.com/mscrnt/sentientos/internal/config"
	"github.com/mscrnt/sentientos/internal/logging"
	"github.com/mscrnt/sentientos/internal/replay"
	"github.com/mscrnt/sentientos/internal/rl"
	"github.com/mscrnt/sentientos/internal/router"
	"github.com/mscrnt/sentientos/internal/router/health"
	"github.com/mscrnt/sentientos/internal/router/providers"
	"github.com/mscrnt/sentientos/internal/streaming"
	"github.com/mscrnt/sentientos/internal/supervisor"
	"github.com/mscrnt/sentientos/internal/tool"
	"github.com/mscrnt/sentientos/internal/trace"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var log = logging.For("sentientosd")

var metricsAddr string

var rootCmd = &cobra.Command{
	Use:     "sentientosd",
	Short:   "sentientos control-plane daemon",
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon until signaled to stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, service manifests, and condition rules without running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateConfig()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics and /ws on")
	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func validateConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		return fmt.Errorf("ensure data dirs: %w", err)
	}

	sup := supervisor.New(cfg.ManifestDir)
	if err := sup.Load(); err != nil {
		return fmt.Errorf("load service manifests: %w", err)
	}
	fmt.Printf("service manifests: %d, startup order: %v\n", len(sup.StartupOrder()), sup.StartupOrder())

	rulesPath := filepath.Join(cfg.ConditionRulesDir, "rules.yaml")
	if _, err := os.Stat(rulesPath); err == nil {
		if _, err := condition.Load(rulesPath); err != nil {
			return fmt.Errorf("load condition rules: %w", err)
		}
		fmt.Println("condition rules: OK")
	} else {
		fmt.Println("condition rules: none configured, condition-gated tool dispatch disabled")
	}

	fmt.Println("configuration OK")
	return nil
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		return fmt.Errorf("ensure data dirs: %w", err)
	}

	traceLog, err := trace.Open(cfg.TraceLogPath)
	if err != nil {
		return fmt.Errorf("open trace log: %w", err)
	}

	registry := tool.NewRegistry()
	for _, t := range tool.DefaultTools() {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool %s: %w", t.ID, err)
		}
	}
	executor := tool.NewExecutor(registry, envOrBool("SENTIENT_PRIVILEGE_GRANTED", false), cfg.DataDir, nil)

	var conditions *condition.Matcher
	rulesPath := filepath.Join(cfg.ConditionRulesDir, "rules.yaml")
	if _, statErr := os.Stat(rulesPath); statErr == nil {
		conditions, err = condition.Load(rulesPath)
		if err != nil {
			return fmt.Errorf("load condition rules: %w", err)
		}
	}

	dispatcher := router.NewDispatcher(
		buildProviders(cfg),
		health.NewRegistry(5*time.Minute, health.DefaultConfig()),
		conditions,
		registry,
		executor,
		traceLog,
		nil,
		0,
	)

	queue, err := activity.NewQueue(cfg.GoalQueuePath)
	if err != nil {
		return fmt.Errorf("open goal queue: %w", err)
	}
	dayLog, err := activity.NewDayLog(cfg.ActivityLogDir)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}

	loop := activity.NewLoop(queue, dayLog, cfg.GoalInterval, cfg.HeartbeatInterval)
	loop.Producers = append(loop.Producers, activity.NewLLMObserver(dispatcher, cfg.LLMInterval))

	sup := supervisor.New(cfg.ManifestDir)
	if err := sup.Load(); err != nil {
		return fmt.Errorf("load service manifests: %w", err)
	}

	checkpoints, err := checkpoint.Open(cfg.CheckpointDir)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer checkpoints.Close()

	replayBuf := replay.New(replay.DefaultConfig())
	if err := replayBuf.Load(cfg.ReplayBufferPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load replay buffer, starting empty")
	}

	hub := streaming.NewHub()

	injector := buildInjector(cfg, checkpoints, queue, hub)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error { return serveObservability(gctx, metricsAddr, hub) })
	if injector != nil {
		g.Go(func() error { return runInjectorLoop(gctx, injector, cfg.GoalInterval) })
	}

	log.Info().Str("version", Version).Str("metrics_addr", metricsAddr).Msg("sentientosd starting")

	err = g.Wait()
	if saveErr := replayBuf.Save(cfg.ReplayBufferPath); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to persist replay buffer on shutdown")
	}
	if err == context.Canceled {
		return nil
	}
	return err
}

// buildProviders wires a model-id-to-Provider map from environment
// credentials, always including Ollama since it needs no API key, and
// adding OpenAI/Anthropic candidates only when their key is present —
// an absent key is a configuration choice, not a startup error.
func buildProviders(cfg *config.Config) map[string]providers.Provider {
	set := map[string]providers.Provider{}

	ollama, err := providers.New(providers.Spec{
		ID:      "ollama-local",
		Kind:    providers.KindOllama,
		Model:   envOr("OLLAMA_MODEL", "llama3"),
		BaseURL: cfg.OllamaURL,
		Timeout: 60 * time.Second,
	})
	if err == nil {
		set["ollama-local"] = ollama
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if p, err := providers.New(providers.Spec{
			ID:      "openai-default",
			Kind:    providers.KindOpenAI,
			Model:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:  key,
			Timeout: 60 * time.Second,
		}); err == nil {
			set["openai-default"] = p
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if p, err := providers.New(providers.Spec{
			ID:      "anthropic-default",
			Kind:    providers.KindAnthropic,
			Model:   envOr("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			APIKey:  key,
			Timeout: 60 * time.Second,
		}); err == nil {
			set["anthropic-default"] = p
		}
	}

	return set
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// buildInjector loads the best available checkpoint into a policy
// network and wires it to inject goals through the same queue the
// activity loop drains, returning nil when auto-injection is disabled.
// When no checkpoint exists or loading one fails, the policy keeps its
// random initialization; the injector's heuristic fallback is not used
// here, since a policy is always supplied.
func buildInjector(cfg *config.Config, checkpoints *checkpoint.Store, queue *activity.Queue, hub *streaming.Hub) *rl.Injector {
	injectorCfg := rl.DefaultPolicyInjectorConfig()
	injectorCfg.AutoInject = envOrBool("SENTIENT_RL_AUTO_INJECT", false)
	injectorCfg.Sandbox = cfg.PythonSandbox
	injectorCfg.Timeout = cfg.PythonTimeout
	if !injectorCfg.AutoInject {
		return nil
	}

	policyCfg := rl.DefaultMLPConfig(10, 10)
	policy := rl.NewMLPPolicy(policyCfg, time.Now().UnixNano())
	if id, ok, err := checkpoints.Best(); err == nil && ok {
		if cp, err := checkpoints.Load(id); err == nil {
			if err := rl.LoadPolicyFromCheckpoint(policy, cp); err != nil {
				log.Warn().Err(err).Msg("failed to load rl checkpoint into policy, using random init")
			}
		}
	}

	return rl.NewInjector(injectorCfg, policy, func(s rl.GoalSuggestion) error {
		if payload, err := json.Marshal(s); err == nil {
			hub.Broadcast(streaming.Event{Type: "goal_suggested", Timestamp: time.Now(), Payload: payload})
		}
		return queue.Inject(activity.Goal{
			ID:         s.ID,
			Text:       s.Goal,
			Source:     activity.SourceRLPolicy,
			Confidence: float64(s.Confidence),
		})
	})
}

func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true"
}

func runInjectorLoop(ctx context.Context, injector *rl.Injector, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := injector.Tick(ctx); err != nil {
				log.Warn().Err(err).Msg("rl injector tick failed")
			}
		}
	}
}

func serveObservability(ctx context.Context, addr string, hub *streaming.Hub) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", hub.ServeWS)

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
