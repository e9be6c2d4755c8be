package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"doulia.com/workflow-audit/internal/api"
	"doulia.com/workflow-audit/internal/config"
	"doulia.com/workflow-audit/internal/core"
	"doulia.com/workflow-audit/internal/logger"
	"doulia.com/workflow-audit/internal/notify"
	"doulia.com/workflow-audit/internal/store"
)

var (
	configFile string
	logLevel   string
	sessionID  string
	ephemeral  bool
)

var rootCmd = &cobra.Command{
	Use:   "doulia-audit",
	Short: "DOULIA workflow audit assistant",
	Long: `Serves the DOULIA audit assistant: a voice-enabled conversation with Douly
that ends with a structured report of the doctor's daily workflow.`,
	PersistentPreRunE: initConfig,
	RunE:              runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase a session's conversation and start a new audit",
	RunE:  runReset,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the final report of a session and print it",
	RunE:  runReport,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")

	serveCmd.Flags().String("port", "", "HTTP port to listen on")
	serveCmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Keep conversations in memory only")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	for _, c := range []*cobra.Command{resetCmd, reportCmd} {
		c.Flags().StringVar(&sessionID, "session", core.DefaultSessionID, "Session id")
	}

	if err := viper.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("HTTP_PORT", serveCmd.Flags().Lookup("port")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding port flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd, resetCmd, reportCmd)
}

func initConfig(_ *cobra.Command, _ []string) error {
	if err := config.LoadConfig(configFile); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Configure(config.AppConfig.LogLevel, os.Stderr)
	log.Debug("Configuration loaded", "port", config.AppConfig.HTTPPort, "db", config.AppConfig.DatabaseURL)
	return nil
}

// app is the wiring shared by every command.
type app struct {
	kv       store.KeyValue
	llm      *core.LLMService
	sessions *core.SessionManager
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.AppConfig

	var kv store.KeyValue
	if ephemeral {
		log.Warn("Running with an in-memory store, conversations will not survive a restart")
		kv = store.NewMemoryStore()
	} else {
		db, err := store.NewSQLiteStore(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		kv = db
	}

	llm, err := core.NewLLMService(ctx, core.LLMOptions{
		APIKey:      cfg.GeminiAPIKey,
		ChatModel:   cfg.ChatModel,
		SpeechModel: cfg.SpeechModel,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	assistant := core.NewAssistantClient(llm, cfg.HistoryWindow, cfg.VoiceName)
	mailer := notify.NewEmailJS(notify.EmailJSConfig{
		ServiceID:  cfg.EmailJSServiceID,
		TemplateID: cfg.EmailJSTemplateID,
		PublicKey:  cfg.EmailJSPublicKey,
	})

	sessions := core.NewSessionManager(kv, assistant, llm, mailer, core.ManagerOptions{
		Session: core.SessionOptions{
			ReportMinStep: cfg.ReportMinStep,
			ReportDelay:   cfg.ReportDelay,
			Locale:        cfg.SpeechLocale,
		},
		OriginPatterns: originPatterns(cfg.AllowedOrigins),
	})

	return &app{kv: kv, llm: llm, sessions: sessions}, nil
}

func (a *app) Close() {
	a.sessions.Close()
	a.llm.Close()
	if err := a.kv.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// originPatterns converts CORS origins into websocket host patterns.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if u, err := parseOrigin(o); err == nil {
			out = append(out, u)
		}
	}
	return out
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	apiHandler := api.NewAPIHandler(a.sessions)
	router := api.NewRouter(apiHandler, config.AppConfig.AllowedOrigins)

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // report generation waits out its delay first
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	log.Print("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Print("Server exiting gracefully")
	return nil
}
