// Package main provides the entry point for the readaloud CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/readaloud/readaloud/capability/local"
	"github.com/readaloud/readaloud/capability/mock"
	"github.com/readaloud/readaloud/engine"
	"github.com/readaloud/readaloud/schedule"
	"github.com/readaloud/readaloud/store"
	"github.com/readaloud/readaloud/transport/ws"
	"github.com/readaloud/readaloud/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	keyword = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Render
	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	configFile   string
	stateFile    string
	listenAddr   string
	headless     bool
	speechEngine string
	piperBinary  string
	piperModel   string
	cacheDir     string
	cacheSize    int64

	rootCmd = &cobra.Command{
		Use:   "readaloud [FILE]...",
		Short: "Read text aloud from the command line",
		Long: paragraph(
			fmt.Sprintf("\nQueue up text and %s, with pause, resume, speed and volume control.", keyword("read it aloud")),
		),
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// envOverrides holds debugging settings read from the environment, so
// they work without touching the config file.
type envOverrides struct {
	Debug   bool   `env:"READALOUD_DEBUG"`
	LogFile string `env:"READALOUD_LOG_FILE"`
}

func setupLog() (func() error, error) {
	overrides, err := env.ParseAs[envOverrides]()
	if err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}
	if overrides.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if overrides.LogFile == "" {
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(overrides.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	listenAddr = viper.GetString("listen")
	headless = viper.GetBool("headless")
	speechEngine = viper.GetString("engine")
	piperBinary = viper.GetString("piper.binary")
	piperModel = viper.GetString("piper.model")
	cacheDir = viper.GetString("cache.dir")
	cacheSize = viper.GetInt64("cache.max_size")

	switch speechEngine {
	case "auto", "local", "mock":
	default:
		return fmt.Errorf("unknown speech engine: %s (use auto, local or mock)", speechEngine)
	}

	if headless && listenAddr == "" {
		return errors.New("headless mode needs --listen to be reachable")
	}

	if !cmd.Flags().Changed("state") && stateFile == "" {
		scope := gap.NewScope(gap.User, "readaloud")
		path, err := scope.DataPath("state.json")
		if err != nil {
			return fmt.Errorf("could not resolve state path: %w", err)
		}
		stateFile = path
	}
	return nil
}

// fanout publishes every notification to all attached sinks.
type fanout struct {
	mu    sync.Mutex
	sinks []engine.Publisher
}

func (f *fanout) Attach(p engine.Publisher) {
	f.mu.Lock()
	f.sinks = append(f.sinks, p)
	f.mu.Unlock()
}

func (f *fanout) Publish(n engine.Notification) {
	f.mu.Lock()
	sinks := append([]engine.Publisher(nil), f.sinks...)
	f.mu.Unlock()
	for _, p := range sinks {
		p.Publish(n)
	}
}

// buildCapability selects the speech backend. "auto" prefers the local
// synthesizer and falls back to the mock engine when piper is missing.
func buildCapability(logger *log.Logger) (engine.Capability, error) {
	cfg := local.Config{
		Binary:        piperBinary,
		Model:         piperModel,
		CacheDir:      cacheDir,
		CacheMaxBytes: cacheSize << 20,
	}
	switch speechEngine {
	case "mock":
		return mock.New(), nil
	case "local":
		var capability *local.Capability
		retry := schedule.Retry{MaxAttempts: 3, Delay: 500 * time.Millisecond}
		err := retry.Do(nil, func() error {
			var err error
			capability, err = local.New(cfg, logger.WithPrefix("speech"))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("local synthesis unavailable: %w", err)
		}
		return capability, nil
	default: // auto
		capability, err := local.New(cfg, logger.WithPrefix("speech"))
		if err != nil {
			logger.Warn("local synthesis unavailable, using mock engine", "err", err)
			return mock.New(), nil
		}
		return capability, nil
	}
}

// queueSource reads one FILE argument into the queue. "-" reads stdin.
func queueSource(eng *engine.Engine, arg string) error {
	var (
		text  []byte
		title string
		src   string
		err   error
	)
	if arg == "-" {
		text, err = io.ReadAll(os.Stdin)
		title = "stdin"
	} else {
		text, err = os.ReadFile(arg)
		title = filepath.Base(arg)
		if abs, aerr := filepath.Abs(arg); aerr == nil {
			src = "file://" + abs
		}
	}
	if err != nil {
		return fmt.Errorf("unable to read source: %w", err)
	}
	return eng.Dispatch(engine.Command{
		Type:   engine.CmdQueueAdd,
		Text:   string(text),
		Title:  title,
		Source: src,
	})
}

func execute(_ *cobra.Command, args []string) error {
	logger := log.Default()

	st, err := store.Open(stateFile, schedule.RealClock(), logger.WithPrefix("store"))
	if err != nil {
		return fmt.Errorf("unable to open state store: %w", err)
	}

	capability, err := buildCapability(logger)
	if err != nil {
		return err
	}

	pub := &fanout{}
	eng := engine.New(capability, st, pub, logger)
	eng.Restore(st.Load())

	for _, arg := range args {
		if err := queueSource(eng, arg); err != nil {
			logger.Warn("skipping source", "source", arg, "err", err)
		}
	}

	var srv *ws.Server
	if listenAddr != "" {
		srv = ws.NewServer(listenAddr, eng, logger.WithPrefix("ws"))
		pub.Attach(srv)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("messaging server failed", "err", err)
			}
		}()
		logger.Info("messaging channel listening", "addr", listenAddr)
	}

	if headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
	} else {
		bridge := ui.NewBridge()
		pub.Attach(bridge)
		p := tea.NewProgram(ui.NewModel(eng, bridge), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("unable to run tui program: %w", err)
		}
	}

	eng.Shutdown()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("messaging server shutdown", "err", err)
		}
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVar(&stateFile, "state", "", "playback state file (speed, volume, queue)")
	rootCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "serve the messaging channel on this address (e.g. :4545)")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run without the TUI (requires --listen)")
	rootCmd.Flags().StringVarP(&speechEngine, "engine", "e", "auto", "speech engine (auto, local, mock)")
	rootCmd.Flags().StringVar(&piperBinary, "piper-binary", "", "path to the piper binary")
	rootCmd.Flags().StringVar(&piperModel, "piper-model", "", "path to a piper voice model (.onnx)")

	// Config bindings
	_ = viper.BindPFlag("listen", rootCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("headless", rootCmd.Flags().Lookup("headless"))
	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("piper.binary", rootCmd.Flags().Lookup("piper-binary"))
	_ = viper.BindPFlag("piper.model", rootCmd.Flags().Lookup("piper-model"))

	viper.SetDefault("engine", "auto")
	viper.SetDefault("listen", "")
	viper.SetDefault("headless", false)
	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.max_size", 100)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}

	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "readaloud.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
