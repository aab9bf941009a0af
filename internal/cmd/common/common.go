// Package common provides the startup sequence shared by the leakhound commands.
package common

import (
	"bytes"
	"context"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/CompassSecurity/leakhound/pkg/format"
	"github.com/CompassSecurity/leakhound/pkg/httpclient"
	"github.com/CompassSecurity/leakhound/pkg/logging"
	"github.com/CompassSecurity/leakhound/pkg/system"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version information - set via ldflags during build
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Log configuration
var (
	originalTermState *term.State
	JsonLogoutput     bool
	LogFile           string
	LogColor          bool
	LogDebug          bool
	LogLevel          string
	IgnoreProxy       bool
)

// TerminalRestorer is called before fatal exits.
var TerminalRestorer func()

// CustomWriter wraps an os.File with proper cross-platform newline handling
type CustomWriter struct {
	Writer *os.File
}

func (cw *CustomWriter) Write(p []byte) (n int, err error) {
	originalLen := len(p)
	p = bytes.TrimSuffix(p, []byte("\n"))

	// necessary as to: https://github.com/rs/zerolog/blob/master/log.go#L474
	newlineChars := []byte("\n")
	if runtime.GOOS == "windows" {
		newlineChars = []byte("\n\r")
	}

	modified := append(p, newlineChars...)
	written, err := cw.Writer.Write(modified)
	if err != nil {
		return 0, err
	}
	if written != len(modified) {
		return 0, io.ErrShortWrite
	}
	return originalLen, nil
}

// FatalHook is a zerolog hook that restores terminal state before fatal exits
type FatalHook struct{}

func (h FatalHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level == zerolog.FatalLevel && TerminalRestorer != nil {
		TerminalRestorer()
	}
}

// SaveTerminalState saves the current terminal state for later restoration
func SaveTerminalState() {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		state, err := term.GetState(int(os.Stdin.Fd()))
		if err == nil {
			originalTermState = state
		}
	}
}

// RestoreTerminalState restores the terminal to its saved state
func RestoreTerminalState() {
	if originalTermState != nil {
		_ = term.Restore(int(os.Stdin.Fd()), originalTermState)
	}
}

// InitLogger initializes the zerolog logger with the configured options
func InitLogger(cmd *cobra.Command) {
	defaultOut := &CustomWriter{Writer: os.Stdout}
	colorEnabled := LogColor

	if LogFile != "" {
		// #nosec G304 - User-provided log file path via --logfile flag, user controls their own filesystem
		runLogFile, err := os.OpenFile(LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, format.FileUserReadWrite)
		if err != nil {
			panic(err)
		}
		defaultOut = &CustomWriter{Writer: runLogFile}

		if !cmd.Root().PersistentFlags().Changed("color") {
			colorEnabled = false
		}
	}

	installLogger(defaultOut, JsonLogoutput, colorEnabled)
}

func installLogger(out io.Writer, jsonOutput bool, colorEnabled bool) {
	hitWriter := logging.NewHitLevelWriter(out)
	if !jsonOutput {
		// HitLevelWriter rewrites the JSON before ConsoleWriter renders it
		hitWriter.SetOutput(zerolog.ConsoleWriter{
			Out:         out,
			TimeFormat:  time.RFC3339,
			NoColor:     !colorEnabled,
			FormatLevel: formatLevelWithHitColor(colorEnabled),
		})
	}
	logging.SetGlobalHitWriter(hitWriter)
	log.Logger = zerolog.New(hitWriter).With().Timestamp().Logger().Hook(FatalHook{})
}

var levelColors = map[string]string{
	"trace": "\x1b[90m",
	"info":  "\x1b[32m",
	"warn":  "\x1b[33m",
	"error": "\x1b[31m",
	"fatal": "\x1b[31m",
	"panic": "\x1b[31m",
	// bright magenta so findings stand out
	"hit": "\x1b[35m",
}

func formatLevelWithHitColor(colorEnabled bool) zerolog.Formatter {
	return func(i interface{}) string {
		level, ok := i.(string)
		if !ok {
			return ""
		}
		color, known := levelColors[level]
		if !colorEnabled || !known {
			return level
		}
		return color + level + "\x1b[0m"
	}
}

// SetGlobalLogLevel applies --log-level, then -v, defaulting to info.
func SetGlobalLogLevel(cmd *cobra.Command) {
	if LogLevel != "" {
		level, err := logging.ParseLevel(LogLevel)
		if err != nil || level == zerolog.NoLevel {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			log.Warn().Str("logLevelSpecified", LogLevel).Msg("Invalid log level, defaulting to info")
			return
		}
		zerolog.SetGlobalLevel(level)
		log.Debug().Str("level", level.String()).Msg("Log level set (explicit)")
		return
	}

	if LogDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Msg("Log level set to debug (-v)")
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// AddCommonFlags adds the common logging and output flags to a cobra command
func AddCommonFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&JsonLogoutput, "json", "", false, "Use JSON as log output format")
	cmd.PersistentFlags().StringVarP(&LogFile, "logfile", "l", "", "Log output to a file")
	cmd.PersistentFlags().BoolVarP(&LogDebug, "verbose", "v", false, "Enable debug logging (shortcut for --log-level=debug)")
	cmd.PersistentFlags().StringVar(&LogLevel, "log-level", "", "Set log level globally (trace, debug, info, warn, error). Example: --log-level=warn")
	cmd.PersistentFlags().BoolVar(&LogColor, "color", true, "Enable colored log output (auto-disabled when using --logfile)")
	cmd.PersistentFlags().BoolVar(&IgnoreProxy, "ignore-proxy", false, "Ignore HTTP_PROXY environment variable")
}

// SetupPersistentPreRun sets up the PersistentPreRun handler for logging initialization
func SetupPersistentPreRun(cmd *cobra.Command) {
	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		InitLogger(c)
		SetGlobalLogLevel(c)
		httpclient.SetIgnoreProxy(IgnoreProxy)
		go logging.ShortcutListeners(nil)
	}
}

// ScanContext returns the context of one scan run. It is cancelled by the first SIGINT/SIGTERM and by
// the Ctrl+C/Escape shortcut; the returned stop function releases the signal handler.
func ScanContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	interrupt := func() {
		log.Warn().Msg("Interrupting scan, partial results will be written")
		RestoreTerminalState()
		cancel()
	}

	logging.RegisterInterruptHook(interrupt)
	stopSignals := system.RegisterGracefulShutdownHandler(interrupt)
	return ctx, func() {
		stopSignals()
		cancel()
	}
}

// Run executes the common startup sequence and runs the provided root command
func Run(rootCmd *cobra.Command) {
	SaveTerminalState()
	defer RestoreTerminalState()

	TerminalRestorer = RestoreTerminalState

	if err := rootCmd.Execute(); err != nil {
		RestoreTerminalState()
		os.Exit(1)
	}
}
