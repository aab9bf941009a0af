// Package logging holds the zerolog helpers shared by the leakhound commands: the "hit" level
// for findings and the runtime keyboard shortcuts.
package logging

import (
	"sync"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func SetLogLevel(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Msg("Verbose log output enabled")
	}
}

type ShortcutStatusFN func() *zerolog.Event

// ShortcutActionFN is run when its shortcut is pressed.
type ShortcutActionFN func()

var (
	hookMutex     sync.RWMutex
	statusHook    ShortcutStatusFN
	skipHook      ShortcutActionFN
	interruptHook ShortcutActionFN
)

// RegisterStatusHook allows commands to register a custom status function
func RegisterStatusHook(hook ShortcutStatusFN) {
	hookMutex.Lock()
	defer hookMutex.Unlock()
	statusHook = hook
}

// RegisterSkipHook sets the action of the Enter key.
func RegisterSkipHook(hook ShortcutActionFN) {
	hookMutex.Lock()
	defer hookMutex.Unlock()
	skipHook = hook
}

// RegisterInterruptHook sets the action of Ctrl+C and Escape. The terminal is in raw mode while the
// listener runs, so Ctrl+C does not raise SIGINT.
func RegisterInterruptHook(hook ShortcutActionFN) {
	hookMutex.Lock()
	defer hookMutex.Unlock()
	interruptHook = hook
}

// GetStatusHook returns the registered status hook or a default one
func GetStatusHook() ShortcutStatusFN {
	hookMutex.RLock()
	defer hookMutex.RUnlock()
	if statusHook != nil {
		return statusHook
	}
	return defaultStatusHook
}

func defaultStatusHook() *zerolog.Event {
	return log.Info().Str("status", "nothing to show")
}

func runHook(hook *ShortcutActionFN) {
	hookMutex.RLock()
	fn := *hook
	hookMutex.RUnlock()
	if fn != nil {
		fn()
	}
}

var levelShortcuts = map[string]zerolog.Level{
	"t": zerolog.TraceLevel,
	"d": zerolog.DebugLevel,
	"i": zerolog.InfoLevel,
	"w": zerolog.WarnLevel,
	"e": zerolog.ErrorLevel,
}

// HandleShortcut applies one key press. It returns true when the listener should stop.
func HandleShortcut(key keys.Key) bool {
	switch key.Code {
	case keys.CtrlC, keys.Escape:
		runHook(&interruptHook)
		return true
	case keys.Enter:
		runHook(&skipHook)
	case keys.RuneKey:
		if level, ok := levelShortcuts[key.String()]; ok {
			zerolog.SetGlobalLevel(level)
			log.Info().Str("logLevel", level.String()).Msg("New Log level")
		}

		if key.String() == "s" {
			currentHook := GetStatusHook()
			currentHook().Msg("Status")
		}
	}
	return false
}

func ShortcutListeners(status ShortcutStatusFN) {
	if status != nil {
		RegisterStatusHook(status)
	}

	err := keyboard.Listen(func(key keys.Key) (stop bool, err error) {
		return HandleShortcut(key), nil
	})

	if err != nil {
		log.Error().Err(err).Msg("Failed hooking keyboard bindings")
	}
}
