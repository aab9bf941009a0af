// Package system wires process signals into the scan lifecycle.
package system

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
)

type ShutdownHandler func()

// exit is replaced in tests.
var exit = os.Exit

// RegisterGracefulShutdownHandler runs handler on the first SIGINT or SIGTERM so the running batch can
// be cancelled and its partial results written. A second signal exits immediately.
// The returned function stops listening.
func RegisterGracefulShutdownHandler(handler ShutdownHandler) (stop func()) {
	sigChannel := make(chan os.Signal, 2)
	signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM)
	return watchSignals(sigChannel, handler, func() { signal.Stop(sigChannel) })
}

func watchSignals(signals chan os.Signal, handler ShutdownHandler, unsubscribe func()) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-signals:
		case <-done:
			return
		}
		if stopped(done) {
			return
		}
		log.Info().Msg("Received interrupt signal, shutting down gracefully...")
		go handler()

		select {
		case <-signals:
			if stopped(done) {
				return
			}
			log.Warn().Msg("Received second interrupt signal, exiting")
			exit(1)
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
}

// stopped reports whether done is closed. A signal buffered before stop must not win over it.
func stopped(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
