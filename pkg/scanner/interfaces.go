package scanner

import "github.com/rs/zerolog"

// BaseScanner is the contract of the source specific scanners (GitHub, local directory).
type BaseScanner interface {
	// Scan runs the configured scan and writes its results.
	Scan() error
}

// ScannerWithStatus is implemented by scanners that can report progress to the status shortcut.
type ScannerWithStatus interface {
	BaseScanner
	Status() *zerolog.Event
}
