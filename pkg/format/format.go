package format

import (
	"os"

	gounits "github.com/docker/go-units"
)

// FileUserReadWrite is used for files leakhound creates (results, logs, downloaded rules).
const FileUserReadWrite os.FileMode = 0600

// ParseHumanSize parses a human-readable size string (e.g., "500Mb", "2Gb") into bytes
func ParseHumanSize(size string) (int64, error) {
	return gounits.FromHumanSize(size)
}

// HumanSize renders a byte count the way --max-file-size accepts it.
func HumanSize(size int64) string {
	return gounits.HumanSize(float64(size))
}
