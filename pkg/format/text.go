package format

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// nulSniffLen matches the window git uses to decide whether a blob is binary.
const nulSniffLen = 8000

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// IsBinary reports whether content looks like a non-text file.
// https://pkg.go.dev/github.com/h2non/filetype#readme-supported-types
func IsBinary(content []byte) bool {
	kind, _ := filetype.Match(content)
	if kind != filetype.Unknown {
		return true
	}

	if hasUTF16BOM(content) {
		return false
	}

	sniff := content
	if len(sniff) > nulSniffLen {
		sniff = sniff[:nulSniffLen]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}

// DecodeText converts raw file bytes into a UTF-8 string. The charset parameter of contentType
// is honored when present; otherwise the content must already be UTF-8 (a BOM is accepted).
// The second return value is false for binary or undecodable content.
func DecodeText(content []byte, contentType string) (string, bool) {
	if len(content) == 0 {
		return "", true
	}

	if IsBinary(content) {
		return "", false
	}

	if label := charsetLabel(contentType); label != "" && !isUTF8Label(label) && !hasBOM(content) {
		reader, err := charset.NewReaderLabel(label, bytes.NewReader(content))
		if err != nil {
			return "", false
		}
		decoded, err := io.ReadAll(reader)
		if err != nil || !utf8.Valid(decoded) {
			return "", false
		}
		return string(decoded), true
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), content)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

func charsetLabel(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

func isUTF8Label(label string) bool {
	label = strings.ToLower(label)
	return label == "utf-8" || label == "utf8"
}

func hasBOM(content []byte) bool {
	return bytes.HasPrefix(content, bomUTF8) || hasUTF16BOM(content)
}

func hasUTF16BOM(content []byte) bool {
	return bytes.HasPrefix(content, bomUTF16LE) || bytes.HasPrefix(content, bomUTF16BE)
}
