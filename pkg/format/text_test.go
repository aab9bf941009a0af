package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBinary(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}

	tests := []struct {
		name     string
		content  []byte
		expected bool
	}{
		{name: "plain text", content: []byte("API_KEY=abc\n"), expected: false},
		{name: "png magic", content: png, expected: true},
		{name: "nul byte", content: []byte("abc\x00def"), expected: true},
		{name: "utf16 with bom", content: []byte{0xFF, 0xFE, 'a', 0x00, 'b', 0x00}, expected: false},
		{name: "empty", content: []byte{}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsBinary(tt.content))
		})
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name        string
		content     []byte
		contentType string
		expected    string
		ok          bool
	}{
		{
			name:     "utf8 without content type",
			content:  []byte("password = hunter2"),
			expected: "password = hunter2",
			ok:       true,
		},
		{
			name:     "utf8 bom is stripped",
			content:  append([]byte{0xEF, 0xBB, 0xBF}, []byte("token")...),
			expected: "token",
			ok:       true,
		},
		{
			name:     "utf16 little endian",
			content:  []byte{0xFF, 0xFE, 'k', 0x00, 'e', 0x00, 'y', 0x00},
			expected: "key",
			ok:       true,
		},
		{
			name:        "latin1 from content type",
			content:     []byte{'c', 'a', 'f', 0xE9},
			contentType: "text/plain; charset=iso-8859-1",
			expected:    "café",
			ok:          true,
		},
		{
			name:    "invalid utf8 without charset",
			content: []byte{'c', 'a', 'f', 0xE9},
			ok:      false,
		},
		{
			name:        "utf8 label with invalid bytes",
			content:     []byte{0xC3, 0x28},
			contentType: "text/plain; charset=utf-8",
			ok:          false,
		},
		{
			name:    "binary",
			content: []byte("abc\x00def"),
			ok:      false,
		},
		{
			name:     "empty",
			content:  []byte{},
			expected: "",
			ok:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ok := DecodeText(tt.content, tt.contentType)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, text)
			}
		})
	}
}
