package format

import (
	"testing"
)

func TestContainsI(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected bool
	}{
		{
			name:     "exact match",
			a:        "hello",
			b:        "hello",
			expected: true,
		},
		{
			name:     "case insensitive match",
			a:        "Hello World",
			b:        "world",
			expected: true,
		},
		{
			name:     "uppercase in both",
			a:        "HELLO WORLD",
			b:        "WORLD",
			expected: true,
		},
		{
			name:     "mixed case",
			a:        "HeLLo WoRLd",
			b:        "llo wo",
			expected: true,
		},
		{
			name:     "no match",
			a:        "hello",
			b:        "goodbye",
			expected: false,
		},
		{
			name:     "empty substring",
			a:        "hello",
			b:        "",
			expected: true,
		},
		{
			name:     "empty string",
			a:        "",
			b:        "hello",
			expected: false,
		},
		{
			name:     "both empty",
			a:        "",
			b:        "",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ContainsI(tt.a, tt.b)
			if result != tt.expected {
				t.Errorf("ContainsI(%q, %q) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestSingleLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "unix newlines", input: "a\nb", expected: "a b"},
		{name: "windows newlines", input: "a\r\nb", expected: "a b"},
		{name: "carriage return", input: "a\rb", expected: "a b"},
		{name: "no newline", input: "abc", expected: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SingleLine(tt.input); got != tt.expected {
				t.Errorf("SingleLine(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
