package pipeline

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMSkipReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("source,name")...),
			expected: "source,name",
		},
		{
			name:     "file without BOM",
			input:    []byte("source,name"),
			expected: "source,name",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(&bomSkipReader{r: bytes.NewReader(tt.input)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestSanitizeReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "valid ASCII",
			input:    []byte("human,pension"),
			expected: "human,pension",
		},
		{
			name:     "valid multibyte UTF-8",
			input:    []byte("预金,保险"),
			expected: "预金,保险",
		},
		{
			name:     "invalid single byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he?lo",
		},
		{
			name:     "truncated multibyte at end",
			input:    []byte{'a', 'b', 0xE4},
			expected: "ab?",
		},
		{
			name:     "empty input",
			input:    []byte{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(&sanitizeReader{r: bytes.NewReader(tt.input)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestSanitizeReader_RuneSplitAcrossReads(t *testing.T) {
	// 6 valid multibyte characters, drip-fed one byte per read so every
	// rune is split across read boundaries.
	input := "预金保险年金"
	result, err := io.ReadAll(&sanitizeReader{r: iotest.OneByteReader(strings.NewReader(input))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != input {
		t.Errorf("got %q, want %q", result, input)
	}
}

func TestSanitizeReader_ShrinkingBufferKeepsHeldBytes(t *testing.T) {
	// "a" plus a 4-byte rune. The first read captures only the rune's first
	// three bytes, which get held back; the caller then shrinks its buffer
	// below the held-back length. No byte may be dropped.
	src := &sanitizeReader{r: bytes.NewReader([]byte("a\xF0\x90\x8D\x88"))}

	var out []byte
	buf := make([]byte, 4)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "a" {
		t.Fatalf("first read = %q, want %q", buf[:n], "a")
	}
	out = append(out, buf[:n]...)

	small := make([]byte, 2)
	for {
		n, err := src.Read(small)
		out = append(out, small[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(out) != 5 {
		t.Errorf("total output = %d bytes, want 5 (held-back bytes must survive a smaller buffer)", len(out))
	}
}

func TestCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	reader := &countingReader{r: strings.NewReader(input), total: int64(len(input))}

	buf := make([]byte, 100)
	totalRead := 0
	for {
		n, err := reader.Read(buf)
		totalRead += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if totalRead != len(input) {
		t.Errorf("total read = %d, want %d", totalRead, len(input))
	}
	if reader.percent() != 100 {
		t.Errorf("percent = %d, want 100", reader.percent())
	}
}

func TestCountingReader_UnknownTotal(t *testing.T) {
	reader := &countingReader{r: strings.NewReader("abc")}
	if _, err := io.ReadAll(reader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.percent() != 0 {
		t.Errorf("percent = %d, want 0 for unknown total", reader.percent())
	}
}

func TestWrapSource(t *testing.T) {
	// BOM followed by an invalid byte: the stack should strip the former
	// and replace the latter while counting consumed bytes.
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'h', 'e', 0x80, 'l', 'o'}...)

	reader := wrapSource(bytes.NewReader(input), int64(len(input)))
	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(result) != "he?lo" {
		t.Errorf("got %q, want %q", result, "he?lo")
	}
	if reader.read.Load() == 0 {
		t.Error("read count should be > 0")
	}
}
