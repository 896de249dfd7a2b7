// Package scan holds the content-analysis algorithms: printable
// string extraction from binary blobs and URL classification over the
// extracted strings.
package scan

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"
)

// DefaultMinLength is the default minimum string length.
const DefaultMinLength = 4

// StringScanner extracts printable ASCII and UTF-16 substrings from
// binary data.
type StringScanner struct {
	MinLength int
	log       *zap.Logger
}

// NewStringScanner returns a scanner with the given minimum run
// length; minLength <= 0 selects the default.
func NewStringScanner(minLength int, log *zap.Logger) *StringScanner {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &StringScanner{MinLength: minLength, log: log}
}

// Character alphabet for candidate strings: printable ASCII letters,
// digits, and the punctuation seen in encoded payloads and URLs.
func allowedByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	}
	switch b {
	case '+', '/', '=', '-', ':', '.', ' ', ',', '_', '$', '%', '\'', '(', ')', '[', ']', '<', '>':
		return true
	}
	return false
}

// Extract returns the ordered, deduplicated candidate strings in data:
// maximal ASCII runs first, then runs found in a best-effort UTF-16
// reinterpretation of the whole blob. First occurrence wins.
func (s *StringScanner) Extract(data []byte) []string {
	var out []string
	out = append(out, s.asciiRuns(data)...)
	out = append(out, s.runsInText(decodeUTF16(data))...)

	seen := make(map[string]struct{}, len(out))
	unique := out[:0]
	for _, str := range out {
		if _, ok := seen[str]; ok {
			continue
		}
		seen[str] = struct{}{}
		unique = append(unique, str)
	}
	return unique
}

// SidecarPath derives the one-string-per-line output path for a source
// artifact. Part of the persisted contract.
func SidecarPath(src string) string {
	return src + ".strings"
}

// ExtractFile scans the file at path and writes the sidecar strings
// file next to it. Any I/O error on the source is a file-access
// failure.
func (s *StringScanner) ExtractFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	result := s.Extract(data)

	sidecar := SidecarPath(path)
	var b strings.Builder
	for _, str := range result {
		b.WriteString(str)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(sidecar, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", sidecar, err)
	}
	s.log.Info("extracted strings",
		zap.Int("count", len(result)), zap.String("output", sidecar))
	return result, nil
}

func (s *StringScanner) asciiRuns(data []byte) []string {
	var out []string
	start := -1
	flush := func(end int) {
		if start >= 0 {
			// Trim before the length check: a space-padded run must
			// still satisfy the minimum after trimming.
			str := strings.TrimSpace(string(data[start:end]))
			if len(str) >= s.MinLength {
				out = append(out, str)
			}
		}
		start = -1
	}
	for i, b := range data {
		if allowedByte(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))
	return out
}

func (s *StringScanner) runsInText(text string) []string {
	var out []string
	runes := []rune(text)
	start := -1
	flush := func(end int) {
		if start >= 0 {
			str := strings.TrimSpace(string(runes[start:end]))
			if len(str) >= s.MinLength {
				out = append(out, str)
			}
		}
		start = -1
	}
	for i, r := range runes {
		if r < 128 && allowedByte(byte(r)) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(runes))
	return out
}

// decodeUTF16 reinterprets data as UTF-16 text, best effort: a BOM
// selects the byte order, otherwise little-endian; a trailing odd byte
// is dropped; invalid sequences decode to replacement characters that
// never match the alphabet.
func decodeUTF16(data []byte) string {
	var order binary.ByteOrder = binary.LittleEndian
	if len(data) >= 2 {
		if data[0] == 0xFF && data[1] == 0xFE {
			data = data[2:]
		} else if data[0] == 0xFE && data[1] == 0xFF {
			order = binary.BigEndian
			data = data[2:]
		}
	}
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		units = append(units, order.Uint16(data[i:]))
	}
	return string(utf16.Decode(units))
}
