package ai

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
)

// DecodeStatus tags the outcome of decoding oracle text.
type DecodeStatus int

const (
	Malformed DecodeStatus = iota
	Parsed
)

func (s DecodeStatus) String() string {
	if s == Parsed {
		return "parsed"
	}
	return "malformed"
}

// Decoded is the tagged result of DecodeObject and DecodeArray. Value is only
// meaningful when Status is Parsed; Reason explains a Malformed result.
type Decoded[T any] struct {
	Status DecodeStatus
	Value  T
	Reason error
}

func (d Decoded[T]) OK() bool {
	return d.Status == Parsed
}

var errNoJSON = errors.New("no JSON block found")

// DecodeObject parses the first balanced {...} block of raw into T.
func DecodeObject[T any](raw string) Decoded[T] {
	return decodeBlock[T](raw, '{', '}')
}

// DecodeArray parses the first balanced [...] block of raw into T.
func DecodeArray[T any](raw string) Decoded[T] {
	return decodeBlock[T](raw, '[', ']')
}

func decodeBlock[T any](raw string, open, closing byte) Decoded[T] {
	text := StripCodeFences(raw)
	if strings.TrimSpace(text) == "" {
		return Decoded[T]{Status: Malformed, Reason: ErrEmptyResponse}
	}
	block, ok := ExtractBalanced(text, open, closing)
	if !ok {
		return Decoded[T]{Status: Malformed, Reason: errNoJSON}
	}
	var v T
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return Decoded[T]{Status: Malformed, Reason: fmt.Errorf("unmarshal oracle json failed: %w", err)}
	}
	return Decoded[T]{Status: Parsed, Value: v}
}

const fence = "```"

// StripCodeFences removes markdown ``` fence markers and the language tag of
// opening fences. Text on the same line as a fence is kept.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, fence) {
		return s
	}
	var b strings.Builder
	opening := true
	for {
		i := strings.Index(s, fence)
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		b.WriteByte('\n')
		s = s[i+len(fence):]
		if opening {
			s = strings.TrimLeftFunc(s, isLanguageTagRune)
		}
		opening = !opening
	}
	return strings.TrimSpace(b.String())
}

func isLanguageTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-_+.", r)
}

// ExtractBalanced returns the first substring that starts with open and ends at
// its matching closing delimiter. Delimiters inside JSON strings are ignored.
func ExtractBalanced(s string, open, closing byte) (string, bool) {
	start := strings.IndexByte(s, open)
	for start >= 0 {
		if end, ok := matchFrom(s, start, open, closing); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchFrom(s string, start int, open, closing byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
