package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samirrijal/placedesk/internal/core/domain"
)

// minObjectRunes is the shortest bare object considered a record.
const minObjectRunes = 20

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

// Record finds a JSON object in model output: first a fenced code block
// whose body is an object, then the first balanced {...} substring of at
// least 20 characters that parses as an object.
func Record(text string) (domain.RawCandidate, bool) {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if obj, ok := parseObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := closingBrace(text, start); end > start {
			sub := text[start : end+1]
			if utf8.RuneCountInString(sub) >= minObjectRunes {
				if obj, ok := parseObject(sub); ok {
					return obj, true
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

func parseObject(s string) (domain.RawCandidate, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return domain.RawCandidate(obj), true
}

// closingBrace returns the index of the brace closing the one at open,
// skipping braces inside JSON strings, or -1.
func closingBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
