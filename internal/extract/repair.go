package extract

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Repair is one recovery strategy. Apply returns the repaired text and true
// only when the result parses as a JSON object.
type Repair struct {
	Name  string
	Apply func(candidate string) (string, bool)
}

// Repairs is tried in order and the first success wins. Cheap targeted fixes
// come first; suffix completion is the most permissive and runs just before
// the narrow missing-key fix.
var Repairs = []Repair{
	{Name: "quote_keys", Apply: QuoteKeys},
	{Name: "balance_braces", Apply: BalanceBraces},
	{Name: "complete_suffix", Apply: CompleteSuffix},
	{Name: "insert_description_key", Apply: InsertDescriptionKey},
}

var unquotedKey = regexp.MustCompile(`([,{]\s*)([A-Za-z_][A-Za-z0-9_]*)"(\s*:)`)

// QuoteKeys restores the opening quote of keys written as `name":`.
func QuoteKeys(candidate string) (string, bool) {
	fixed := unquotedKey.ReplaceAllString(candidate, `$1"$2"$3`)
	if fixed == candidate {
		return "", false
	}
	return accept(fixed)
}

// BalanceBraces walks forward from the first '{' tracking nesting depth
// (ignoring braces inside strings). Each time the depth returns to zero the
// prefix is tested; the last valid prefix wins.
func BalanceBraces(candidate string) (string, bool) {
	start := strings.IndexByte(candidate, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	best := ""

scan:
	for i := start; i < len(candidate); i++ {
		c := candidate[i]
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
			if depth < 0 {
				break scan
			}
			if depth == 0 && gjson.Valid(candidate[start:i+1]) {
				best = candidate[start : i+1]
			}
		}
	}

	if best == "" || best == candidate {
		return "", false
	}
	return accept(best)
}

// closingSuffixes is the fixed order in which truncation fixes are tried.
var closingSuffixes = []string{"}", "]", "}}", "]}", "}]", `"}`, `"]}`, `"}]`, `"}}`, ")}"}

// CompleteSuffix appends each closing sequence in turn and keeps the first
// that parses.
func CompleteSuffix(candidate string) (string, bool) {
	for _, suffix := range closingSuffixes {
		if fixed, ok := accept(candidate + suffix); ok {
			return fixed, true
		}
	}
	return "", false
}

var missingDescription = regexp.MustCompile(`(\{\s*"id"\s*:\s*"[^"]*"\s*,\s*)("(?:[^"\\]|\\.)*"\s*,\s*"penalty")`)

// InsertDescriptionKey fixes list items shaped like
// {"id": "...", "some text", "penalty": n} by naming the bare string.
func InsertDescriptionKey(candidate string) (string, bool) {
	fixed := missingDescription.ReplaceAllString(candidate, `$1"description": $2`)
	if fixed == candidate {
		return "", false
	}
	return accept(fixed)
}

func accept(s string) (string, bool) {
	if !gjson.Valid(s) {
		return "", false
	}
	if _, err := decodeObject(s); err != nil {
		return "", false
	}
	return s, true
}
