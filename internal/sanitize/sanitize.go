// Package sanitize strips injection-shaped substrings out of
// LLM-generated tool arguments before schema validation. It is a pure
// function: non-string primitives pass through untouched and the same
// input always yields the same output. Sanitization is idempotent:
// applying it to its own output changes nothing.
package sanitize

import (
	"regexp"
	"strconv"
	"strings"
)

// pattern pairs a detection tag with the expression that strips it.
type pattern struct {
	tag string
	re  *regexp.Regexp
}

var patterns = []pattern{
	// SQL injection
	{"sql_keyword", regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE)\b`)},
	{"sql_union", regexp.MustCompile(`(?i)\bUNION\b[\s\S]*?\bSELECT\b`)},
	{"sql_comment", regexp.MustCompile(`(?:--[^\n]*|#[^\n]*|/\*[\s\S]*?\*/)`)},
	{"sql_tautology", regexp.MustCompile(`(?i)\b(?:OR|AND)\b\s*['"]?\s*1\s*=\s*1`)},
	{"sql_quote_escape", regexp.MustCompile(`(?:''|\\'|\\")`)},
	{"sql_hex", regexp.MustCompile(`(?i)\b0x[0-9a-f]+\b`)},
	{"sql_exec", regexp.MustCompile(`(?i)\bEXEC\s*\(`)},
	{"sql_chain", regexp.MustCompile(`;\s*(?i:SELECT|INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE)\b[^;]*`)},

	// NoSQL operator injection
	{"nosql_operator", regexp.MustCompile(`\$(?:where|gte?|lte?|ne|eq|in|nin|regex|exists|or|and|not|nor)\b`)},
	{"nosql_eval", regexp.MustCompile(`(?i)\b(?:function|eval)\s*\(`)},

	// Shell command injection
	{"cmd_substitution", regexp.MustCompile("\\$\\([^)]*\\)|`[^`]*`")},
	{"cmd_shell", regexp.MustCompile(`(?i)\b(rm|chmod|chown|sudo|su|wget|curl|nc|netcat)\b`)},
	{"cmd_redirect", regexp.MustCompile(`<<|>>|[<>]`)},
	{"cmd_metachar", regexp.MustCompile("[|;&`$]")},

	// Path traversal
	{"path_traversal", regexp.MustCompile(`(?:\.\./)+`)},
	{"path_system", regexp.MustCompile(`(?i)(?:/(?:etc|proc|sys|root)(?:/[^\s'"]*)?|[a-z]:\\+(?:windows|winnt|system32)[^\s'"]*)`)},
}

// Result reports what the sanitizer changed.
type Result struct {
	// Fields lists the dotted paths of every leaf whose value changed.
	Fields []string
	// Patterns lists the unique tags of patterns that matched, in
	// first-hit order.
	Patterns []string
}

// Map returns a sanitized deep copy of args along with the modified
// field paths and the pattern tags that fired.
func Map(args map[string]any) (map[string]any, Result) {
	var res Result
	seen := map[string]bool{}
	clean := walkMap(args, "", &res, seen)
	return clean, res
}

func walkMap(m map[string]any, prefix string, res *Result, seen map[string]bool) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		out[key] = walkValue(value, path, res, seen)
	}
	return out
}

func walkValue(value any, path string, res *Result, seen map[string]bool) any {
	switch v := value.(type) {
	case string:
		clean, tags := String(v)
		if clean != v {
			res.Fields = append(res.Fields, path)
			for _, tag := range tags {
				if !seen[tag] {
					seen[tag] = true
					res.Patterns = append(res.Patterns, tag)
				}
			}
		}
		return clean
	case map[string]any:
		return walkMap(v, path, res, seen)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = walkValue(item, path+"."+strconv.Itoa(i), res, seen)
		}
		return out
	default:
		// Numbers, booleans and null pass through unchanged.
		return value
	}
}

// String strips all matched patterns from s until a fixpoint is reached,
// then trims surrounding whitespace. The fixpoint pass keeps the
// sanitizer idempotent even when a strip exposes a new match.
func String(s string) (string, []string) {
	var tags []string
	tagged := map[string]bool{}

	current := s
	for {
		next := current
		for _, p := range patterns {
			if !p.re.MatchString(next) {
				continue
			}
			next = p.re.ReplaceAllString(next, "")
			if !tagged[p.tag] {
				tagged[p.tag] = true
				tags = append(tags, p.tag)
			}
		}
		if next == current {
			break
		}
		current = next
	}

	if len(tags) > 0 {
		current = strings.TrimSpace(current)
	}
	return current, tags
}
