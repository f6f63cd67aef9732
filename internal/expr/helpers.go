package expr

import (
	"path"
	"strings"
)

func containsHelper(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}

func startsWithHelper(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

func endsWithHelper(s, suffix string) bool {
	return strings.HasSuffix(s, suffix)
}

// lengthHelper mirrors JS Array/String .length for the handful of shapes
// expressions actually pass it: strings, []any (goja-exported arrays), and
// map[string]any (goja-exported objects).
func lengthHelper(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	default:
		return 0
	}
}

func hasIssueHelper(pr PRInfo, severity string) bool {
	for _, issue := range pr.Issues {
		if severity == "" || issue.Severity == severity {
			return true
		}
	}
	return false
}

func countIssuesHelper(pr PRInfo, severity string) int {
	n := 0
	for _, issue := range pr.Issues {
		if severity == "" || issue.Severity == severity {
			n++
		}
	}
	return n
}

func hasFileMatchingHelper(pr PRInfo, pattern string) bool {
	for _, f := range pr.Files {
		if globMatch(pattern, f) {
			return true
		}
	}
	return false
}

// globMatch supports the "*"/"**" glob vocabulary common to CI path
// filters: a pattern with "**" matches names that start with the text
// before it and end with the text after it; other patterns use path.Match,
// falling back to a simple substring check when path.Match rejects the
// pattern as malformed.
func globMatch(pattern, name string) bool {
	if strings.Contains(pattern, "**") {
		prefix, suffix, _ := strings.Cut(pattern, "**")
		return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
	}
	ok, err := path.Match(pattern, name)
	if err != nil {
		return strings.Contains(name, strings.ReplaceAll(pattern, "*", ""))
	}
	return ok
}
