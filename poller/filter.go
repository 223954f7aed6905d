package poller

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/store"
)

// MaxKeywordLength bounds operator supplied patterns.
const MaxKeywordLength = 200

var defaultKeyword = regexp.MustCompile(`(?i)` + store.DefaultKeywordRegex)

// CompileKeyword compiles pattern case-insensitively. Empty, overlong or
// invalid patterns fall back to the default keyword.
func CompileKeyword(pattern string) *regexp.Regexp {
	if err := ValidateKeyword(pattern); err != nil {
		return defaultKeyword
	}
	return regexp.MustCompile(`(?i)` + strings.TrimSpace(pattern))
}

// ValidateKeyword reports why pattern would not be accepted.
func ValidateKeyword(pattern string) error {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return errors.New("regex cannot be empty")
	}
	if len(p) > MaxKeywordLength {
		return fmt.Errorf("regex is too long (max %d chars)", MaxKeywordLength)
	}
	if _, err := regexp.Compile(`(?i)` + p); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

// Filter decides whether a live record deserves a notification.
type Filter struct {
	Keyword *regexp.Regexp
	// CategoryID is the required category; empty disables the check.
	CategoryID string
}

// CategoryMatches reports the category half of Matches.
func (f Filter) CategoryMatches(rec platform.LiveRecord) bool {
	return f.CategoryID == "" || rec.CategoryID == f.CategoryID
}

// KeywordMatches reports the title half of Matches.
func (f Filter) KeywordMatches(rec platform.LiveRecord) bool {
	kw := f.Keyword
	if kw == nil {
		kw = defaultKeyword
	}
	return kw.MatchString(rec.Title)
}

// Matches reports whether rec is live, in the target category and has a
// title matching the keyword.
func (f Filter) Matches(rec platform.LiveRecord) bool {
	return rec.Live && f.CategoryMatches(rec) && f.KeywordMatches(rec)
}

func chunk(in []string, size int) [][]string {
	var out [][]string
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	if len(in) > 0 {
		out = append(out, in)
	}
	return out
}
