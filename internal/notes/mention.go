package notes

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

// DefaultSuggestionLimit caps the mention autocomplete list.
const DefaultSuggestionLimit = 5

// Span is a half-open [Start, End) byte range inside a draft text. For an
// active mention it covers the "@query" token including the @.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ActiveQuery scans backward from the cursor to the nearest @ and reports
// whether the cursor sits inside an active mention query. The @ must be at
// position 0 or immediately preceded by whitespace, and the span from @ to
// the cursor must contain no whitespace; any other cursor state closes the
// suggestion list.
func ActiveQuery(text string, cursor int) (query string, span Span, ok bool) {
	if cursor < 0 || cursor > len(text) {
		return "", Span{}, false
	}
	at := strings.LastIndexByte(text[:cursor], '@')
	if at < 0 {
		return "", Span{}, false
	}
	if at > 0 {
		prev := rune(text[at-1])
		if !unicode.IsSpace(prev) {
			return "", Span{}, false
		}
	}
	candidate := text[at+1 : cursor]
	if strings.IndexFunc(candidate, unicode.IsSpace) >= 0 {
		return "", Span{}, false
	}
	return candidate, Span{Start: at, End: cursor}, true
}

// Suggest filters the candidate user set by case-insensitive substring match
// against name or email, capped at limit entries. A non-positive limit falls
// back to DefaultSuggestionLimit.
func Suggest(users []contracts.User, query string, limit int) []contracts.User {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]contracts.User, 0, limit)
	for _, u := range users {
		if needle != "" &&
			!strings.Contains(strings.ToLower(u.Name), needle) &&
			!strings.Contains(strings.ToLower(u.Email), needle) {
			continue
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out
}

// CommitMention replaces the active query span with "@FullName " and returns
// the new text plus the cursor position immediately after the inserted
// trailing space.
func CommitMention(text string, span Span, fullName string) (string, int) {
	if span.Start < 0 || span.End > len(text) || span.Start > span.End {
		return text, len(text)
	}
	inserted := "@" + fullName + " "
	newText := text[:span.Start] + inserted + text[span.End:]
	return newText, span.Start + len(inserted)
}

// mentionPattern captures a run of name words after an @. Word characters are
// letters and digits; single spaces join multi-word names. Punctuation is not
// part of the class, so it terminates a capture without lookahead.
var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}]+(?: [\p{L}\p{N}]+)*)`)

// ExtractMentions resolves the @Name tokens of a finalized note text to known
// user IDs. Runs once at submit time, never during typing.
//
// A captured run can be longer than the mentioned name ("@Jane Doe please
// review" captures "Jane Doe please review"), so each capture is shortened
// word by word until it matches a known user by exact case-insensitive name.
// Unresolvable captures are dropped, the note's own author is dropped even
// when self-mentioned, and resolved IDs are deduplicated.
func ExtractMentions(text string, users []contracts.User, authorID string) []string {
	byName := make(map[string]contracts.User, len(users))
	for _, u := range users {
		byName[strings.ToLower(u.Name)] = u
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(match[1])
		for end := len(words); end > 0; end-- {
			candidate := strings.ToLower(strings.Join(words[:end], " "))
			user, known := byName[candidate]
			if !known {
				continue
			}
			if user.ID == authorID {
				break
			}
			if _, dup := seen[user.ID]; !dup {
				seen[user.ID] = struct{}{}
				ids = append(ids, user.ID)
			}
			break
		}
	}
	return ids
}
