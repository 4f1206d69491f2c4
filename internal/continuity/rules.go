package continuity

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"storyforge/internal/bible"
)

// HairColors is the closed vocabulary the hair colour rule compares against.
var HairColors = []string{"blonde", "brunette", "red", "black", "gray", "white"}

// ActionVerbs are the verbs that show a character acting on screen.
var ActionVerbs = []string{"walks", "says", "runs", "speaks", "moves", "looks", "goes"}

var (
	hairWordRe = regexp.MustCompile(`(?i)\bhair`)
	wordRes    sync.Map
)

// Mentions reports whether name occurs in script, ignoring case.
func Mentions(script, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	// Casers carry state, so each call gets its own.
	folder := cases.Fold()
	return strings.Contains(folder.String(script), folder.String(name))
}

// wordRe matches word case-insensitively as a whole word.
func wordRe(word string) *regexp.Regexp {
	return cachedWordRe(`(?i)`, word)
}

// exactWordRe matches word with its exact casing as a whole word.
func exactWordRe(word string) *regexp.Regexp {
	return cachedWordRe(``, word)
}

func cachedWordRe(flags, word string) *regexp.Regexp {
	key := flags + word
	if re, ok := wordRes.Load(key); ok {
		return re.(*regexp.Regexp)
	}
	pattern := regexp.QuoteMeta(word)
	// \b only holds next to a word character.
	if r, _ := utf8.DecodeRuneInString(word); isWordRune(r) {
		pattern = `\b` + pattern
	}
	if r, _ := utf8.DecodeLastRuneInString(word); isWordRune(r) {
		pattern += `\b`
	}
	re := regexp.MustCompile(flags + pattern)
	wordRes.Store(key, re)
	return re
}

func isWordRune(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

// matchLeadingCase capitalizes value when found starts with a capital.
func matchLeadingCase(found, value string) string {
	f, _ := utf8.DecodeRuneInString(found)
	if !unicode.IsUpper(f) {
		return value
	}
	v, size := utf8.DecodeRuneInString(value)
	return string(unicode.ToUpper(v)) + value[size:]
}

// nameWindow returns the text within radius bytes of the first occurrence of
// name, widened to rune boundaries.
func nameWindow(script, name string, radius int) (string, bool) {
	loc := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name)).FindStringIndex(script)
	if loc == nil {
		return "", false
	}
	start := max(0, loc[0]-radius)
	for start > 0 && !utf8.RuneStart(script[start]) {
		start--
	}
	end := min(len(script), loc[1]+radius)
	for end < len(script) && !utf8.RuneStart(script[end]) {
		end++
	}
	return script[start:end], true
}

type hairColorRule struct {
	radius int
}

func (hairColorRule) Name() string { return "character.hair_color" }

func (r hairColorRule) Check(script string, b *bible.Bible) ([]Violation, []AutoCorrection) {
	var (
		violations  []Violation
		corrections []AutoCorrection
	)
	for _, id := range b.CharacterIDs() {
		c := b.Characters[id]
		recorded := strings.TrimSpace(c.PhysicalDescription.HairColor)
		if recorded == "" || !Mentions(script, c.Name) {
			continue
		}
		window, ok := nameWindow(script, c.Name, r.radius)
		if !ok || !hairWordRe.MatchString(window) {
			continue
		}
		for _, value := range HairColors {
			if strings.EqualFold(value, recorded) {
				continue
			}
			found := wordRe(value).FindString(window)
			if found == "" {
				continue
			}
			violations = append(violations, Violation{
				Kind:       KindError,
				Category:   CategoryCharacter,
				Message:    fmt.Sprintf("%s's hair is %s, but script mentions %s", c.Name, recorded, value),
				EntityID:   id,
				Suggestion: "Change to " + recorded,
			})
			corrections = append(corrections, AutoCorrection{
				Field:     "hair_color",
				Original:  found,
				Corrected: matchLeadingCase(found, recorded),
				Reason:    "Maintaining character consistency for " + c.Name,
			})
			break
		}
	}
	return violations, corrections
}

type deceasedRule struct{}

func (deceasedRule) Name() string { return "character.deceased" }

func (deceasedRule) Check(script string, b *bible.Bible) ([]Violation, []AutoCorrection) {
	var violations []Violation
	verbs := strings.Join(ActionVerbs, "|")
	for _, id := range b.CharacterIDs() {
		c := b.Characters[id]
		if c.Status != bible.StatusDeceased || !Mentions(script, c.Name) {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(c.Name) + `\s+(` + verbs + `)\b`)
		if !re.MatchString(script) {
			continue
		}
		violations = append(violations, Violation{
			Kind:     KindError,
			Category: CategoryCharacter,
			Message:  c.Name + " is deceased but appears active in the script",
			EntityID: id,
		})
	}
	return violations, nil
}

// mentionRule finds the locations or objects a script names and hands each
// to the engine's MentionHook. Without a hook it reports nothing.
type mentionRule struct {
	category  Category
	mentioned func(script string, b *bible.Bible) []string
	hook      MentionHook
}

func (r mentionRule) Name() string { return string(r.category) + ".mentions" }

func (r mentionRule) Check(script string, b *bible.Bible) ([]Violation, []AutoCorrection) {
	if r.hook == nil {
		return nil, nil
	}
	var violations []Violation
	for _, id := range r.mentioned(script, b) {
		violations = append(violations, r.hook(r.category, id, script, b)...)
	}
	return violations, nil
}

// timelineRule has no baseline checks.
type timelineRule struct{}

func (timelineRule) Name() string { return "timeline.order" }

func (timelineRule) Check(string, *bible.Bible) ([]Violation, []AutoCorrection) {
	return nil, nil
}

// MentionedCharacters returns the ids of characters whose name or alias
// appears in script, sorted.
func MentionedCharacters(script string, b *bible.Bible) []string {
	var ids []string
	for _, id := range b.CharacterIDs() {
		c := b.Characters[id]
		names := append([]string{c.Name}, c.Aliases...)
		for _, name := range names {
			if Mentions(script, name) {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

// MentionedLocations returns the ids of locations named in script, sorted.
func MentionedLocations(script string, b *bible.Bible) []string {
	var ids []string
	for _, id := range b.LocationIDs() {
		if Mentions(script, b.Locations[id].Name) {
			ids = append(ids, id)
		}
	}
	return ids
}

// MentionedObjects returns the ids of objects named in script, sorted.
func MentionedObjects(script string, b *bible.Bible) []string {
	var ids []string
	for _, id := range b.ObjectIDs() {
		if Mentions(script, b.Objects[id].Name) {
			ids = append(ids, id)
		}
	}
	return ids
}
