package continuity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyforge/internal/bible"
)

var (
	sluglineRe      = regexp.MustCompile(`(?m)^[ \t]*(?:INT\./EXT\.|EXT\./INT\.|I/E\.?|INT\.|EXT\.)[ \t]+([^\n]+?)[ \t]*$`)
	timeOfDayRe     = regexp.MustCompile(`[ \t]+[-–][ \t]+.*$`)
	parentheticalRe = regexp.MustCompile(`[ \t]*\([^)]*\)[ \t]*$`)
	nonSlugRe       = regexp.MustCompile(`[^a-z0-9]+`)
)

var cueStopList = map[string]struct{}{
	"THE END":   {},
	"CONTINUED": {},
	"FADE IN":   {},
	"FADE OUT":  {},
	"CUT TO":    {},
	"BLACK":     {},
	"TITLE":     {},
	"SUPER":     {},
	"MONTAGE":   {},
}

// EntityID derives a stable id from a display name.
func EntityID(name string) string {
	return strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func displayName(raw string) string {
	return cases.Title(language.English).String(strings.ToLower(strings.TrimSpace(raw)))
}

// SluglineExtractor turns INT./EXT. scene headings into locations.
type SluglineExtractor struct{}

// Extract implements Extractor.
func (SluglineExtractor) Extract(script string, known *bible.Bible) *bible.Bible {
	out := bible.New("")
	for _, m := range sluglineRe.FindAllStringSubmatch(script, -1) {
		place := strings.TrimSpace(timeOfDayRe.ReplaceAllString(m[1], ""))
		if place == "" {
			continue
		}
		name := displayName(place)
		id := EntityID(name)
		if id == "" || known.HasLocationNamed(name) {
			continue
		}
		if known != nil {
			if _, ok := known.Locations[id]; ok {
				continue
			}
		}
		out.Locations[id] = bible.Location{EntityID: id, Name: name}
	}
	return out
}

// SpeakerExtractor turns upper-case dialogue cues into characters.
type SpeakerExtractor struct{}

// Extract implements Extractor.
func (SpeakerExtractor) Extract(script string, known *bible.Bible) *bible.Bible {
	out := bible.New("")
	lines := strings.Split(script, "\n")
	for i, line := range lines {
		cue := strings.TrimSpace(parentheticalRe.ReplaceAllString(line, ""))
		if !isSpeakerCue(cue) {
			continue
		}
		if i+1 >= len(lines) || strings.TrimSpace(lines[i+1]) == "" {
			continue
		}
		name := displayName(cue)
		id := EntityID(name)
		if id == "" || known.HasCharacterNamed(name) {
			continue
		}
		if known != nil {
			if _, ok := known.Characters[id]; ok {
				continue
			}
		}
		out.Characters[id] = bible.Character{EntityID: id, Name: name, Status: bible.StatusAlive}
	}
	return out
}

func isSpeakerCue(s string) bool {
	if len(s) < 2 || len(s) > 30 {
		return false
	}
	if strings.HasPrefix(s, "INT.") || strings.HasPrefix(s, "EXT.") || strings.HasPrefix(s, "I/E") {
		return false
	}
	if _, stop := cueStopList[s]; stop {
		return false
	}
	letters := 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		case r == ' ' || r == '\'' || r == '.' || r == '-':
		default:
			return false
		}
	}
	return letters >= 2
}
