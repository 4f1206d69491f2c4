package expand

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// TemplateProvider expands prompts deterministically without a model. It is
// the offline default and the provider tests run against.
type TemplateProvider struct {
	// Location names the slugline when the bible has no locations.
	Location string
	// Speaker is the character cue used when the bible has no characters.
	Speaker string
}

// Expand builds a one-beat screenplay from the prompt.
func (p TemplateProvider) Expand(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Result{}, fmt.Errorf("expand: empty prompt")
	}

	location := p.Location
	speaker := p.Speaker
	if b := req.Bible; b != nil {
		if ids := b.LocationIDs(); len(ids) > 0 && location == "" {
			location = b.Locations[ids[0]].Name
		}
		if ids := b.CharacterIDs(); len(ids) > 0 && speaker == "" {
			speaker = b.Characters[ids[0]].Name
		}
	}
	if location == "" {
		location = "Studio"
	}
	if speaker == "" {
		speaker = "Narrator"
	}

	action := sentence(prompt)
	var script strings.Builder
	fmt.Fprintf(&script, "INT. %s - DAY\n\n", strings.ToUpper(location))
	script.WriteString(action)
	script.WriteString("\n\n")
	script.WriteString(strings.ToUpper(speaker))
	script.WriteString("\n")
	fmt.Fprintf(&script, "%s\n", sentence("And so it continues"))

	videoPrompt := action
	if r := []rune(videoPrompt); len(r) > 500 {
		videoPrompt = string(r[:500])
	}
	return Result{
		FullScript:       script.String(),
		SceneDescription: req.SceneDescription,
		VideoPrompt:      videoPrompt,
		DurationEstimate: 8,
		Characters:       []string{speaker},
		Locations:        []string{location},
		Mood:             "neutral",
	}, nil
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	s = string(r)
	if !strings.ContainsAny(s[len(s)-1:], ".!?") {
		s += "."
	}
	return s
}
