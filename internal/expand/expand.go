// Package expand turns a short segment prompt into a full script.
//
// Providers differ only in transport. They share the prompt built by
// BuildPrompts and the JSON contract enforced by ParseResult, so a model
// that drifts from the schema fails the same way on every backend.
package expand

import (
	"context"
	"fmt"
	"strings"

	"storyforge/internal/bible"
)

// PreviousSegment is an earlier segment of the same scene, given as context.
type PreviousSegment struct {
	OrderIndex int
	Prompt     string
	Script     string
	VideoURL   string
}

// Request is the input to a provider.
type Request struct {
	SceneID          string
	SegmentID        string
	Prompt           string
	SceneTitle       string
	SceneDescription string
	Bible            *bible.Bible
	Previous         []PreviousSegment
}

// Result is the provider's output.
type Result struct {
	FullScript       string   `json:"fullScript"`
	SceneDescription string   `json:"sceneDescription,omitempty"`
	VideoPrompt      string   `json:"videoPrompt"`
	VisualNotes      string   `json:"visualNotes,omitempty"`
	DurationEstimate float64  `json:"durationEstimate"`
	Characters       []string `json:"characters,omitempty"`
	Locations        []string `json:"locations,omitempty"`
	Mood             string   `json:"mood,omitempty"`
}

// Provider expands prompts into scripts.
type Provider interface {
	Expand(ctx context.Context, req Request) (Result, error)
}

// SystemPrompt instructs the model on output format.
const SystemPrompt = `You are a screenwriter and scene director. Expand a brief story prompt into
a short, filmable screenplay segment that a video model can render.

Write in present tense and active voice. Describe lighting, colour and camera
framing. Keep dialogue short. Aim for 4 to 8 seconds of footage.

Format fullScript as a screenplay: an INT. or EXT. scene heading, action lines,
and upper-case character cues above dialogue.

Respond with JSON only, matching:
{"fullScript": string, "sceneDescription": string, "videoPrompt": string,
 "visualNotes": string, "durationEstimate": number, "characters": [string],
 "locations": [string], "mood": string}

videoPrompt is a single paragraph under 500 characters describing what the
camera sees.`

// BuildPrompts returns the system and user prompts for req.
func BuildPrompts(req Request) (string, string) {
	system := SystemPrompt
	if b := req.Bible; b != nil && len(b.Characters) > 0 {
		var sb strings.Builder
		sb.WriteString(system)
		sb.WriteString("\n\nKeep these established characters consistent:\n")
		for _, id := range b.CharacterIDs() {
			c := b.Characters[id]
			sb.WriteString("- ")
			sb.WriteString(c.Name)
			if desc := describe(c); desc != "" {
				sb.WriteString(": ")
				sb.WriteString(desc)
			}
			sb.WriteString("\n")
		}
		if len(b.Rules) > 0 {
			sb.WriteString("\nStyle rules:\n")
			for _, r := range b.Rules {
				sb.WriteString("- ")
				sb.WriteString(r.Rule)
				sb.WriteString("\n")
			}
		}
		system = strings.TrimRight(sb.String(), "\n")
	}

	var user strings.Builder
	if req.SceneTitle != "" {
		fmt.Fprintf(&user, "Scene: %s\n", req.SceneTitle)
	}
	if req.SceneDescription != "" {
		fmt.Fprintf(&user, "Scene context: %s\n", req.SceneDescription)
	}
	for _, prev := range req.Previous {
		text := strings.TrimSpace(prev.Script)
		if text == "" {
			text = strings.TrimSpace(prev.Prompt)
		}
		if text == "" {
			continue
		}
		fmt.Fprintf(&user, "\nSegment %d so far:\n%s\n", prev.OrderIndex+1, text)
	}
	if b := req.Bible; b != nil && len(b.Timeline) > 0 {
		fmt.Fprintf(&user, "\nThe previous segment ended with: %s\n", b.Timeline[len(b.Timeline)-1].Description)
	}
	fmt.Fprintf(&user, "\nExpand this prompt into the next segment:\n%s", strings.TrimSpace(req.Prompt))
	return system, user.String()
}

func describe(c bible.Character) string {
	p := c.PhysicalDescription
	parts := make([]string, 0, 4)
	if p.HairColor != "" {
		parts = append(parts, p.HairColor+" hair")
	}
	if p.EyeColor != "" {
		parts = append(parts, p.EyeColor+" eyes")
	}
	if p.Build != "" {
		parts = append(parts, p.Build)
	}
	if c.Status == bible.StatusDeceased {
		parts = append(parts, "deceased")
	}
	return strings.Join(parts, ", ")
}

// LastSegments trims previous to its final n entries.
func LastSegments(previous []PreviousSegment, n int) []PreviousSegment {
	if n <= 0 || len(previous) <= n {
		return previous
	}
	return previous[len(previous)-n:]
}
