package expand

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storyforge/internal/bible"
	"storyforge/internal/services"
)

func TestBuildPromptsIncludesBibleAndHistory(t *testing.T) {
	b := bible.New("scene-1")
	b.Characters["alice"] = bible.Character{
		EntityID:            "alice",
		Name:                "Alice",
		PhysicalDescription: bible.PhysicalDescription{HairColor: "blonde"},
	}
	b.Rules = []bible.Rule{{ID: "r1", Rule: "Keep the palette cold"}}
	b.Timeline = []bible.TimelineEvent{{SegmentID: "seg-0", Sequence: 0, Description: "Alice opens the door"}}

	system, user := BuildPrompts(Request{
		Prompt:     "alice finds the letter",
		SceneTitle: "The Letter",
		Bible:      b,
		Previous: []PreviousSegment{
			{OrderIndex: 0, Prompt: "alice arrives", Script: "INT. HALL - DAY\nAlice walks in."},
			{OrderIndex: 1, Prompt: "alice waits"},
		},
	})

	for _, want := range []string{"Alice: blonde hair", "Keep the palette cold"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
	for _, want := range []string{"Scene: The Letter", "Segment 1 so far:", "Alice walks in.", "Segment 2 so far:\nalice waits", "Alice opens the door", "alice finds the letter"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestBuildPromptsWithoutBible(t *testing.T) {
	system, user := BuildPrompts(Request{Prompt: "  a cat sleeps  "})
	if system != SystemPrompt {
		t.Fatalf("expected base system prompt")
	}
	if !strings.HasSuffix(user, "a cat sleeps") {
		t.Fatalf("unexpected user prompt %q", user)
	}
}

func TestLastSegments(t *testing.T) {
	prev := []PreviousSegment{{OrderIndex: 0}, {OrderIndex: 1}, {OrderIndex: 2}, {OrderIndex: 3}}
	got := LastSegments(prev, 3)
	if len(got) != 3 || got[0].OrderIndex != 1 {
		t.Fatalf("unexpected tail %+v", got)
	}
	if len(LastSegments(prev[:2], 3)) != 2 {
		t.Fatalf("short slices are returned as is")
	}
}

func TestParseResult(t *testing.T) {
	raw := `{"fullScript":" INT. ROOM - DAY ","videoPrompt":"a room","durationEstimate":6.5,"characters":["Alice"]}`
	got, err := ParseResult(raw)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if got.FullScript != "INT. ROOM - DAY" || got.DurationEstimate != 6.5 || len(got.Characters) != 1 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestParseResultRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing script":  `{"videoPrompt":"x","durationEstimate":4}`,
		"wrong type":      `{"fullScript":"x","videoPrompt":"x","durationEstimate":"long"}`,
		"empty prompt":    `{"fullScript":"x","videoPrompt":"","durationEstimate":4}`,
		"not json at all": `sorry, I cannot help`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResult(raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrTransient) {
				t.Fatalf("expected transient marker, got %v", err)
			}
		})
	}
}

func TestTemplateProviderProducesScreenplay(t *testing.T) {
	b := bible.New("scene-1")
	b.Locations["kitchen"] = bible.Location{EntityID: "kitchen", Name: "Kitchen"}
	res, err := TemplateProvider{}.Expand(context.Background(), Request{Prompt: "the kettle boils", Bible: b})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !strings.HasPrefix(res.FullScript, "INT. KITCHEN - DAY") {
		t.Fatalf("unexpected slugline: %q", res.FullScript)
	}
	if !strings.Contains(res.FullScript, "\nNARRATOR\n") {
		t.Fatalf("missing speaker cue: %q", res.FullScript)
	}
	if res.VideoPrompt != "The kettle boils." || res.DurationEstimate != 8 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTemplateProviderRejectsEmptyPrompt(t *testing.T) {
	if _, err := (TemplateProvider{}).Expand(context.Background(), Request{Prompt: "  "}); err == nil {
		t.Fatal("expected error")
	}
}
