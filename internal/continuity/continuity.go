// Package continuity checks expanded scripts against a scene bible.
//
// Validation is rule based. Each Rule inspects the script and the bible and
// reports violations and, where a literal substitution can fix the text,
// auto-corrections. Error violations make a result invalid; warnings never
// do. Corrections are only proposals: callers apply them explicitly with
// ApplyCorrections so every rewrite is visible in the pipeline result.
//
// The engine also runs Extractors that discover new entities in a script.
// Their output is a partial bible meant for bible.Merge.
package continuity

import (
	"storyforge/internal/bible"
)

// Kind is the severity of a violation.
type Kind string

const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
)

// Category names the bible section a violation concerns.
type Category string

const (
	CategoryCharacter Category = "character"
	CategoryLocation  Category = "location"
	CategoryTimeline  Category = "timeline"
	CategoryObject    Category = "object"
)

// Violation is a mismatch between a script and the bible.
type Violation struct {
	Kind       Kind     `json:"kind"`
	Category   Category `json:"category"`
	Message    string   `json:"message"`
	EntityID   string   `json:"entityId,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// AutoCorrection is a literal substitution that resolves a violation.
type AutoCorrection struct {
	Field     string `json:"field"`
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Reason    string `json:"reason"`
}

// Result is the outcome of Validate.
type Result struct {
	IsValid         bool             `json:"isValid"`
	Violations      []Violation      `json:"violations"`
	AutoCorrections []AutoCorrection `json:"autoCorrections"`
}

// Errors returns the error-kind violations.
func (r Result) Errors() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Kind == KindError {
			out = append(out, v)
		}
	}
	return out
}

// Rule is one continuity check.
type Rule interface {
	Name() string
	Check(script string, b *bible.Bible) ([]Violation, []AutoCorrection)
}

// RuleFunc adapts a function to Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(script string, b *bible.Bible) ([]Violation, []AutoCorrection)
}

func (r RuleFunc) Name() string { return r.RuleName }

func (r RuleFunc) Check(script string, b *bible.Bible) ([]Violation, []AutoCorrection) {
	return r.Fn(script, b)
}

// Extractor discovers entities a script introduces. known may be nil.
type Extractor interface {
	Extract(script string, known *bible.Bible) *bible.Bible
}

// DefaultRadius is how many characters either side of a name count as its context.
const DefaultRadius = 100

// Engine runs rules and extractors. The zero value is not usable; call New.
type Engine struct {
	radius     int
	rules      []Rule
	custom     []Rule
	extractors []Extractor
	mentions   MentionHook
}

// MentionHook inspects one location or object the script names. The built-in
// location and object rules call it once per mentioned entity.
type MentionHook func(category Category, entityID, script string, b *bible.Bible) []Violation

// Option configures an Engine.
type Option func(*Engine)

// WithRadius overrides the context window around a character name.
func WithRadius(radius int) Option {
	return func(e *Engine) {
		if radius > 0 {
			e.radius = radius
		}
	}
}

// WithRules appends rules after the built-in ones.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.custom = append(e.custom, rules...)
	}
}

// WithMentionHook sets the per-entity check for mentioned locations and objects.
func WithMentionHook(hook MentionHook) Option {
	return func(e *Engine) {
		e.mentions = hook
	}
}

// WithExtractors replaces the built-in extractors.
func WithExtractors(extractors ...Extractor) Option {
	return func(e *Engine) {
		e.extractors = extractors
	}
}

// New builds an engine with the built-in character, location, object and
// timeline rules and the screenplay extractors.
func New(opts ...Option) *Engine {
	e := &Engine{radius: DefaultRadius}
	e.extractors = []Extractor{SluglineExtractor{}, SpeakerExtractor{}}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = []Rule{
		hairColorRule{radius: e.radius},
		deceasedRule{},
		mentionRule{category: CategoryLocation, mentioned: MentionedLocations, hook: e.mentions},
		mentionRule{category: CategoryObject, mentioned: MentionedObjects, hook: e.mentions},
		timelineRule{},
	}
	e.rules = append(e.rules, e.custom...)
	return e
}

// Rules returns the rule names in evaluation order.
func (e *Engine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Validate checks script against b. A nil bible has nothing to contradict,
// so the result is valid.
func (e *Engine) Validate(script string, b *bible.Bible) Result {
	result := Result{IsValid: true, Violations: []Violation{}, AutoCorrections: []AutoCorrection{}}
	if b == nil {
		return result
	}
	for _, rule := range e.rules {
		violations, corrections := rule.Check(script, b)
		result.Violations = append(result.Violations, violations...)
		result.AutoCorrections = append(result.AutoCorrections, corrections...)
	}
	result.IsValid = len(result.Errors()) == 0
	return result
}

// ApplyCorrections substitutes each correction's original text in order.
// Later corrections see the output of earlier ones.
func (e *Engine) ApplyCorrections(script string, corrections []AutoCorrection) string {
	return ApplyCorrections(script, corrections)
}

// ApplyCorrections substitutes each correction's original text in order.
// Only whole-word occurrences are replaced.
func ApplyCorrections(script string, corrections []AutoCorrection) string {
	out := script
	for _, c := range corrections {
		if c.Original == "" {
			continue
		}
		out = exactWordRe(c.Original).ReplaceAllLiteralString(out, c.Corrected)
	}
	return out
}

// ExtractBibleUpdates returns the entities script introduces that known does
// not already hold, or nil when there are none.
func (e *Engine) ExtractBibleUpdates(script string, known *bible.Bible) *bible.Bible {
	updates := bible.New("")
	for _, ex := range e.extractors {
		updates.Merge(ex.Extract(script, known))
	}
	if updates.IsEmpty() {
		return nil
	}
	return updates
}
