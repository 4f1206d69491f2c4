// Package bible models the per-scene continuity document: the characters,
// locations, objects, timeline and style rules a scene has established.
//
// Updates are additive. Merge never drops an entity or a whole category;
// identity fields are filled when blank, list fields are unioned, and only
// state-tracking fields (object owner/location, character status) follow the
// latest value.
package bible

import (
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Status is a character's life state.
type Status string

const (
	StatusAlive    Status = "alive"
	StatusDeceased Status = "deceased"
	StatusUnknown  Status = "unknown"
)

// PhysicalDescription holds the attributes continuity rules compare against.
type PhysicalDescription struct {
	HairColor              string   `json:"hairColor,omitempty" yaml:"hairColor,omitempty"`
	EyeColor               string   `json:"eyeColor,omitempty" yaml:"eyeColor,omitempty"`
	Build                  string   `json:"build,omitempty" yaml:"build,omitempty"`
	Height                 string   `json:"height,omitempty" yaml:"height,omitempty"`
	DistinguishingFeatures []string `json:"distinguishingFeatures,omitempty" yaml:"distinguishingFeatures,omitempty"`
}

// Character is a named person in the scene.
type Character struct {
	EntityID            string              `json:"entityId" yaml:"entityId"`
	Name                string              `json:"name" yaml:"name"`
	Aliases             []string            `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	PhysicalDescription PhysicalDescription `json:"physicalDescription" yaml:"physicalDescription"`
	Status              Status              `json:"status,omitempty" yaml:"status,omitempty"`
}

// Location is a named place.
type Location struct {
	EntityID    string   `json:"entityId" yaml:"entityId"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Features    []string `json:"features,omitempty" yaml:"features,omitempty"`
}

// Object is a tracked prop.
type Object struct {
	EntityID        string `json:"entityId" yaml:"entityId"`
	Name            string `json:"name" yaml:"name"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	CurrentOwner    string `json:"currentOwner,omitempty" yaml:"currentOwner,omitempty"`
	CurrentLocation string `json:"currentLocation,omitempty" yaml:"currentLocation,omitempty"`
}

// TimelineEvent records something that happened in a segment.
type TimelineEvent struct {
	SegmentID   string   `json:"segmentId" yaml:"segmentId"`
	Sequence    int      `json:"sequence" yaml:"sequence"`
	Description string   `json:"description" yaml:"description"`
	Characters  []string `json:"characters,omitempty" yaml:"characters,omitempty"`
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
}

// Rule is a style or mood directive.
type Rule struct {
	ID     string `json:"id" yaml:"id"`
	Rule   string `json:"rule" yaml:"rule"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Bible is the continuity ground truth for one scene.
type Bible struct {
	SceneID    string               `json:"sceneId,omitempty" yaml:"sceneId,omitempty"`
	Characters map[string]Character `json:"characters" yaml:"characters"`
	Locations  map[string]Location  `json:"locations" yaml:"locations"`
	Objects    map[string]Object    `json:"objects" yaml:"objects"`
	Timeline   []TimelineEvent      `json:"timeline" yaml:"timeline"`
	Rules      []Rule               `json:"rules" yaml:"rules"`
	Version    int                  `json:"version" yaml:"version"`
}

// New returns an empty bible for the scene.
func New(sceneID string) *Bible {
	b := &Bible{SceneID: sceneID}
	b.ensureMaps()
	return b
}

func (b *Bible) ensureMaps() {
	if b.Characters == nil {
		b.Characters = map[string]Character{}
	}
	if b.Locations == nil {
		b.Locations = map[string]Location{}
	}
	if b.Objects == nil {
		b.Objects = map[string]Object{}
	}
}

// IsEmpty reports whether the bible holds no facts.
func (b *Bible) IsEmpty() bool {
	if b == nil {
		return true
	}
	return len(b.Characters) == 0 && len(b.Locations) == 0 && len(b.Objects) == 0 &&
		len(b.Timeline) == 0 && len(b.Rules) == 0
}

// Clone returns a deep copy.
func (b *Bible) Clone() *Bible {
	if b == nil {
		return nil
	}
	out := &Bible{SceneID: b.SceneID, Version: b.Version}
	out.ensureMaps()
	for id, c := range b.Characters {
		c.Aliases = slices.Clone(c.Aliases)
		c.PhysicalDescription.DistinguishingFeatures = slices.Clone(c.PhysicalDescription.DistinguishingFeatures)
		out.Characters[id] = c
	}
	for id, l := range b.Locations {
		l.Features = slices.Clone(l.Features)
		out.Locations[id] = l
	}
	for id, o := range b.Objects {
		out.Objects[id] = o
	}
	for _, ev := range b.Timeline {
		ev.Characters = slices.Clone(ev.Characters)
		out.Timeline = append(out.Timeline, ev)
	}
	out.Rules = slices.Clone(b.Rules)
	return out
}

// CharacterIDs returns character ids in sorted order so callers iterate deterministically.
func (b *Bible) CharacterIDs() []string {
	if b == nil {
		return nil
	}
	ids := make([]string, 0, len(b.Characters))
	for id := range b.Characters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LocationIDs returns location ids in sorted order.
func (b *Bible) LocationIDs() []string {
	if b == nil {
		return nil
	}
	ids := make([]string, 0, len(b.Locations))
	for id := range b.Locations {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ObjectIDs returns object ids in sorted order.
func (b *Bible) ObjectIDs() []string {
	if b == nil {
		return nil
	}
	ids := make([]string, 0, len(b.Objects))
	for id := range b.Objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HasCharacterNamed reports whether a character name or alias matches, ignoring case.
func (b *Bible) HasCharacterNamed(name string) bool {
	if b == nil {
		return false
	}
	for _, c := range b.Characters {
		if strings.EqualFold(c.Name, name) {
			return true
		}
		for _, alias := range c.Aliases {
			if strings.EqualFold(alias, name) {
				return true
			}
		}
	}
	return false
}

// HasLocationNamed reports whether a location name matches, ignoring case.
func (b *Bible) HasLocationNamed(name string) bool {
	if b == nil {
		return false
	}
	for _, l := range b.Locations {
		if strings.EqualFold(l.Name, name) {
			return true
		}
	}
	return false
}

// fingerprintView excludes bookkeeping fields so identical facts hash identically.
type fingerprintView struct {
	Characters map[string]Character `json:"characters"`
	Locations  map[string]Location  `json:"locations"`
	Objects    map[string]Object    `json:"objects"`
	Timeline   []TimelineEvent      `json:"timeline"`
	Rules      []Rule               `json:"rules"`
}

// Fingerprint returns a hex BLAKE2b-256 digest of the bible's facts. A nil
// bible hashes as an empty one.
func (b *Bible) Fingerprint() string {
	view := fingerprintView{
		Characters: map[string]Character{},
		Locations:  map[string]Location{},
		Objects:    map[string]Object{},
		Timeline:   []TimelineEvent{},
		Rules:      []Rule{},
	}
	if b != nil {
		if len(b.Characters) > 0 {
			view.Characters = b.Characters
		}
		if len(b.Locations) > 0 {
			view.Locations = b.Locations
		}
		if len(b.Objects) > 0 {
			view.Objects = b.Objects
		}
		if len(b.Timeline) > 0 {
			view.Timeline = b.Timeline
		}
		if len(b.Rules) > 0 {
			view.Rules = b.Rules
		}
	}
	// encoding/json sorts map keys, which keeps the encoding canonical.
	data, err := json.Marshal(view)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
