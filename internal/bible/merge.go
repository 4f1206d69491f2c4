package bible

import (
	"slices"
	"strings"
)

// Merge folds update into b and returns the number of facts added or changed.
// A nil or empty update is a no-op.
func (b *Bible) Merge(update *Bible) int {
	if update == nil {
		return 0
	}
	b.ensureMaps()
	changes := 0

	for id, incoming := range update.Characters {
		existing, ok := b.Characters[id]
		if !ok {
			if incoming.EntityID == "" {
				incoming.EntityID = id
			}
			b.Characters[id] = incoming
			changes++
			continue
		}
		if mergeCharacter(&existing, incoming) {
			b.Characters[id] = existing
			changes++
		}
	}

	for id, incoming := range update.Locations {
		existing, ok := b.Locations[id]
		if !ok {
			if incoming.EntityID == "" {
				incoming.EntityID = id
			}
			b.Locations[id] = incoming
			changes++
			continue
		}
		changed := fillBlank(&existing.Name, incoming.Name)
		changed = fillBlank(&existing.Description, incoming.Description) || changed
		var added bool
		existing.Features, added = union(existing.Features, incoming.Features)
		if changed || added {
			b.Locations[id] = existing
			changes++
		}
	}

	for id, incoming := range update.Objects {
		existing, ok := b.Objects[id]
		if !ok {
			if incoming.EntityID == "" {
				incoming.EntityID = id
			}
			b.Objects[id] = incoming
			changes++
			continue
		}
		changed := fillBlank(&existing.Name, incoming.Name)
		changed = fillBlank(&existing.Description, incoming.Description) || changed
		changed = takeLatest(&existing.CurrentOwner, incoming.CurrentOwner) || changed
		changed = takeLatest(&existing.CurrentLocation, incoming.CurrentLocation) || changed
		if changed {
			b.Objects[id] = existing
			changes++
		}
	}

	for _, ev := range update.Timeline {
		if b.hasEvent(ev) {
			continue
		}
		if ev.Sequence <= 0 {
			ev.Sequence = len(b.Timeline) + 1
		}
		b.Timeline = append(b.Timeline, ev)
		changes++
	}

	for _, rule := range update.Rules {
		if rule.ID == "" || slices.ContainsFunc(b.Rules, func(r Rule) bool { return r.ID == rule.ID }) {
			continue
		}
		b.Rules = append(b.Rules, rule)
		changes++
	}

	return changes
}

func (b *Bible) hasEvent(ev TimelineEvent) bool {
	for _, existing := range b.Timeline {
		if existing.SegmentID == ev.SegmentID && strings.EqualFold(existing.Description, ev.Description) {
			return true
		}
	}
	return false
}

func mergeCharacter(existing *Character, incoming Character) bool {
	changed := fillBlank(&existing.Name, incoming.Name)
	var added bool
	existing.Aliases, added = union(existing.Aliases, incoming.Aliases)
	changed = added || changed

	pd := &existing.PhysicalDescription
	in := incoming.PhysicalDescription
	changed = fillBlank(&pd.HairColor, in.HairColor) || changed
	changed = fillBlank(&pd.EyeColor, in.EyeColor) || changed
	changed = fillBlank(&pd.Build, in.Build) || changed
	changed = fillBlank(&pd.Height, in.Height) || changed
	pd.DistinguishingFeatures, added = union(pd.DistinguishingFeatures, in.DistinguishingFeatures)
	changed = added || changed

	// Death is final; otherwise status follows the latest known value.
	if incoming.Status != "" && incoming.Status != StatusUnknown &&
		existing.Status != StatusDeceased && existing.Status != incoming.Status {
		existing.Status = incoming.Status
		changed = true
	}
	return changed
}

func fillBlank(dst *string, value string) bool {
	if strings.TrimSpace(*dst) != "" || strings.TrimSpace(value) == "" {
		return false
	}
	*dst = value
	return true
}

func takeLatest(dst *string, value string) bool {
	if strings.TrimSpace(value) == "" || *dst == value {
		return false
	}
	*dst = value
	return true
}

func union(existing, incoming []string) ([]string, bool) {
	added := false
	for _, value := range incoming {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if slices.ContainsFunc(existing, func(v string) bool { return strings.EqualFold(v, value) }) {
			continue
		}
		existing = append(existing, value)
		added = true
	}
	return existing, added
}
