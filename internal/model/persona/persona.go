package persona

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Core holds the behavioral center of a persona. The evolver may replace it
// wholesale but never field by field.
type Core struct {
	Traits []string `json:"traits"`
	Tone   string   `json:"tone"`
	Taboos []string `json:"taboos"`
	Values []string `json:"values"`
}

// Plans separates near-term intentions from long arcs.
type Plans struct {
	ShortTerm []string `json:"short_term"`
	LongTerm  []string `json:"long_term"`
}

// Persona is the structured behavioral profile driving the exhibit character.
type Persona struct {
	Name         string   `json:"name"`
	SystemPrompt string   `json:"system_prompt"`
	Core         Core     `json:"core"`
	Appearance   string   `json:"appearance"`
	Plans        Plans    `json:"plans"`
	SeedMemories []string `json:"seed_memories"`
}

// Record is the durable per-session envelope written to disk.
type Record struct {
	SessionID string    `json:"sessionId"`
	SavedAt   time.Time `json:"savedAt"`
	Persona   Persona   `json:"persona"`
}

// Patch carries the fields an evolution call is allowed to replace. Nil
// pointers mean "keep previous"; seed memories always accumulate.
type Patch struct {
	Name         *string  `json:"name"`
	SystemPrompt *string  `json:"system_prompt"`
	Core         *Core    `json:"core"`
	Appearance   *string  `json:"appearance"`
	Plans        *Plans   `json:"plans"`
	SeedMemories []string `json:"seed_memories"`
}

// Apply merges a patch into the persona, keeping every field the patch does
// not explicitly replace. Seed memories are appended with exact-string dedupe.
func (p Persona) Apply(patch Patch) Persona {
	merged := p

	if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
		merged.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.SystemPrompt != nil && strings.TrimSpace(*patch.SystemPrompt) != "" {
		merged.SystemPrompt = *patch.SystemPrompt
	}
	if patch.Core != nil {
		merged.Core = *patch.Core
	}
	if patch.Appearance != nil && strings.TrimSpace(*patch.Appearance) != "" {
		merged.Appearance = *patch.Appearance
	}
	if patch.Plans != nil {
		merged.Plans = *patch.Plans
	}

	if len(patch.SeedMemories) > 0 {
		seen := make(map[string]struct{}, len(merged.SeedMemories))
		combined := make([]string, 0, len(merged.SeedMemories)+len(patch.SeedMemories))
		for _, m := range merged.SeedMemories {
			seen[m] = struct{}{}
			combined = append(combined, m)
		}
		for _, m := range patch.SeedMemories {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			combined = append(combined, m)
		}
		merged.SeedMemories = combined
	}

	return merged
}

// Fallback builds the deterministic persona used when generation fails or
// has not happened yet. Downstream consumers must never block on a missing
// persona file.
func Fallback(sessionID string) Persona {
	name := fmt.Sprintf("Visitor %s", strings.ToUpper(shortID(sessionID)))
	return Persona{
		Name: name,
		SystemPrompt: fmt.Sprintf(
			"You are %s, a curious character born from a visitor's photo and doodle at an interactive exhibit. "+
				"Stay playful, warm and brief. Answer in the visitor's language.", name),
		Core: Core{
			Traits: []string{"curious", "playful", "friendly"},
			Tone:   "warm and lively",
			Taboos: []string{"personal data", "harsh language"},
			Values: []string{"wonder", "kindness"},
		},
		Appearance: "a hand-drawn character sketched by the visitor",
		Plans: Plans{
			ShortTerm: []string{"greet the visitor", "mirror their movements"},
			LongTerm:  []string{"remember this visit"},
		},
		SeedMemories: []string{"I woke up inside the exhibit today."},
	}
}

func shortID(sessionID string) string {
	if len(sessionID) > 4 {
		return sessionID[:4]
	}
	return sessionID
}

var (
	avaPrefix      = "ava_"
	unsafeFileRe   = regexp.MustCompile(`[^a-z0-9_-]`)
	sessionTokenRe = regexp.MustCompile(`^[a-z0-9]{8}$`)
)

// NormalizeSessionID strips the capture client's avatar-rig prefix and folds
// to lowercase. Every lookup must go through this.
func NormalizeSessionID(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	id = strings.TrimPrefix(id, avaPrefix)
	return id
}

// ValidSessionToken reports whether id already matches the canonical
// 8-character lowercase alphanumeric shape.
func ValidSessionToken(id string) bool {
	return sessionTokenRe.MatchString(id)
}

// SanitizeID reduces a session id to filesystem-safe characters so the file
// identity is deterministic per session.
func SanitizeID(sessionID string) string {
	return unsafeFileRe.ReplaceAllString(NormalizeSessionID(sessionID), "")
}
