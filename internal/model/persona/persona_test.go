package persona

import "testing"

func strPtr(v string) *string { return &v }

func TestApplyKeepsUnpatchedFields(t *testing.T) {
	base := Fallback("abc123de")
	patch := Patch{Appearance: strPtr("a blue dragon with crayon wings")}

	merged := base.Apply(patch)

	if merged.Appearance != "a blue dragon with crayon wings" {
		t.Fatalf("appearance not replaced: %s", merged.Appearance)
	}
	if merged.Name != base.Name {
		t.Fatalf("name changed without patch: %s", merged.Name)
	}
	if merged.SystemPrompt != base.SystemPrompt {
		t.Fatal("system prompt changed without patch")
	}
	if len(merged.Core.Traits) != len(base.Core.Traits) {
		t.Fatal("core changed without patch")
	}
}

func TestApplyReplacesCoreWholesale(t *testing.T) {
	base := Fallback("abc123de")
	patch := Patch{Core: &Core{Traits: []string{"bold"}, Tone: "gruff"}}

	merged := base.Apply(patch)

	if merged.Core.Tone != "gruff" {
		t.Fatalf("expected tone gruff, got %s", merged.Core.Tone)
	}
	if len(merged.Core.Taboos) != 0 {
		t.Fatal("core replacement must be wholesale, taboos leaked through")
	}
}

func TestApplyAccumulatesSeedMemories(t *testing.T) {
	base := Fallback("abc123de")
	initial := len(base.SeedMemories)

	merged := base.Apply(Patch{SeedMemories: []string{"the visitor waved", "the visitor waved", ""}})

	if len(merged.SeedMemories) != initial+1 {
		t.Fatalf("expected %d memories, got %d", initial+1, len(merged.SeedMemories))
	}

	again := merged.Apply(Patch{SeedMemories: []string{"the visitor waved"}})
	if len(again.SeedMemories) != initial+1 {
		t.Fatal("duplicate memory was appended")
	}
}

func TestApplyIgnoresEmptyReplacements(t *testing.T) {
	base := Fallback("abc123de")
	merged := base.Apply(Patch{Name: strPtr("  "), SystemPrompt: strPtr("")})

	if merged.Name != base.Name || merged.SystemPrompt != base.SystemPrompt {
		t.Fatal("blank patch values must keep previous fields")
	}
}

func TestNormalizeSessionIDStripsAvatarPrefix(t *testing.T) {
	if got := NormalizeSessionID("ava_abc123de"); got != "abc123de" {
		t.Fatalf("expected abc123de, got %s", got)
	}
	if got := NormalizeSessionID("  AVA123XY "); got != "ava123xy" {
		t.Fatalf("expected folded id, got %s", got)
	}
}

func TestValidSessionToken(t *testing.T) {
	valid := []string{"abc123de", "00000000", "zzzzzzzz"}
	for _, id := range valid {
		if !ValidSessionToken(id) {
			t.Fatalf("expected %q to be valid", id)
		}
	}

	invalid := []string{"", "abc123d", "abc123def", "ABC123DE", "abc-23de"}
	for _, id := range invalid {
		if ValidSessionToken(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
}

func TestSanitizeID(t *testing.T) {
	if got := SanitizeID("ava_ab/c12..3de"); got != "abc123de" {
		t.Fatalf("expected abc123de, got %s", got)
	}
}
