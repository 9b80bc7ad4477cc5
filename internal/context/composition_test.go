package context

import "testing"

func TestComposeDropsEmptyPartsAndOrdersCanonically(t *testing.T) {
	got := Compose(RollUps{
		SystemPrompt:     "be helpful",
		RulesContent:     "no secrets",
		TaskContext:      "fix bug #2",
		WorkingDirectory: "/tmp/p",
	})
	want := "be helpful\n\n# Project Rules\n\nno secrets\n\n<task-context>fix bug #2</task-context>\n\nCurrent working directory: /tmp/p"
	if got != want {
		t.Fatalf("Compose() = %q, want %q", got, want)
	}
}

func TestComposeGroupedSplitsStableAndVolatile(t *testing.T) {
	grouped := ComposeGrouped(RollUps{
		SystemPrompt:        "be helpful",
		WorkingDirectory:    "/tmp/p",
		DynamicRulesContext: "temp rule",
		SkillContext:        "skill notes",
	})
	if grouped.Stable != "be helpful\n\nCurrent working directory: /tmp/p" {
		t.Fatalf("unexpected stable part: %q", grouped.Stable)
	}
	if grouped.Volatile != "# Active Rules\n\ntemp rule\n\nskill notes" {
		t.Fatalf("unexpected volatile part: %q", grouped.Volatile)
	}
}
