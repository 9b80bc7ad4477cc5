package context

import "strings"

// RollUps are the seven optional context strings composed into the
// provider-facing system prompt, plus the base system prompt itself.
type RollUps struct {
	SystemPrompt        string
	RulesContent        string
	MemoryContent       string
	DynamicRulesContext string
	SkillContext        string
	SubagentResults     string
	TaskContext         string
	WorkingDirectory     string
}

// Compose assembles the full system prompt in the canonical order: system
// prompt, rules, memory, dynamic rules, skills, subagent results, task
// context, then the working directory line. Empty strings are dropped
// entirely rather than included as blank entries.
func Compose(r RollUps) string {
	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}

	add(r.SystemPrompt)
	if r.RulesContent != "" {
		add("# Project Rules\n\n" + r.RulesContent)
	}
	add(r.MemoryContent)
	if r.DynamicRulesContext != "" {
		add("# Active Rules\n\n" + r.DynamicRulesContext)
	}
	add(r.SkillContext)
	add(r.SubagentResults)
	if r.TaskContext != "" {
		add("<task-context>" + r.TaskContext + "</task-context>")
	}
	if r.WorkingDirectory != "" {
		add("Current working directory: " + r.WorkingDirectory)
	}

	return strings.Join(parts, "\n\n")
}

// GroupedPrompt splits the roll-ups into a stable half (rarely changes
// across turns, suitable for a long-TTL prompt cache) and a volatile half,
// for providers implementing multi-TTL prompt caches.
type GroupedPrompt struct {
	Stable   string
	Volatile string
}

// ComposeGrouped produces the stable/volatile split: stable covers system
// prompt, rules, memory, and working directory; volatile covers dynamic
// rules, skills, subagent results, and task context.
func ComposeGrouped(r RollUps) GroupedPrompt {
	stable := Compose(RollUps{
		SystemPrompt:     r.SystemPrompt,
		RulesContent:     r.RulesContent,
		MemoryContent:    r.MemoryContent,
		WorkingDirectory: r.WorkingDirectory,
	})
	volatile := Compose(RollUps{
		DynamicRulesContext: r.DynamicRulesContext,
		SkillContext:        r.SkillContext,
		SubagentResults:     r.SubagentResults,
		TaskContext:         r.TaskContext,
	})
	return GroupedPrompt{Stable: stable, Volatile: volatile}
}
