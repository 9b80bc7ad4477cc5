// Package guardrails implements the path-protection engine (spec §4.F):
// directory-prefix protected paths, traversal and hidden-path detection, and
// bash write-target extraction for commands that never pass a structured
// file_path argument.
package guardrails

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/driftcode/agentcore/pkg/models"
)

// Evaluator evaluates Rules against a tool invocation's arguments.
type Evaluator struct {
	rules []models.Rule
}

// NewEvaluator builds an Evaluator from the given rule set.
func NewEvaluator(rules []models.Rule) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate runs every rule against toolArgs (a tool call's JSON arguments)
// and returns the first triggered rule, if any, per rule declaration order.
func (e *Evaluator) Evaluate(toolArgs json.RawMessage) (*models.RuleTrigger, error) {
	var args map[string]any
	if len(toolArgs) > 0 {
		if err := json.Unmarshal(toolArgs, &args); err != nil {
			return nil, fmt.Errorf("guardrails: invalid tool arguments: %w", err)
		}
	}

	home := homeDir()

	for _, rule := range e.rules {
		if trigger := evaluateRule(rule, args, home); trigger != nil {
			return trigger, nil
		}
	}
	return nil, nil
}

func evaluateRule(rule models.Rule, args map[string]any, home string) *models.RuleTrigger {
	for _, argName := range rule.ArgNames {
		raw, ok := args[argName]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			continue
		}

		if argName == "command" {
			if checkBashCommandForPaths(value, rule.ProtectedPaths, home) {
				return &models.RuleTrigger{
					RuleID:   rule.ID,
					Severity: rule.Severity,
					Detail:   fmt.Sprintf("%s: command would modify protected path", rule.Name),
				}
			}
			if rule.BlockHidden && hasHiddenMkdir(value) {
				return &models.RuleTrigger{
					RuleID:   rule.ID,
					Severity: rule.Severity,
					Detail:   fmt.Sprintf("%s: hidden paths not allowed", rule.Name),
				}
			}
			continue
		}

		if rule.BlockTraversal && strings.Contains(value, "..") {
			return &models.RuleTrigger{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Detail:   fmt.Sprintf("%s: path traversal not allowed", rule.Name),
			}
		}

		if rule.BlockHidden && strings.HasPrefix(path.Base(value), ".") {
			return &models.RuleTrigger{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Detail:   fmt.Sprintf("%s: hidden paths not allowed", rule.Name),
			}
		}

		absolute := toAbsolutePath(value, home)
		for _, protectedPath := range rule.ProtectedPaths {
			expanded := expandHome(protectedPath, home)
			if isPathWithin(absolute, expanded) {
				return &models.RuleTrigger{
					RuleID:   rule.ID,
					Severity: rule.Severity,
					Detail:   fmt.Sprintf("%s: cannot modify protected path %s", rule.Name, protectedPath),
				}
			}
		}
	}
	return nil
}

// writePatterns capture the target path of common shell write operations.
var writePatterns = []*regexp.Regexp{
	regexp.MustCompile(`>>\s*([^\s;|&]+)`),
	regexp.MustCompile(`>\s*([^\s;|&]+)`),
	regexp.MustCompile(`tee\s+(?:-a\s+)?([^\s;|&]+)`),
	regexp.MustCompile(`(?:cp|mv)\s+\S+\s+([^\s;|&]+)`),
	regexp.MustCompile(`rm\s+(?:-rf?\s+)?([^\s;|&]+)`),
}

var mkdirPattern = regexp.MustCompile(`mkdir\s+(?:-p\s+)?(\S+)`)

func checkBashCommandForPaths(command string, protectedPaths []string, home string) bool {
	for _, protectedPath := range protectedPaths {
		normalizedProtected := normalizePath(strings.TrimSuffix(expandHome(protectedPath, home), "**"))

		for _, pattern := range writePatterns {
			for _, match := range pattern.FindAllStringSubmatch(command, -1) {
				target := match[1]

				expandedTarget := target
				if strings.HasPrefix(target, "~") {
					expandedTarget = strings.Replace(target, "~", home, 1)
				}

				normalizedTarget := expandedTarget
				if path.IsAbs(expandedTarget) {
					normalizedTarget = normalizePath(expandedTarget)
				}

				if strings.HasPrefix(normalizedTarget, normalizedProtected) {
					return true
				}
			}
		}
	}
	return false
}

// hasHiddenMkdir reports whether command contains an mkdir whose final path
// component is hidden (dotfile-style).
func hasHiddenMkdir(command string) bool {
	for _, match := range mkdirPattern.FindAllStringSubmatch(command, -1) {
		if strings.HasPrefix(path.Base(match[1]), ".") {
			return true
		}
	}
	return false
}

// isPathWithin reports whether testPath is protectedPath itself or a
// descendant of it, honoring an optional trailing "**" glob suffix.
func isPathWithin(testPath, protectedPath string) bool {
	effective := strings.TrimSuffix(protectedPath, "**")
	effective = strings.TrimSuffix(effective, "/")

	normalized := normalizePath(testPath)
	normalizedProtected := normalizePath(effective)

	return normalized == normalizedProtected || strings.HasPrefix(normalized, normalizedProtected+"/")
}

func expandHome(p, home string) string {
	if strings.HasPrefix(p, "~") {
		return strings.Replace(p, "~", home, 1)
	}
	return p
}

func toAbsolutePath(p, home string) string {
	expanded := expandHome(p, home)
	if path.IsAbs(expanded) {
		return normalizePath(expanded)
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	return normalizePath(path.Join(cwd, expanded))
}

// normalizePath resolves "." and ".." components without touching the
// filesystem.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "/"
	}
	return cleaned
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return "/root"
}
