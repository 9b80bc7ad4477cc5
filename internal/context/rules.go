// Package context implements the context manager: the message store with
// its parallel token-estimate cache, the rules index, system-prompt
// composition, and prompt-cache pruning.
package context

import (
	"sort"
	"strings"
)

// RuleFile is one discovered rule file: its scope directory and content.
type RuleFile struct {
	RelativePath string
	Content      string
	ScopeDir     string
	IsGlobal     bool
}

// RulesIndex answers "which rule files match this file path?" using
// directory-prefix matching — no globs. A scoped rule's ScopeDir is a
// directory prefix that activates when the agent touches any file under
// that directory; an empty ScopeDir matches everything.
type RulesIndex struct {
	global []RuleFile
	scoped []RuleFile
}

// NewRulesIndex partitions rule files into global and scoped buckets,
// sorting scoped rules by ScopeDir length descending so MatchPath returns
// the most specific rule first.
func NewRulesIndex(files []RuleFile) *RulesIndex {
	idx := &RulesIndex{}
	for _, f := range files {
		if f.IsGlobal {
			idx.global = append(idx.global, f)
		} else {
			idx.scoped = append(idx.scoped, f)
		}
	}
	sort.SliceStable(idx.scoped, func(i, j int) bool {
		return len(idx.scoped[i].ScopeDir) > len(idx.scoped[j].ScopeDir)
	})
	return idx
}

// GlobalRules returns every always-active rule file.
func (idx *RulesIndex) GlobalRules() []RuleFile {
	return idx.global
}

// ScopedRules returns every scoped rule file, for audit/debug.
func (idx *RulesIndex) ScopedRules() []RuleFile {
	return idx.scoped
}

// MatchPath returns the scoped rules whose ScopeDir contains relativePath,
// most specific (longest ScopeDir) first. Global rules are not included —
// callers that want "all rules in effect" should concatenate GlobalRules().
func (idx *RulesIndex) MatchPath(relativePath string) []RuleFile {
	var matched []RuleFile
	for _, rule := range idx.scoped {
		if PathStartsWith(relativePath, rule.ScopeDir) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// TotalCount returns the number of indexed rules (global + scoped).
func (idx *RulesIndex) TotalCount() int {
	return len(idx.global) + len(idx.scoped)
}

// PathStartsWith reports whether filePath falls under scopeDir: true iff
// scopeDir is empty, filePath equals scopeDir, or filePath starts with
// scopeDir + "/". The slash boundary means "packages/agent-tools" does not
// match the scope "packages/agent".
func PathStartsWith(filePath, scopeDir string) bool {
	if scopeDir == "" {
		return true
	}
	return filePath == scopeDir || strings.HasPrefix(filePath, scopeDir+"/")
}
