package guardrails

import (
	"encoding/json"
	"testing"

	"github.com/driftcode/agentcore/pkg/models"
	"github.com/stretchr/testify/require"
)

func rule(protected ...string) models.Rule {
	return models.Rule{
		ID:             "protect-config",
		Name:           "Protect config",
		Severity:       models.SeverityBlock,
		ArgNames:       []string{"file_path", "command"},
		ProtectedPaths: protected,
		BlockTraversal: true,
		BlockHidden:    true,
	}
}

func TestIsPathWithin(t *testing.T) {
	require.True(t, isPathWithin("/Users/test/.agent/app", "/Users/test/.agent/app"))
	require.True(t, isPathWithin("/Users/test/.agent/app/server.js", "/Users/test/.agent/app"))
	require.True(t, isPathWithin("/Users/test/.agent/app/server.js", "/Users/test/.agent/app/**"))
	require.False(t, isPathWithin("/Users/test/projects/foo.js", "/Users/test/.agent/app"))
	require.False(t, isPathWithin("/Users/test/.agent/apps/other", "/Users/test/.agent/app"))
}

func TestHasHiddenMkdir(t *testing.T) {
	require.True(t, hasHiddenMkdir("mkdir .hidden"))
	require.True(t, hasHiddenMkdir("mkdir -p /tmp/.secret"))
	require.False(t, hasHiddenMkdir("mkdir visible"))
	require.False(t, hasHiddenMkdir("ls -la"))
}

func TestEvaluate_ProtectedPathTriggers(t *testing.T) {
	e := NewEvaluator([]models.Rule{rule("/etc/secrets")})
	args, _ := json.Marshal(map[string]string{"file_path": "/etc/secrets/db.conf"})

	trigger, err := e.Evaluate(args)
	require.NoError(t, err)
	require.NotNil(t, trigger)
	require.Equal(t, "protect-config", trigger.RuleID)
}

func TestEvaluate_TraversalTriggers(t *testing.T) {
	e := NewEvaluator([]models.Rule{rule("/etc/secrets")})
	args, _ := json.Marshal(map[string]string{"file_path": "/workspace/../etc/secrets/db.conf"})

	trigger, err := e.Evaluate(args)
	require.NoError(t, err)
	require.NotNil(t, trigger)
}

func TestEvaluate_HiddenPathTriggers(t *testing.T) {
	e := NewEvaluator([]models.Rule{rule("/etc/secrets")})
	args, _ := json.Marshal(map[string]string{"file_path": "/workspace/.secret"})

	trigger, err := e.Evaluate(args)
	require.NoError(t, err)
	require.NotNil(t, trigger)
}

func TestEvaluate_BashWriteToProtectedPathTriggers(t *testing.T) {
	e := NewEvaluator([]models.Rule{rule("/etc/secrets")})
	args, _ := json.Marshal(map[string]string{"command": "echo hi > /etc/secrets/db.conf"})

	trigger, err := e.Evaluate(args)
	require.NoError(t, err)
	require.NotNil(t, trigger)
}

func TestEvaluate_BashHiddenMkdirTriggers(t *testing.T) {
	e := NewEvaluator([]models.Rule{rule("/etc/secrets")})
	args, _ := json.Marshal(map[string]string{"command": "mkdir -p .hidden"})

	trigger, err := e.Evaluate(args)
	require.NoError(t, err)
	require.NotNil(t, trigger)
}

func TestEvaluate_UnrelatedPathDoesNotTrigger(t *testing.T) {
	e := NewEvaluator([]models.Rule{rule("/etc/secrets")})
	args, _ := json.Marshal(map[string]string{"file_path": "/workspace/notes.md"})

	trigger, err := e.Evaluate(args)
	require.NoError(t, err)
	require.Nil(t, trigger)
}

func TestEvaluate_PartialPrefixDoesNotTrigger(t *testing.T) {
	e := NewEvaluator([]models.Rule{rule("/Users/test/.agent/app")})
	args, _ := json.Marshal(map[string]string{"file_path": "/Users/test/.agent/apps/other"})

	trigger, err := e.Evaluate(args)
	require.NoError(t, err)
	require.Nil(t, trigger)
}
