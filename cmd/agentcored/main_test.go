package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["migrate"])
	require.True(t, names["doctor"])
}

func TestDoctorCmd_RejectsMissingConfig(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"doctor", "--config", "/nonexistent/agentcore.yaml"})
	err := root.Execute()
	require.Error(t, err)
}
