// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package jobexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_SuccessfulJob(t *testing.T) {
	executor := New(nil)
	outcome := executor.Run(context.Background(), Spec{
		Argv:    []string{"sh", "-c", "echo hello; echo world"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, outcome.SpawnErr)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.False(t, outcome.TimedOut)
	assert.Contains(t, outcome.Tail, "hello")
	assert.Contains(t, outcome.Tail, "world")
}

func TestExecutor_NonZeroExit(t *testing.T) {
	executor := New(nil)
	outcome := executor.Run(context.Background(), Spec{
		Argv:    []string{"sh", "-c", "exit 7"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, outcome.SpawnErr)
	assert.Equal(t, 7, outcome.ExitCode)
	assert.False(t, outcome.TimedOut)
}

func TestExecutor_TimeoutKillsProcessGroup(t *testing.T) {
	executor := New(nil)
	start := time.Now()
	outcome := executor.Run(context.Background(), Spec{
		Argv:        []string{"sh", "-c", "trap '' TERM; sleep 30"},
		Timeout:     200 * time.Millisecond,
		GracePeriod: 200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.True(t, outcome.TimedOut)
	assert.Less(t, elapsed, 5*time.Second, "SIGKILL escalation should cut the sleep short")
}

func TestExecutor_EnvironmentIsPassedThrough(t *testing.T) {
	executor := New(nil)
	outcome := executor.Run(context.Background(), Spec{
		Argv:    []string{"sh", "-c", "echo $CUSTOM_PROP_TEAM"},
		Env:     []string{"CUSTOM_PROP_TEAM=platform"},
		Timeout: 5 * time.Second,
	})
	assert.Contains(t, outcome.Tail, "platform")
}

func TestExecutor_SpawnFailureIsReportedDistinctly(t *testing.T) {
	executor := New(nil)
	outcome := executor.Run(context.Background(), Spec{
		Argv:    []string{"/nonexistent/binary/orgu-test"},
		Timeout: 5 * time.Second,
	})
	require.Error(t, outcome.SpawnErr)
	assert.False(t, outcome.TimedOut)
}
