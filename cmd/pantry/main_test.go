package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/pantry/pkg/pantry"
)

func TestExecute(t *testing.T) {
	GitCommit = "abc1234"
	t.Cleanup(func() { GitCommit = "unknown" })

	args := os.Args
	t.Cleanup(func() { os.Args = args })
	os.Args = []string{"pantry", "version"}
	require.NoError(t, Execute())
	assert.Equal(t, "abc1234", pantry.BuildInfo.GitCommit)
}
