package process

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-once", "secret=abc", "guid=5", "host=example.org%3A8080"},
		Args("secret=abc&guid=5&host=example.org%3A8080"),
	)
	assert.Equal(t, []string{"-once"}, Args(""))
}

func TestLauncher_StartsWorker(t *testing.T) {
	var gotName string
	var gotArgs []string
	l := NewLauncher("worker")
	l.command = func(name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return exec.Command("true")
	}

	require.NoError(t, l.Launch(context.Background(), "secret=abc&guid=5"))
	assert.Equal(t, "worker", gotName)
	assert.Equal(t, []string{"-once", "secret=abc", "guid=5"}, gotArgs)
}

func TestLauncher_MissingBinary(t *testing.T) {
	l := NewLauncher("/nonexistent/groupnotify-worker")
	assert.Error(t, l.Launch(context.Background(), "a=b"))
}
