package detector

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchesBinary(t *testing.T) {
	require.True(t, matchesBinary("claude", "claude"))
	require.True(t, matchesBinary("/usr/local/bin/claude", "claude"))
	require.False(t, matchesBinary("/Applications/Claude.app/Contents/MacOS/claude", "claude"))
	require.False(t, matchesBinary("claude-other", "claude"))
}

func TestContainsZombie(t *testing.T) {
	require.True(t, containsZombie([]string{"Z"}))
	require.True(t, containsZombie([]string{"zombie"}))
	require.False(t, containsZombie([]string{"R"}))
}

func TestKill_AlreadyDeadIsNoop(t *testing.T) {
	cmd := exec.Command("sleep", "0.01")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	gone, err := Kill(cmd.Process.Pid, 100)
	require.NoError(t, err)
	require.True(t, gone)
}

func TestKill_GracefulTermination(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())

	// Reap the child as soon as it exits; an unreaped zombie still
	// answers the liveness probe.
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	gone, err := Kill(cmd.Process.Pid, 500)
	require.NoError(t, err)
	require.True(t, gone)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("process did not reap after Kill")
	}
}

func TestDiscover_ExcludesSelf(t *testing.T) {
	d := New("definitely-not-a-real-binary-name")
	sessions, err := d.Discover(nil)
	require.NoError(t, err)
	for _, s := range sessions {
		require.NotEqual(t, os.Getpid(), s.PID)
	}
}
