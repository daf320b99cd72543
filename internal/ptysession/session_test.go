package ptysession

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSession_StartFailsOnMissingCwd(t *testing.T) {
	s := New("s1", "/no/such/directory", nil, "cat", "CLAUDE_CODE_REMOTE_BIN", testLogger())
	err := s.Start()
	require.Error(t, err)
}

func TestSession_StartFailsOnUnresolvableBinary(t *testing.T) {
	s := New("s2", t.TempDir(), nil, "definitely-not-a-real-binary", "CLAUDE_CODE_REMOTE_BIN", testLogger())
	err := s.Start()
	require.Error(t, err)
}

func TestSession_WriteEchoesThroughOutput(t *testing.T) {
	s := New("s3", t.TempDir(), nil, "cat", "CLAUDE_CODE_REMOTE_BIN", testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	received := make(chan []byte, 8)
	detach := s.OnOutput(func(data []byte, _ OutputEvent) {
		received <- data
	})
	defer detach()

	s.Write([]byte("hello-session\n"))

	select {
	case data := <-received:
		require.Contains(t, string(data), "hello-session")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed output")
	}

	require.Equal(t, StatusRunning, s.GetInfo().Status)
	require.Contains(t, string(s.History()), "hello-session")
}

func TestSession_ExitPublishesExactlyOnce(t *testing.T) {
	s := New("s4", t.TempDir(), []string{"-c", "exit 3"}, "sh", "CLAUDE_CODE_REMOTE_BIN", testLogger())
	require.NoError(t, s.Start())

	var mu sync.Mutex
	codes := []int{}
	s.OnExit(func(code int) {
		mu.Lock()
		codes = append(codes, code)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(codes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, codes, 1)
	require.Equal(t, 3, codes[0])
	require.Equal(t, StatusStopped, s.GetInfo().Status)
	require.Equal(t, ActivityIdle, s.ActivityStatus())
}

func TestSession_StopIsIdempotent(t *testing.T) {
	s := New("s5", t.TempDir(), nil, "cat", "CLAUDE_CODE_REMOTE_BIN", testLogger())
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
}

func TestSession_DetachStopsFurtherDelivery(t *testing.T) {
	s := New("s6", t.TempDir(), nil, "cat", "CLAUDE_CODE_REMOTE_BIN", testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	var count int
	var mu sync.Mutex
	detach := s.OnOutput(func(_ []byte, _ OutputEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	s.Write([]byte("one\n"))
	time.Sleep(100 * time.Millisecond)
	detach()
	detach() // idempotent

	mu.Lock()
	afterDetach := count
	mu.Unlock()

	s.Write([]byte("two\n"))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, afterDetach, count)
}
