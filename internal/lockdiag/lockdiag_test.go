package lockdiag

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldersFindsOwnProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("open file listing is only reliable on linux")
	}

	path := filepath.Join(t.TempDir(), "held.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func(f *os.File) { _ = f.Close() }(f)

	holders, err := Holders(context.Background(), path)
	require.NoError(t, err)

	var pids []int32
	for _, h := range holders {
		pids = append(pids, h.PID)
	}
	assert.Contains(t, pids, int32(os.Getpid()))
}

func TestReportDoesNotFailOnMissingFile(t *testing.T) {
	Report(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
}

func TestHolderString(t *testing.T) {
	assert.Equal(t, "sync(42)", Holder{PID: 42, Name: "sync"}.String())
}
