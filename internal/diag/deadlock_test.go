package diag

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestDeadlockDetector_PersistsReport(t *testing.T) {
	dir := t.TempDir()
	d := Detector()
	require.NoError(t, d.Configure(dir, ""))

	report := d.DetectFutureDeadlock(0x2000000000000001, 3, 10, 45*time.Second, CallerStack())
	require.NotNil(t, report)
	require.NotEmpty(t, report.Path)
	require.Contains(t, report.AllGoroutines, "goroutine")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Name(), "deadlock-"))

	// The persisted report must decompress and name the stuck EID.
	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Contains(t, string(body), "eid: 2305843009213693953")
	require.Contains(t, string(body), "wait: 3 of 10")
}

func TestDeadlockDetector_MarkerFile(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "attach.pid")
	d := Detector()
	require.NoError(t, d.Configure(dir, marker))
	t.Cleanup(func() { _ = d.Configure("", "") })

	before := d.Captured()
	d.DetectFutureDeadlock(7, 0, 1, time.Second, CallerStack())

	require.Equal(t, before+1, d.Captured())
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}
