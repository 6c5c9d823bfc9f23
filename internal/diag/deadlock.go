package diag

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// allStacksBuf caps the goroutine dump size. 4 MiB holds several thousand
// goroutines, which covers the worst bot-count configurations.
const allStacksBuf = 4 << 20

// DeadlockReport is the forensic record captured when a cross-thread wait
// exceeds its budget.
type DeadlockReport struct {
	ID            uuid.UUID
	EID           uint64
	WaitIndex     int // index of the stuck wait within its batch
	WaitTotal     int // batch size
	WaitedFor     time.Duration
	Monotonic     time.Duration // monotonic clock at capture
	CapturedAt    time.Time
	WaitingStack  string
	AllGoroutines string
	Path          string // where the gzipped report was persisted, if anywhere
}

// DeadlockDetector captures and persists deadlock reports.
// Use Detector() for the shared instance and Configure it once at startup.
type DeadlockDetector struct {
	mu         sync.Mutex
	dumpDir    string
	markerFile string // optional file an external debugger watches
	started    time.Time
	captured   int
}

var (
	detectorInstance *DeadlockDetector
	detectorOnce     sync.Once
)

// Detector returns the singleton deadlock detector.
func Detector() *DeadlockDetector {
	detectorOnce.Do(func() {
		detectorInstance = &DeadlockDetector{started: time.Now()}
	})
	return detectorInstance
}

// Configure sets the dump directory and the optional debugger marker file.
// An empty dumpDir disables persistence; reports are still logged.
func (d *DeadlockDetector) Configure(dumpDir, markerFile string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dumpDir != "" {
		if err := os.MkdirAll(dumpDir, 0o755); err != nil {
			return fmt.Errorf("creating dump dir %s: %w", dumpDir, err)
		}
	}
	d.dumpDir = dumpDir
	d.markerFile = markerFile
	return nil
}

// DetectFutureDeadlock captures a forensic report for a wait that has
// already exceeded its budget: the waiting goroutine's stack, a full
// goroutine dump, and the wait's position within its batch.
// Never blocks the caller on anything but file IO.
func (d *DeadlockDetector) DetectFutureDeadlock(eid uint64, index, total int, waited time.Duration, waitingStack string) *DeadlockReport {
	report := &DeadlockReport{
		ID:           uuid.New(),
		EID:          eid,
		WaitIndex:    index,
		WaitTotal:    total,
		WaitedFor:    waited,
		Monotonic:    time.Since(d.started),
		CapturedAt:   time.Now(),
		WaitingStack: waitingStack,
	}

	buf := make([]byte, allStacksBuf)
	n := runtime.Stack(buf, true)
	report.AllGoroutines = string(buf[:n])

	d.mu.Lock()
	d.captured++
	dumpDir := d.dumpDir
	markerFile := d.markerFile
	d.mu.Unlock()

	if dumpDir != "" {
		if err := d.persist(report, dumpDir); err != nil {
			slog.Error("failed to persist deadlock report", "id", report.ID, "err", err)
		}
	}
	if markerFile != "" {
		// Best effort: the marker lets an attached debugger pick the pid up.
		_ = os.WriteFile(markerFile, fmt.Appendf(nil, "%d %s\n", os.Getpid(), report.ID), 0o644)
	}

	slog.Error("possible deadlock detected",
		"id", report.ID,
		"eid", report.EID,
		"waitIndex", report.WaitIndex,
		"waitTotal", report.WaitTotal,
		"waitedFor", report.WaitedFor,
		"report", report.Path)

	return report
}

// Captured returns the number of reports captured since start.
func (d *DeadlockDetector) Captured() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captured
}

func (d *DeadlockDetector) persist(r *DeadlockReport, dir string) error {
	name := fmt.Sprintf("deadlock-%s-%s.txt.gz", r.CapturedAt.Format("20060102-150405"), r.ID)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	fmt.Fprintf(zw, "deadlock report %s\n", r.ID)
	fmt.Fprintf(zw, "captured: %s (monotonic %s)\n", r.CapturedAt.Format(time.RFC3339Nano), r.Monotonic)
	fmt.Fprintf(zw, "eid: %d\n", r.EID)
	fmt.Fprintf(zw, "wait: %d of %d, waited %s\n\n", r.WaitIndex, r.WaitTotal, r.WaitedFor)
	fmt.Fprintf(zw, "--- waiting goroutine ---\n%s\n", r.WaitingStack)
	fmt.Fprintf(zw, "--- all goroutines ---\n%s\n", r.AllGoroutines)
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	r.Path = path
	return nil
}

// CallerStack returns the current goroutine's stack, for passing into
// DetectFutureDeadlock on behalf of the waiting goroutine.
func CallerStack() string {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
