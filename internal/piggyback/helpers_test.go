package piggyback

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// newTestCache returns a Cache backed by two temporary roots.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	cache, err := New(Dirs{
		PayloadRoot: filepath.Join(dir, "piggyback"),
		StatusRoot:  filepath.Join(dir, "piggyback_sources"),
	}, discardLogger())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return cache
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// storeCycle writes one delivery cycle and fails the test on error.
func storeCycle(t *testing.T, c *Cache, source string, payloads map[string][][]byte) {
	t.Helper()
	if err := c.StoreRawData(source, payloads); err != nil {
		t.Fatalf("store error: %v", err)
	}
}

// advance shifts the cache clock into the future so stored files age.
func advance(c *Cache, d time.Duration) {
	c.now = func() time.Time { return time.Now().Add(d) }
}

// markAbandoned bumps the source status file mtime past every payload mtime,
// simulating a later report that carried no data for the stored targets.
func markAbandoned(t *testing.T, c *Cache, source string) {
	t.Helper()
	statusPath := c.dirs.statusPath(source)
	info, err := os.Stat(statusPath)
	if err != nil {
		t.Fatalf("stat status file: %v", err)
	}
	stamp := info.ModTime().Add(10 * time.Second)
	if err := os.Chtimes(statusPath, stamp, stamp); err != nil {
		t.Fatalf("bump status file mtime: %v", err)
	}
}

// agePayload dates a payload file back by delta without touching the
// status file.
func agePayload(t *testing.T, c *Cache, target, source string, delta time.Duration) {
	t.Helper()
	payloadPath := c.dirs.payloadPath(target, source)
	info, err := os.Stat(payloadPath)
	if err != nil {
		t.Fatalf("stat payload file: %v", err)
	}
	stamp := info.ModTime().Add(-delta)
	if err := os.Chtimes(payloadPath, stamp, stamp); err != nil {
		t.Fatalf("age payload file: %v", err)
	}
}

func lines(values ...string) [][]byte {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, []byte(v))
	}
	return out
}

func maxCacheAgeRules(seconds int) []Rule {
	return []Rule{{Key: KeyMaxCacheAge, Value: seconds}}
}
