package piggyback

import (
	"strings"
	"testing"
	"time"
)

func TestFileInfoFreshDataIsValid(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("<<<section>>>", "data")})

	advance(cache, 1800*time.Second)
	infos, err := cache.FileInfos("host1", maxCacheAgeRules(3600))
	if err != nil {
		t.Fatalf("file infos error: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one record, got %d", len(infos))
	}

	info := infos[0]
	if !info.Valid || info.Status != 0 {
		t.Fatalf("fresh data should be valid with status 0: %+v", info)
	}
	if info.Message != "Successfully processed from source 'srv1'" {
		t.Fatalf("unexpected message: %q", info.Message)
	}
	if info.Source != "srv1" {
		t.Fatalf("unexpected source: %q", info.Source)
	}
}

func TestFileInfoExceedsMaxCacheAge(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("data")})

	advance(cache, 3601*time.Second)
	infos, err := cache.FileInfos("host1", maxCacheAgeRules(3600))
	if err != nil {
		t.Fatalf("file infos error: %v", err)
	}

	info := infos[0]
	if info.Valid || info.Status != 0 {
		t.Fatalf("data beyond max_cache_age must be invalid with status 0: %+v", info)
	}
	if !strings.Contains(info.Message, "Piggyback file too old") {
		t.Fatalf("unexpected message: %q", info.Message)
	}
	if !strings.Contains(info.Message, "allowed: 1:00:00") {
		t.Fatalf("message should render the allowed age: %q", info.Message)
	}
}

func TestFileInfoNotAbandonedIgnoresValidityPeriod(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("data")})

	// 状态文件与载荷 mtime 一致（source 整体停摆而非丢弃单个 target），
	// 宽限期不适用，超过 max_cache_age 即失效。
	rules := []Rule{
		{Key: KeyMaxCacheAge, Value: 3600},
		{Key: KeyValidityPeriod, Value: 7200},
		{Key: KeyValidityState, Value: 1},
	}

	advance(cache, 3601*time.Second)
	infos, err := cache.FileInfos("host1", rules)
	if err != nil {
		t.Fatalf("file infos error: %v", err)
	}

	info := infos[0]
	if info.Valid || info.Status != 0 {
		t.Fatalf("a stalled source beyond max_cache_age must be invalid: %+v", info)
	}
	if !strings.Contains(info.Message, "Piggyback file too old") {
		t.Fatalf("unexpected message: %q", info.Message)
	}
	if !strings.Contains(info.Message, "allowed: 1:00:00") {
		t.Fatalf("the allowed age must render max_cache_age, not the validity window: %q", info.Message)
	}
}

func TestFileInfoMissingPayloadFile(t *testing.T) {
	cache := newTestCache(t)
	settings, err := newSettingsMap([]string{"srv1"}, "host1", maxCacheAgeRules(3600))
	if err != nil {
		t.Fatalf("settings error: %v", err)
	}

	info, err := cache.fileInfo("srv1", "host1", settings)
	if err != nil {
		t.Fatalf("file info error: %v", err)
	}
	if info.Valid || info.Status != 0 {
		t.Fatalf("missing payload must be invalid: %+v", info)
	}
	if info.Message != "Piggyback file is missing" {
		t.Fatalf("unexpected message: %q", info.Message)
	}
}

func TestFileInfoAbandonedWithinValidityWindow(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("data")})
	markAbandoned(t, cache, "srv1")

	rules := []Rule{
		{Key: KeyMaxCacheAge, Value: 3600},
		{Key: KeyValidityPeriod, Value: 7200},
		{Key: KeyValidityState, Value: 1},
	}

	advance(cache, 3601*time.Second)
	infos, err := cache.FileInfos("host1", rules)
	if err != nil {
		t.Fatalf("file infos error: %v", err)
	}

	info := infos[0]
	if !info.Valid {
		t.Fatalf("abandoned data within the validity window should stay valid: %+v", info)
	}
	if info.Status != 1 {
		t.Fatalf("validity window must surface the configured state, got %d", info.Status)
	}
	if !strings.Contains(info.Message, "Piggyback data not updated by source 'srv1'") {
		t.Fatalf("unexpected message: %q", info.Message)
	}
	if !strings.Contains(info.Message, "still valid") {
		t.Fatalf("message should note the remaining time: %q", info.Message)
	}
}

func TestFileInfoAbandonedBeyondValidityWindow(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("data")})
	markAbandoned(t, cache, "srv1")

	rules := []Rule{
		{Key: KeyMaxCacheAge, Value: 3600},
		{Key: KeyValidityPeriod, Value: 7200},
		{Key: KeyValidityState, Value: 1},
	}

	advance(cache, 7201*time.Second)
	infos, err := cache.FileInfos("host1", rules)
	if err != nil {
		t.Fatalf("file infos error: %v", err)
	}
	if infos[0].Valid || infos[0].Status != 0 {
		t.Fatalf("data beyond the validity window must be invalid with status 0: %+v", infos[0])
	}
}

func TestFileInfoAbandonedWithoutValidityPeriodIsInvalid(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("data")})
	markAbandoned(t, cache, "srv1")

	advance(cache, 60*time.Second)
	infos, err := cache.FileInfos("host1", maxCacheAgeRules(3600))
	if err != nil {
		t.Fatalf("file infos error: %v", err)
	}

	info := infos[0]
	if info.Valid || info.Status != 0 {
		t.Fatalf("abandonment without a validity period is default-deny: %+v", info)
	}
	if info.Message != "Piggyback data not updated by source 'srv1'" {
		t.Fatalf("unexpected message: %q", info.Message)
	}
}

func TestFileInfoMissingStatusFileCountsAsAbandoned(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("data")})
	if _, err := cache.RemoveSourceStatusFile("srv1"); err != nil {
		t.Fatalf("remove status file: %v", err)
	}

	advance(cache, 60*time.Second)
	infos, err := cache.FileInfos("host1", maxCacheAgeRules(3600))
	if err != nil {
		t.Fatalf("file infos error: %v", err)
	}
	if infos[0].Valid {
		t.Fatalf("a missing status file counts as abandoned: %+v", infos[0])
	}
}

func TestFileInfosOneRecordPerSource(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("a")})
	storeCycle(t, cache, "srv2", map[string][][]byte{"host1": lines("b")})

	infos, err := cache.FileInfos("host1", maxCacheAgeRules(3600))
	if err != nil {
		t.Fatalf("file infos error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected one record per source, got %d", len(infos))
	}
	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.Source] = true
	}
	if !seen["srv1"] || !seen["srv2"] {
		t.Fatalf("both sources must be reported: %v", seen)
	}
}

func TestHasData(t *testing.T) {
	cache := newTestCache(t)
	rules := maxCacheAgeRules(3600)

	ok, err := cache.HasData("host1", rules)
	if err != nil || ok {
		t.Fatalf("empty cache should have no data: %v %v", ok, err)
	}

	storeCycle(t, cache, "srv1", map[string][][]byte{"host1": lines("data")})
	ok, err = cache.HasData("host1", rules)
	if err != nil || !ok {
		t.Fatalf("stored data should be reported: %v %v", ok, err)
	}
}

func TestSourceAndTargetPairsSkipsInvalid(t *testing.T) {
	cache := newTestCache(t)
	storeCycle(t, cache, "srv1", map[string][][]byte{
		"host1": lines("a"),
		"host2": lines("b"),
	})
	// Dating host2's payload back makes the status file strictly newer for
	// that pair only: host2 is abandoned, host1 stays in sync.
	agePayload(t, cache, "host2", "srv1", 10*time.Second)

	pairs, err := cache.SourceAndTargetPairs(maxCacheAgeRules(3600))
	if err != nil {
		t.Fatalf("pairs error: %v", err)
	}
	if len(pairs) != 1 || pairs[0] != (Pair{Source: "srv1", Target: "host1"}) {
		t.Fatalf("expected only the refreshed pair, got %v", pairs)
	}
}

func TestNewFileInfoRejectsEmptyMessage(t *testing.T) {
	if _, err := newFileInfo("srv1", "/tmp/p", true, "", 0); err == nil {
		t.Fatal("empty message must be rejected at construction")
	}
}

func TestRenderDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{184, "0:03:04"},
		{3600, "1:00:00"},
		{92635, "1 day, 1:43:55"},
		{2*86400 + 5, "2 days, 0:00:05"},
	}
	for _, tc := range cases {
		if got := renderDuration(time.Duration(tc.seconds) * time.Second); got != tc.want {
			t.Fatalf("renderDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
