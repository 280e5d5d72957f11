package query

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheGetMissThenPutThenHit(t *testing.T) {
	c, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, ok := c.Get(ModeHybrid, "retries", "a=|w=|s=|r=", 10); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put(ModeHybrid, "retries", "a=|w=|s=|r=", 10, []Blended{{MessageID: 1}})
	got, ok := c.Get(ModeHybrid, "retries", "a=|w=|s=|r=", 10)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	blended := got.([]Blended)
	if len(blended) != 1 || blended[0].MessageID != 1 {
		t.Fatalf("cached value = %+v, want [{MessageID:1}]", blended)
	}
}

func TestCacheBumpInvalidatesPriorEntries(t *testing.T) {
	c, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	c.Put(ModeLexical, "q", "", 10, []Blended{{MessageID: 1}})
	c.Bump()
	if _, ok := c.Get(ModeLexical, "q", "", 10); ok {
		t.Fatal("expected entry stored before Bump to miss at new version")
	}
}

func TestCacheDifferentModesDoNotCollide(t *testing.T) {
	c, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	c.Put(ModeLexical, "q", "", 10, []Blended{{MessageID: 1}})
	if _, ok := c.Get(ModeVector, "q", "", 10); ok {
		t.Fatal("expected modes to be keyed independently")
	}
}

func TestWatchDataDirBumpsVersionOnFileCreate(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer c.Close()

	if err := c.WatchDataDir(dir, nil); err != nil {
		t.Fatalf("WatchDataDir: %v", err)
	}
	before := c.Version()

	if err := os.WriteFile(filepath.Join(dir, "vectors.cvvi"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Version() > before {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("version did not bump after file create: still %d", c.Version())
}
