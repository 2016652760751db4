package manifest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/updraft-sh/updraft/cmd/updraft/platform"
	"github.com/updraft-sh/updraft/cmd/updraft/store"
)

func testReconciler(st store.Store) *Reconciler {
	r := NewReconciler(st, "main")
	r.Backoff = time.Millisecond
	return r
}

func TestPublishCreatesManifest(t *testing.T) {
	mem := store.NewMem()
	win := mustTarget(t, "windows-x64")
	e := testEntry(win, "1.2.0", baseTime)

	m, err := testReconciler(mem).Publish(context.Background(), win, e)
	if err != nil {
		t.Fatalf("publish: %s", err)
	}
	obj, err := mem.Get(context.Background(), store.ManifestKey("main"))
	if err != nil {
		t.Fatalf("get manifest back: %s", err)
	}
	if got, want := string(obj.Data), encode(t, m); got != want {
		t.Errorf("stored manifest differs from the returned one:\n%s\nvs\n%s", got, want)
	}
	stored, err := Parse(obj.Data)
	if err != nil {
		t.Fatalf("parse stored manifest: %s", err)
	}
	if stored.Platforms["windows-x64"] != e {
		t.Errorf("stored windows entry is %+v", stored.Platforms["windows-x64"])
	}
}

func TestPublishSecondTimeIsNoop(t *testing.T) {
	mem := store.NewMem()
	win := mustTarget(t, "windows-x64")
	e := testEntry(win, "1.2.0", baseTime)
	r := testReconciler(mem)
	ctx := context.Background()

	if _, err := r.Publish(ctx, win, e); err != nil {
		t.Fatalf("first publish: %s", err)
	}
	before, err := mem.Get(ctx, store.ManifestKey("main"))
	if err != nil {
		t.Fatalf("get: %s", err)
	}
	if _, err := r.Publish(ctx, win, e); err != nil {
		t.Fatalf("second publish: %s", err)
	}
	after, err := mem.Get(ctx, store.ManifestKey("main"))
	if err != nil {
		t.Fatalf("get: %s", err)
	}
	if before.ETag != after.ETag {
		t.Error("republishing an identical entry rewrote the manifest")
	}
}

func TestPublishMergesIntoExisting(t *testing.T) {
	mem := store.NewMem()
	win := mustTarget(t, "windows-x64")
	mac := mustTarget(t, "macos-x64")
	ctx := context.Background()

	if _, err := testReconciler(mem).Publish(ctx, win, testEntry(win, "1.2.0", baseTime)); err != nil {
		t.Fatalf("windows publish: %s", err)
	}
	m, err := testReconciler(mem).Publish(ctx, mac, testEntry(mac, "1.2.0", baseTime.Add(time.Minute)))
	if err != nil {
		t.Fatalf("macos publish: %s", err)
	}
	for _, tag := range []string{"windows-x64", "darwin-x86_64", "darwin"} {
		if _, ok := m.Platforms[tag]; !ok {
			t.Errorf("missing entry for %s after the second publish", tag)
		}
	}
}

func TestPublishConcurrentWriters(t *testing.T) {
	mem := store.NewMem()
	tags := []string{"windows-x64", "windows-x86", "linux-x64", "macos-x64", "macos-arm64"}
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, len(tags))
	for _, tag := range tags {
		target := mustTarget(t, tag)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := testReconciler(mem).Publish(ctx, target, testEntry(target, "1.2.0", baseTime))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("publish: %s", err)
		}
	}

	obj, err := mem.Get(ctx, store.ManifestKey("main"))
	if err != nil {
		t.Fatalf("get manifest: %s", err)
	}
	m, err := Parse(obj.Data)
	if err != nil {
		t.Fatalf("parse manifest: %s", err)
	}
	for _, tag := range tags {
		if _, ok := m.Platforms[tag]; !ok {
			t.Errorf("concurrent merge lost the %s entry", tag)
		}
	}
	if m.Version != "1.2.0" {
		t.Errorf("top-level version is %s, expected 1.2.0", m.Version)
	}
}

// createRaceStore makes the first create lose: it seeds a competing
// manifest right before delegating, so PutIfAbsent comes back with a
// conflict and the reconciler has to merge instead.
type createRaceStore struct {
	*store.Mem
	target     platform.Target
	competitor Entry
	raced      bool
}

func (s *createRaceStore) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) error {
	if !s.raced {
		s.raced = true
		m := New()
		m.Apply(s.target, s.competitor, "main", "")
		enc, err := m.Encode()
		if err != nil {
			return err
		}
		if err := s.Mem.PutIfAbsent(ctx, key, enc, contentType); err != nil {
			return err
		}
	}
	return s.Mem.PutIfAbsent(ctx, key, data, contentType)
}

func TestPublishLosesCreateRace(t *testing.T) {
	linux := mustTarget(t, "linux-x64")
	win := mustTarget(t, "windows-x64")
	st := &createRaceStore{
		Mem:        store.NewMem(),
		target:     linux,
		competitor: testEntry(linux, "1.1.0", baseTime),
	}

	m, err := testReconciler(st).Publish(context.Background(), win, testEntry(win, "1.2.0", baseTime.Add(time.Minute)))
	if err != nil {
		t.Fatalf("publish: %s", err)
	}
	if !st.raced {
		t.Fatal("create race never triggered")
	}
	if _, ok := m.Platforms["linux-x64"]; !ok {
		t.Error("merge after the lost create race dropped the linux entry")
	}
	if _, ok := m.Platforms["windows-x64"]; !ok {
		t.Error("windows entry missing after the lost create race")
	}
	if m.Version != "1.2.0" {
		t.Errorf("top-level version is %s, expected 1.2.0", m.Version)
	}
}

// conflictStore rejects every conditional overwrite, standing in for
// a channel with pathological write contention.
type conflictStore struct {
	*store.Mem
}

func (s *conflictStore) PutIfMatch(ctx context.Context, key string, data []byte, contentType, etag string) error {
	return store.ErrConflict
}

func TestPublishGivesUpAfterBudget(t *testing.T) {
	mem := store.NewMem()
	win := mustTarget(t, "windows-x64")
	linux := mustTarget(t, "linux-x64")
	ctx := context.Background()

	if _, err := testReconciler(mem).Publish(ctx, win, testEntry(win, "1.2.0", baseTime)); err != nil {
		t.Fatalf("seed publish: %s", err)
	}

	r := testReconciler(&conflictStore{Mem: mem})
	r.Attempts = 3
	_, err := r.Publish(ctx, linux, testEntry(linux, "1.2.0", baseTime))
	if !errors.Is(err, ErrNotConverged) {
		t.Errorf("expected ErrNotConverged, got %v", err)
	}
}

func TestPublishRefusesCorruptManifest(t *testing.T) {
	mem := store.NewMem()
	win := mustTarget(t, "windows-x64")
	ctx := context.Background()
	key := store.ManifestKey("main")

	if err := mem.Put(ctx, key, []byte("{mangled"), "application/json"); err != nil {
		t.Fatalf("seed: %s", err)
	}
	_, err := testReconciler(mem).Publish(ctx, win, testEntry(win, "1.2.0", baseTime))
	if err == nil {
		t.Fatal("publish over a corrupt manifest succeeded")
	}
	if errors.Is(err, ErrNotConverged) {
		t.Errorf("corrupt manifest misreported as contention: %s", err)
	}
	obj, getErr := mem.Get(ctx, key)
	if getErr != nil {
		t.Fatalf("get: %s", getErr)
	}
	if string(obj.Data) != "{mangled" {
		t.Error("corrupt manifest was overwritten")
	}
}

func TestPublishHonorsCanceledContext(t *testing.T) {
	mem := store.NewMem()
	win := mustTarget(t, "windows-x64")
	linux := mustTarget(t, "linux-x64")

	if _, err := testReconciler(mem).Publish(context.Background(), win, testEntry(win, "1.2.0", baseTime)); err != nil {
		t.Fatalf("seed publish: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := testReconciler(&conflictStore{Mem: mem})
	r.Backoff = time.Minute
	_, err := r.Publish(ctx, linux, testEntry(linux, "1.2.0", baseTime))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
