package landmark

import (
	"bytes"
	"os"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"
)

func newTestLibrary(t *testing.T, dir string) *Library {
	t.Helper()
	return NewLibrary(dir, defaultMaxFeatures, logging.NewTestLogger(t))
}

func snapshotIDs(entries []ReferenceEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestSnapshotSortedIDs(t *testing.T) {
	dir := t.TempDir()
	writeRef(t, dir, "c.png", pngBytes(t, textureImage(1, 128, 128)))
	writeRef(t, dir, "a.png", pngBytes(t, textureImage(2, 128, 128)))
	writeRef(t, dir, "b.JPG", jpegBytes(t, textureImage(3, 128, 128)))
	writeRef(t, dir, "notes.txt", []byte("not an image"))

	lib := newTestLibrary(t, dir)
	entries := lib.Snapshot()

	test.That(t, snapshotIDs(entries), test.ShouldResemble, []string{"a", "b", "c"})
	for _, e := range entries {
		test.That(t, e.Features.Len(), test.ShouldBeGreaterThan, 0)
	}
}

func TestSnapshotSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	writeRef(t, dir, "broken.jpg", []byte("this is not a jpeg"))
	writeRef(t, dir, "temple.png", pngBytes(t, textureImage(4, 128, 128)))

	lib := newTestLibrary(t, dir)
	entries := lib.Snapshot()

	test.That(t, snapshotIDs(entries), test.ShouldResemble, []string{"temple"})
	test.That(t, lib.Len(), test.ShouldEqual, 1)
}

func TestSnapshotMissingDir(t *testing.T) {
	lib := newTestLibrary(t, "/nonexistent/reference_monuments")
	test.That(t, lib.Snapshot(), test.ShouldBeEmpty)
	test.That(t, lib.Len(), test.ShouldEqual, 0)
}

func TestSnapshotWarmCacheMatchesColdScan(t *testing.T) {
	dir := t.TempDir()
	writeRef(t, dir, "fort.png", pngBytes(t, textureImage(5, 128, 128)))
	writeRef(t, dir, "gate.png", pngBytes(t, textureImage(6, 128, 128)))

	lib := newTestLibrary(t, dir)
	cold := lib.Snapshot()
	warm := lib.Snapshot()

	test.That(t, snapshotIDs(warm), test.ShouldResemble, snapshotIDs(cold))
	for i := range cold {
		test.That(t, warm[i].Features.Descriptors, test.ShouldResemble, cold[i].Features.Descriptors)
	}
}

func TestSnapshotInvalidatesOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writeRef(t, dir, "shrine.png", pngBytes(t, textureImage(7, 128, 128)))

	lib := newTestLibrary(t, dir)
	before := lib.Snapshot()
	test.That(t, len(before), test.ShouldEqual, 1)

	writeRef(t, dir, "shrine.png", pngBytes(t, textureImage(8, 128, 128)))
	// mtime granularity on some filesystems is coarse enough to miss a
	// same-instant rewrite, so bump it explicitly.
	future := time.Now().Add(time.Hour)
	test.That(t, os.Chtimes(path, future, future), test.ShouldBeNil)

	after := lib.Snapshot()
	test.That(t, len(after), test.ShouldEqual, 1)
	test.That(t, after[0].ID, test.ShouldEqual, "shrine")
	test.That(t, bytes.Equal(after[0].Features.Descriptors, before[0].Features.Descriptors), test.ShouldBeFalse)
}

func TestSnapshotPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeRef(t, dir, "palace.png", pngBytes(t, textureImage(9, 128, 128)))

	lib := newTestLibrary(t, dir)
	test.That(t, lib.Len(), test.ShouldEqual, 1)

	writeRef(t, dir, "mandapam.png", pngBytes(t, textureImage(10, 128, 128)))
	test.That(t, snapshotIDs(lib.Snapshot()), test.ShouldResemble, []string{"mandapam", "palace"})
}
