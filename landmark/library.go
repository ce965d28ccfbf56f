package landmark

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	"gocv.io/x/gocv"
)

// ReferenceEntry is one exemplar image of the library: its site id (the
// filename with the extension stripped), the file it came from, and its
// extracted features.
type ReferenceEntry struct {
	ID       string
	Path     string
	Features FeatureSet
}

type fileStamp struct {
	path    string
	modTime time.Time
	size    int64
}

type cachedFeatures struct {
	stamp    fileStamp
	features FeatureSet
	ok       bool
}

// Library scans a directory of reference monument images and serves their
// feature sets. Features are cached per file and recomputed only when the
// file's modification time or size changes; Snapshot hands out an immutable
// entries slice, so a refresh never tears a lookup already in progress.
type Library struct {
	dir         string
	maxFeatures int
	logger      logging.Logger

	mu      sync.RWMutex
	cache   map[string]cachedFeatures
	stamps  []fileStamp
	entries []ReferenceEntry
}

// NewLibrary returns a library over the given directory. The directory is
// not scanned until the first Snapshot call.
func NewLibrary(dir string, maxFeatures int, logger logging.Logger) *Library {
	return &Library{
		dir:         dir,
		maxFeatures: maxFeatures,
		logger:      logger,
		cache:       map[string]cachedFeatures{},
	}
}

// Snapshot returns the current reference entries in sorted filename order.
// Entries that fail to decode are skipped; a corrupt reference never aborts
// the scan. A missing or unreadable directory yields an empty library.
func (l *Library) Snapshot() []ReferenceEntry {
	stamps := l.listImages()

	l.mu.RLock()
	if stampsEqual(l.stamps, stamps) {
		entries := l.entries
		l.mu.RUnlock()
		return entries
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if stampsEqual(l.stamps, stamps) {
		return l.entries
	}

	entries := make([]ReferenceEntry, 0, len(stamps))
	cache := make(map[string]cachedFeatures, len(stamps))
	for _, st := range stamps {
		cf, hit := l.cache[st.path]
		if !hit || cf.stamp != st {
			cf = l.extract(st)
		}
		cache[st.path] = cf
		if !cf.ok {
			continue
		}
		id := strings.TrimSuffix(filepath.Base(st.path), filepath.Ext(st.path))
		entries = append(entries, ReferenceEntry{ID: id, Path: st.path, Features: cf.features})
	}

	l.cache = cache
	l.stamps = stamps
	l.entries = entries
	l.logger.Infof("reference library refreshed: %d usable entries", len(entries))
	return entries
}

// Len reports the number of usable reference entries, rescanning first.
func (l *Library) Len() int {
	return len(l.Snapshot())
}

func (l *Library) extract(st fileStamp) cachedFeatures {
	gray := gocv.IMRead(st.path, gocv.IMReadGrayScale)
	if gray.Empty() {
		gray.Close()
		l.logger.Debugf("skipping unreadable reference %q", st.path)
		return cachedFeatures{stamp: st}
	}
	defer gray.Close()

	return cachedFeatures{stamp: st, features: extractMat(gray, l.maxFeatures), ok: true}
}

// listImages enumerates the image files of the library directory. ReadDir
// sorts by filename, which fixes the tie-break order of the scan regardless
// of how the filesystem enumerates the directory.
func (l *Library) listImages() []fileStamp {
	dirEntries, err := os.ReadDir(l.dir)
	if err != nil {
		l.logger.Debugf("cannot read reference dir %q: %v", l.dir, err)
		return nil
	}

	stamps := make([]fileStamp, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !isImageFile(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		stamps = append(stamps, fileStamp{
			path:    filepath.Join(l.dir, de.Name()),
			modTime: info.ModTime(),
			size:    info.Size(),
		})
	}
	return stamps
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func stampsEqual(a, b []fileStamp) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
