package backup

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joseph-ayodele/cobrancas/constants"
)

// CatalogEntry describes one snapshot file on disk.
type CatalogEntry struct {
	Filename string    `json:"filename"`
	Filepath string    `json:"filepath"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Catalog lists snapshot files in a backup directory.
type Catalog struct {
	dir    string
	logger *slog.Logger
}

func NewCatalog(dir string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{dir: dir, logger: logger}
}

// List returns snapshot files newest first by modification time, ties broken by name
// descending. A missing or unreadable directory yields an empty list.
func (c *Catalog) List() []CatalogEntry {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read backup directory", "dir", c.dir, "error", err)
		}
		return []CatalogEntry{}
	}

	out := make([]CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !constants.IsSnapshotFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, CatalogEntry{
			Filename: e.Name(),
			Filepath: filepath.Join(c.dir, e.Name()),
			Size:     info.Size(),
			Created:  changeTime(info).UTC(),
			Modified: info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Modified.Equal(out[j].Modified) {
			return out[i].Modified.After(out[j].Modified)
		}
		return out[i].Filename > out[j].Filename
	})
	return out
}
