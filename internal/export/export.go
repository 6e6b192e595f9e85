// Package export writes workflow entities to a zstd-compressed tar archive
// and loads them back.
//
// Layout: manifest.json first, then one <kind>/<id>.json entry per entity
// in dependency order (projects before the records that reference them).
// Communication messages are written in plain text; the target store
// re-encrypts them when it has a vault.
package export

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mtzanidakis/studioflow/internal/store"
)

const (
	manifestName  = "manifest.json"
	formatVersion = 1
)

type Manifest struct {
	Version   int                `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	Tier      string             `json:"tier"`
	Counts    map[store.Kind]int `json:"counts"`
}

// Summary reports what an export or import touched.
type Summary struct {
	Counts  map[store.Kind]int
	Skipped int
	Bytes   int64
}

func (s Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Export streams every entity in gw to w.
func Export(ctx context.Context, gw *store.Gateway, w io.Writer) (Summary, error) {
	sum := Summary{Counts: make(map[store.Kind]int)}

	byKind := make(map[store.Kind][]store.Entity, len(store.Kinds))
	for _, kind := range store.Kinds {
		list, err := gw.Query(ctx, kind, store.Filter{})
		if err != nil {
			return sum, fmt.Errorf("query %s: %w", kind, err)
		}
		byKind[kind] = list
		sum.Counts[kind] = len(list)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return sum, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	manifest := Manifest{
		Version:   formatVersion,
		CreatedAt: time.Now().UTC(),
		Tier:      gw.Tier(),
		Counts:    sum.Counts,
	}
	if err := writeJSON(tw, manifestName, manifest, manifest.CreatedAt); err != nil {
		return sum, err
	}

	for _, kind := range store.Kinds {
		for _, e := range byKind[kind] {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			name := path.Join(string(kind), e.EntityID()+".json")
			if err := writeJSON(tw, name, e, time.Now()); err != nil {
				return sum, err
			}
		}
	}

	// Close explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return sum, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return sum, fmt.Errorf("close zstd: %w", err)
	}
	return sum, nil
}

func writeJSON(tw *tar.Writer, name string, v any, modTime time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  modTime,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar data: %w", err)
	}
	return nil
}

// ExportFile writes the archive to path.
func ExportFile(ctx context.Context, gw *store.Gateway, outputPath string) (Summary, error) {
	f, err := os.Create(outputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	sum, err := Export(ctx, gw, f)
	if err != nil {
		return sum, err
	}
	if err := f.Close(); err != nil {
		return sum, fmt.Errorf("close file: %w", err)
	}
	if info, err := os.Stat(outputPath); err == nil {
		sum.Bytes = info.Size()
	}
	slog.Info("export complete", "path", outputPath, "entities", sum.Total(), "size", FormatSize(sum.Bytes))
	return sum, nil
}

type ImportOptions struct {
	// Overwrite replaces entities whose id already exists; otherwise they
	// are skipped.
	Overwrite bool
}

// Import saves every entity in the archive read from r.
func Import(ctx context.Context, gw *store.Gateway, r io.Reader, opts ImportOptions) (Summary, error) {
	sum := Summary{Counts: make(map[store.Kind]int)}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return sum, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	sawManifest := false
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		if hdr.Name == manifestName {
			var m Manifest
			if err := json.NewDecoder(tr).Decode(&m); err != nil {
				return sum, fmt.Errorf("decode manifest: %w", err)
			}
			if m.Version > formatVersion {
				return sum, fmt.Errorf("unsupported archive version %d", m.Version)
			}
			sawManifest = true
			continue
		}

		kind, ok := splitEntryPath(hdr.Name)
		if !ok {
			slog.Warn("skipping unknown archive entry", "name", hdr.Name)
			continue
		}
		e := store.NewEntity(kind)
		if err := json.NewDecoder(tr).Decode(e); err != nil {
			return sum, fmt.Errorf("decode %s: %w", hdr.Name, err)
		}

		if !opts.Overwrite {
			existing, err := gw.Get(ctx, kind, e.EntityID())
			if err != nil {
				return sum, err
			}
			if existing != nil {
				sum.Skipped++
				continue
			}
		}
		if _, err := gw.Save(ctx, e); err != nil {
			return sum, fmt.Errorf("save %s: %w", hdr.Name, err)
		}
		sum.Counts[kind]++
	}

	if !sawManifest {
		return sum, errors.New("archive has no manifest")
	}
	return sum, nil
}

// ImportFile loads the archive at path.
func ImportFile(ctx context.Context, gw *store.Gateway, inputPath string, opts ImportOptions) (Summary, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	sum, err := Import(ctx, gw, f, opts)
	if err != nil {
		return sum, err
	}
	slog.Info("import complete", "path", inputPath, "entities", sum.Total(), "skipped", sum.Skipped)
	return sum, nil
}

// splitEntryPath maps "task/<id>.json" to the task kind.
func splitEntryPath(name string) (store.Kind, bool) {
	name = strings.TrimLeft(name, "./")
	dir, file := path.Split(name)
	if file == "" || !strings.HasSuffix(file, ".json") {
		return "", false
	}
	return store.ParseKind(strings.TrimSuffix(dir, "/"))
}

func FormatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
