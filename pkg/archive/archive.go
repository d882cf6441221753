// Package archive bundles the gridadmin state (world snapshot, audit log,
// world file and config) into checksummed .tar.gz archives.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampFormat is fixed width so manifest timestamps sort lexically.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Archive member names.
const (
	memberBolt     = "data/world.bolt"
	memberAudit    = "data/audit.db"
	memberManifest = "manifest.json"
)

// Manifest describes the contents of an archive.
type Manifest struct {
	Version   int                  `json:"version"`
	Tool      string               `json:"tool"`
	Timestamp string               `json:"timestamp"`
	Grids     int                  `json:"grids"`
	Blocks    int                  `json:"blocks"`
	Files     map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "bolt", "audit", "world", "conf"
}

// Params holds all inputs needed to create an archive.
type Params struct {
	BoltSnapshot    func(destPath string) error // Writes a consistent bolt copy (nil = skip)
	AuditPath       string                      // SQLite audit database (empty = skip)
	AuditCheckpoint func() error                // Checkpoint WAL before copy (nil = skip)
	WorldFile       string                      // YAML world file (empty = skip)
	ConfPath        string                      // Config file (empty = skip)
	Dir             string                      // Output directory
	Grids, Blocks   int                         // Counts for the manifest
}

// CreateArchive writes a .tar.gz of the gridadmin state into p.Dir and
// returns its path.
func CreateArchive(p Params) (string, error) {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", p.Dir, err)
	}

	now := time.Now()
	archivePath := filepath.Join(p.Dir, fmt.Sprintf("archive-%s.tar.gz", now.Format("20060102-150405.000000")))

	tmpDir, err := os.MkdirTemp("", "gridadmin-archive-*")
	if err != nil {
		return "", fmt.Errorf("archive: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	manifest := Manifest{
		Version:   1,
		Tool:      "gridadmin",
		Timestamp: now.UTC().Format(timestampFormat),
		Grids:     p.Grids,
		Blocks:    p.Blocks,
		Files:     make(map[string]FileEntry),
	}

	// Stage snapshots first so a failure leaves no partial archive.
	var boltStaged, auditStaged string
	if p.BoltSnapshot != nil {
		boltStaged = filepath.Join(tmpDir, "world.bolt")
		if err := p.BoltSnapshot(boltStaged); err != nil {
			return "", fmt.Errorf("archive: bolt snapshot: %w", err)
		}
	}
	if p.AuditPath != "" {
		if p.AuditCheckpoint != nil {
			if err := p.AuditCheckpoint(); err != nil {
				return "", fmt.Errorf("archive: audit checkpoint: %w", err)
			}
		}
		auditStaged = filepath.Join(tmpDir, "audit.db")
		if err := copyFile(p.AuditPath, auditStaged); err != nil {
			return "", fmt.Errorf("archive: copy audit db: %w", err)
		}
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	if err := writeArchive(outFile, &manifest, boltStaged, auditStaged, p); err != nil {
		outFile.Close()
		os.Remove(archivePath)
		return "", err
	}
	if err := outFile.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("archive: close %s: %w", archivePath, err)
	}
	return archivePath, nil
}

func writeArchive(out io.Writer, manifest *Manifest, boltStaged, auditStaged string, p Params) error {
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	add := func(src, name, typ string) error {
		entry, err := addFileToTar(tw, src, name)
		if err != nil {
			return err
		}
		entry.Type = typ
		manifest.Files[name] = entry
		return nil
	}

	if boltStaged != "" {
		if err := add(boltStaged, memberBolt, "bolt"); err != nil {
			return err
		}
	}
	if auditStaged != "" {
		if err := add(auditStaged, memberAudit, "audit"); err != nil {
			return err
		}
	}
	if p.WorldFile != "" {
		if _, err := os.Stat(p.WorldFile); err == nil {
			if err := add(p.WorldFile, "world/"+filepath.Base(p.WorldFile), "world"); err != nil {
				return err
			}
		}
	}
	if p.ConfPath != "" {
		if _, err := os.Stat(p.ConfPath); err == nil {
			if err := add(p.ConfPath, "conf/"+filepath.Base(p.ConfPath), "conf"); err != nil {
				return err
			}
		}
	}

	// The manifest goes last so it can list every member.
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    memberManifest,
		Size:    int64(len(manifestJSON)),
		Mode:    0644,
		ModTime: time.Now(),
	}); err != nil {
		return fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		return fmt.Errorf("archive: write manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("archive: close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("archive: close gzip: %w", err)
	}
	return nil
}

// addFileToTar adds a single file to the tar archive with the given archive name,
// computing its SHA-256 while writing.
func addFileToTar(tw *tar.Writer, srcPath, archName string) (FileEntry, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}

	archName = strings.ReplaceAll(archName, "\\", "/")

	if err := tw.WriteHeader(&tar.Header{
		Name:    archName,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", archName, err)
	}

	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", archName, err)
	}

	return FileEntry{
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   written,
	}, nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
