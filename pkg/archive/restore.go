package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RestoreParams holds all inputs needed to restore an archive.
type RestoreParams struct {
	ArchivePath string // Path to the .tar.gz archive
	BoltDest    string // Destination for the bolt snapshot (empty = skip)
	AuditDest   string // Destination for the audit database (empty = skip)
	WorldDest   string // Destination for the world file (empty = skip)
	ConfDest    string // Destination for the config file (empty = skip)
	Overwrite   bool   // Replace a differing world or config file
}

// RestoreResult summarizes a completed restore operation.
type RestoreResult struct {
	Manifest      Manifest
	FilesRestored int
	Warnings      []string
}

// RestoreArchive verifies every checksum in an archive before copying its
// members to their destinations. The bolt snapshot and audit database are
// always replaced; a world or config file that differs from the archived copy
// is only replaced with Overwrite set.
func RestoreArchive(p RestoreParams) (*RestoreResult, error) {
	tmpDir, err := os.MkdirTemp("", "gridadmin-restore-*")
	if err != nil {
		return nil, fmt.Errorf("restore: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extractArchive(p.ArchivePath, tmpDir); err != nil {
		return nil, fmt.Errorf("restore: extract: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, memberManifest))
	if err != nil {
		return nil, fmt.Errorf("restore: manifest.json not found in archive")
	}
	result := &RestoreResult{}
	if err := json.Unmarshal(data, &result.Manifest); err != nil {
		return nil, fmt.Errorf("restore: parse manifest: %w", err)
	}

	for archName, entry := range result.Manifest.Files {
		ok, err := validateChecksum(filepath.Join(tmpDir, filepath.FromSlash(archName)), entry.SHA256)
		if err != nil {
			return nil, fmt.Errorf("restore: checksum %s: %w", archName, err)
		}
		if !ok {
			return nil, fmt.Errorf("restore: checksum mismatch for %s, archive may be corrupt", archName)
		}
	}

	restore := func(member, dest string) error {
		src := filepath.Join(tmpDir, filepath.FromSlash(member))
		if dest == "" {
			return nil
		}
		if _, err := os.Stat(src); err != nil {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("restore: create dir for %s: %w", dest, err)
		}
		if err := copyFile(src, dest); err != nil {
			return fmt.Errorf("restore: copy %s: %w", member, err)
		}
		result.FilesRestored++
		return nil
	}

	if err := restore(memberBolt, p.BoltDest); err != nil {
		return nil, err
	}
	if err := restore(memberAudit, p.AuditDest); err != nil {
		return nil, err
	}

	for _, text := range []struct{ kind, dest string }{{"world", p.WorldDest}, {"conf", p.ConfDest}} {
		if text.dest == "" {
			continue
		}
		member := memberOfType(result.Manifest, text.kind)
		if member == "" {
			continue
		}
		same, exists, err := sameContent(filepath.Join(tmpDir, filepath.FromSlash(member)), text.dest)
		if err != nil {
			return nil, fmt.Errorf("restore: compare %s: %w", text.dest, err)
		}
		if same {
			continue
		}
		if exists && !p.Overwrite {
			result.Warnings = append(result.Warnings, fmt.Sprintf("kept current %s file %s (differs from archive)", text.kind, text.dest))
			continue
		}
		if err := restore(member, text.dest); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// memberOfType returns the first archive member of the given type.
func memberOfType(m Manifest, typ string) string {
	for name, e := range m.Files {
		if e.Type == typ {
			return name
		}
	}
	return ""
}

// sameContent compares src with dest, reporting whether dest exists.
func sameContent(src, dest string) (same, exists bool, err error) {
	want, err := os.ReadFile(src)
	if err != nil {
		return false, false, err
	}
	have, err := os.ReadFile(dest)
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return bytes.Equal(want, have), true, nil
}

// extractArchive extracts a .tar.gz to a destination directory.
func extractArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(filepath.Clean(target), root) {
			return fmt.Errorf("invalid archive entry: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateChecksum checks a file's SHA-256 against the expected hex string.
func validateChecksum(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == expected, nil
}
