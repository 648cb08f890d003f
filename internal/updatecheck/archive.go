// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// sniffLen is how many leading bytes feed the MIME sniffer; 512 is the
// maximum http.DetectContentType considers.
const sniffLen = 512

var (
	// ErrArchiveNotFound indicates the archive file does not exist.
	ErrArchiveNotFound = errors.New("archive file not found")

	// ErrArchiveTooLarge is the sentinel wrapped by ArchiveTooLargeError.
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")

	// ErrInvalidArchiveType indicates the sniffed MIME type is not a zip archive.
	ErrInvalidArchiveType = errors.New("file is not a zip archive")

	// ErrInvalidZipSignature indicates the file does not start with a valid
	// zip signature.
	ErrInvalidZipSignature = errors.New("invalid zip signature")

	// ErrZipIntegrity is the sentinel wrapped by ZipIntegrityError.
	ErrZipIntegrity = errors.New("zip integrity check failed")

	// zipSignatures are the three valid leading byte sequences of a zip
	// file: local file header, empty archive, and spanned archive markers.
	zipSignatures = [][]byte{
		{'P', 'K', 0x03, 0x04},
		{'P', 'K', 0x05, 0x06},
		{'P', 'K', 0x07, 0x08},
	}

	// zipMIMETypes are the sniffed content types accepted as archives.
	// http.DetectContentType reports "application/octet-stream" for the
	// empty- and spanned-archive markers, which the signature check then
	// vets byte-for-byte.
	zipMIMETypes = map[string]bool{
		"application/zip":              true,
		"application/x-zip-compressed": true,
		"application/octet-stream":     true,
	}
)

type (
	// ArchiveTooLargeError reports a downloaded archive that exceeds the
	// configured size limit. It wraps ErrArchiveTooLarge for errors.Is.
	ArchiveTooLargeError struct {
		Size  int64
		Limit int64
	}

	// ZipIntegrityError reports a structurally broken zip file. It wraps
	// ErrZipIntegrity for errors.Is.
	ZipIntegrityError struct {
		Path  string
		Cause error
	}
)

// Error includes the limit so the log line states which bound was exceeded.
func (e *ArchiveTooLargeError) Error() string {
	return fmt.Sprintf("archive is %d bytes, exceeding the %d byte limit", e.Size, e.Limit)
}

// Unwrap returns ErrArchiveTooLarge so callers can use errors.Is.
func (e *ArchiveTooLargeError) Unwrap() error { return ErrArchiveTooLarge }

// Error describes the integrity failure with its cause.
func (e *ZipIntegrityError) Error() string {
	return fmt.Sprintf("zip integrity check failed for %s: %v", e.Path, e.Cause)
}

// Unwrap returns ErrZipIntegrity so callers can use errors.Is.
func (e *ZipIntegrityError) Unwrap() error { return ErrZipIntegrity }

// ValidateArchive verifies that the file at path is a safe, well-formed
// zip archive before any extraction happens. Checks run in order and
// short-circuit on the first failure:
//
//  1. The file must exist.
//  2. Its size must not exceed maxBytes.
//  3. The sniffed MIME type of the leading bytes must be an archive type.
//  4. The first 4 bytes must be one of the three valid zip signatures.
//  5. The central directory must open and every entry's checksum must verify.
//
// The layering is deliberate: extension checks lie, MIME sniffing cannot
// tell an empty archive from arbitrary bytes, and a correct signature says
// nothing about the central directory, so each check covers a gap left by
// the previous one.
func ValidateArchive(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrArchiveNotFound
		}
		return fmt.Errorf("stat archive: %w", err)
	}

	if maxBytes > 0 && info.Size() > maxBytes {
		return &ArchiveTooLargeError{Size: info.Size(), Limit: maxBytes}
	}

	head, err := readLeadingBytes(path, sniffLen)
	if err != nil {
		return fmt.Errorf("reading archive header: %w", err)
	}

	if !zipMIMETypes[sniffMediaType(head)] {
		return fmt.Errorf("%w: sniffed type %q", ErrInvalidArchiveType, sniffMediaType(head))
	}

	if !hasZipSignature(head) {
		return ErrInvalidZipSignature
	}

	if err := checkZipIntegrity(path); err != nil {
		return &ZipIntegrityError{Path: path, Cause: err}
	}
	return nil
}

// readLeadingBytes returns up to n leading bytes of the file at path.
func readLeadingBytes(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Read-only file handle; close errors are exotic.
		_ = f.Close()
	}()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// sniffMediaType returns the sniffed content type without parameters
// (DetectContentType may append "; charset=...").
func sniffMediaType(head []byte) string {
	mediaType := http.DetectContentType(head)
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.TrimSpace(mediaType)
}

// hasZipSignature reports whether head starts with one of the three valid
// zip marker sequences.
func hasZipSignature(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	for _, sig := range zipSignatures {
		if bytes.Equal(head[:4], sig) {
			return true
		}
	}
	return false
}

// checkZipIntegrity opens the archive's central directory and reads every
// entry to EOF, which forces the per-entry CRC32 verification.
func checkZipIntegrity(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = zr.Close() }() // read-only zip handle

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("entry %s: %w", f.Name, err)
		}
		_, copyErr := io.Copy(io.Discard, rc)
		closeErr := rc.Close()
		if copyErr != nil {
			return fmt.Errorf("entry %s: %w", f.Name, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("entry %s: %w", f.Name, closeErr)
		}
	}
	return nil
}

// extractZip unpacks the archive at archivePath into destDir. Entry names
// are confined to destDir (no absolute paths, no path traversal) and each
// entry is size-capped so a crafted archive cannot escape the directory or
// exhaust the disk.
func extractZip(archivePath, destDir string, maxBytes int64) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = zr.Close() }() // read-only zip handle

	for _, f := range zr.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", f.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", f.Name, err)
		}
		if err := extractZipEntry(f, target, maxBytes); err != nil {
			return err
		}
	}
	return nil
}

// extractZipEntry writes a single zip entry to target, capped at maxBytes.
func extractZipEntry(f *zip.File, target string, maxBytes int64) (err error) {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }() // read-only entry handle

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	limit := maxBytes
	if limit <= 0 {
		limit = DefaultMaxArchiveBytes
	}
	if _, err := io.Copy(out, io.LimitReader(rc, limit)); err != nil {
		return fmt.Errorf("extracting entry %s: %w", f.Name, err)
	}
	return nil
}

// safeJoin resolves an archive entry name against destDir, rejecting
// absolute names and any name that would escape the destination.
func safeJoin(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || cleaned == ".." {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}

	target := filepath.Join(destDir, cleaned)
	if target != destDir && !strings.HasPrefix(target, destDir+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	return target, nil
}

// topLevelEntries lists the immediate children of dir for layout-mismatch
// diagnostics. Errors degrade to an empty list; this feeds a log line only.
func topLevelEntries(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
