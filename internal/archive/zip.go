// Package archive unpacks survey bundles and locates shapefile companions.
package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/japanese"
)

// maxNesting bounds how deep bundles inside bundles are unpacked.
const maxNesting = 2

// companions are the extensions Extract keeps. Everything else in a bundle
// (readmes, spreadsheets, thumbnails) is skipped.
var companions = map[string]bool{
	".shp": true,
	".shx": true,
	".dbf": true,
	".cpg": true,
	".prj": true,
}

// Extract unpacks the shapefile companions of a survey bundle below destDir
// and returns their paths in archive order. Entries with other extensions
// are skipped. Bundles nested inside the bundle are unpacked into a
// directory named after them. Entry names stored in Shift_JIS are decoded.
func Extract(zipPath, destDir string) ([]string, error) {
	return extract(zipPath, destDir, 0)
}

func extract(zipPath, destDir string, depth int) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	log := zap.L().With(zap.String("component", "archive"), zap.String("bundle", filepath.Base(zipPath)))

	var extracted []string
	skipped := 0
	for _, f := range r.File {
		name := entryName(f)
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case companions[ext]:
			path, err := extractEntry(f, name, destDir)
			if err != nil {
				return extracted, err
			}
			extracted = append(extracted, path)
		case ext == ".zip" && depth < maxNesting:
			nested, err := extractNested(f, name, destDir, depth)
			extracted = append(extracted, nested...)
			if err != nil {
				return extracted, err
			}
		default:
			skipped++
		}
	}
	if skipped > 0 {
		log.Debug("skipped entries", zap.Int("skipped", skipped))
	}
	return extracted, nil
}

// entryName returns the entry's name as UTF-8. Archives built on Japanese
// Windows store names in Shift_JIS without setting the UTF-8 flag.
func entryName(f *zip.File) string {
	if !f.NonUTF8 || utf8.ValidString(f.Name) {
		return f.Name
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().String(f.Name)
	if err != nil {
		return f.Name
	}
	return decoded
}

// extractNested unpacks a bundle stored inside another bundle into
// destDir/<name without .zip>/.
func extractNested(f *zip.File, name, destDir string, depth int) ([]string, error) {
	tmp, err := os.CreateTemp("", "forest-nested-*.zip")
	if err != nil {
		return nil, eris.Wrap(err, "archive: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	err = copyEntry(f, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "archive: close %s", tmp.Name())
	}
	if err != nil {
		return nil, err
	}

	sub, err := safeJoin(destDir, strings.TrimSuffix(name, filepath.Ext(name)))
	if err != nil {
		return nil, err
	}
	return extract(tmp.Name(), sub, depth+1)
}

// extractEntry writes a single entry below destDir.
func extractEntry(f *zip.File, name, destDir string) (string, error) {
	destPath, err := safeJoin(destDir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "archive: create parent directory")
	}

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrapf(err, "archive: create %s", destPath)
	}
	err = copyEntry(f, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "archive: close %s", destPath)
	}
	if err != nil {
		return "", err
	}
	return destPath, nil
}

func copyEntry(f *zip.File, w io.Writer) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "archive: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	if _, err := io.Copy(w, rc); err != nil {
		return eris.Wrapf(err, "archive: read entry %s", f.Name)
	}
	return nil
}

// safeJoin joins name below dir and rejects names that escape it.
func safeJoin(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", eris.Errorf("archive: illegal path %q (zip slip attempt)", name)
	}
	return path, nil
}
