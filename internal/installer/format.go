package installer

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"dxm/internal/errs"
)

// Format selects how a downloaded archive is unpacked. It is chosen by the
// caller from the target platform and entity kind, never sniffed from content.
type Format int

const (
	// Zip is used for Windows artifacts and every resource archive.
	Zip Format = iota
	// TarXz is used for Linux artifacts.
	TarXz
	// TarGz is used for tar+gzip update archives.
	TarGz
)

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case TarXz:
		return "tar.xz"
	case TarGz:
		return "tar.gz"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Decompress unpacks the archive read from r (size bytes) into dir and
// returns the effective root: dir itself, or the single top-level directory
// every entry shares.
func (f Format) Decompress(r io.ReaderAt, size int64, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.New(errs.IO, "INS_EXTRACT", err)
	}
	var err error
	switch f {
	case Zip:
		err = extractZip(r, size, dir)
	case TarXz:
		var xr io.Reader
		xr, err = xz.NewReader(io.NewSectionReader(r, 0, size))
		if err != nil {
			return "", errs.New(errs.Decode, "INS_XZ", err)
		}
		err = extractTar(xr, dir)
	case TarGz:
		var gr *gzip.Reader
		gr, err = gzip.NewReader(io.NewSectionReader(r, 0, size))
		if err != nil {
			return "", errs.New(errs.Decode, "INS_GZIP", err)
		}
		defer gr.Close()
		err = extractTar(gr, dir)
	default:
		return "", fmt.Errorf("INS_FORMAT: unsupported archive format %s", f)
	}
	if err != nil {
		return "", err
	}
	return unwrapRoot(dir)
}

func extractZip(r io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return errs.New(errs.Decode, "INS_ZIP", err)
	}
	for _, f := range zr.File {
		target, err := entryPath(dir, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errs.New(errs.IO, "INS_EXTRACT", err)
			}
		case mode&os.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return errs.New(errs.Decode, "INS_ZIP", err)
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			rc.Close()
			if err != nil {
				return errs.New(errs.Decode, "INS_ZIP", err)
			}
			if err := writeSymlink(target, string(link)); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return errs.New(errs.Decode, "INS_ZIP", err)
			}
			err = writeFile(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func extractTar(r io.Reader, dir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errs.New(errs.Decode, "INS_TAR", err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg, tar.TypeSymlink, tar.TypeLink:
		default:
			continue
		}
		target, err := entryPath(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errs.New(errs.IO, "INS_EXTRACT", err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := entryPath(dir, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errs.New(errs.IO, "INS_EXTRACT", err)
			}
			if err := os.Link(source, target); err != nil {
				return errs.New(errs.IO, "INS_EXTRACT", err)
			}
		}
	}
}

// entryPath maps an archive entry name to a path inside dir. Names that are
// absolute or climb out of dir are rejected; symlinks already written are
// resolved without leaving dir.
func entryPath(dir, name string) (string, error) {
	clean := filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if clean == "" || clean == "." {
		return dir, nil
	}
	if !filepath.IsLocal(clean) {
		return "", errs.Errorf(errs.PathSafety, "INS_ENTRY_UNSAFE", "archive entry %q escapes extraction root", name)
	}
	target, err := securejoin.SecureJoin(dir, clean)
	if err != nil {
		return "", errs.New(errs.PathSafety, "INS_ENTRY_UNSAFE", err)
	}
	return target, nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.New(errs.IO, "INS_EXTRACT", err)
	}
	if perm&0o600 != 0o600 {
		perm |= 0o600
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errs.New(errs.IO, "INS_EXTRACT", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errs.New(errs.Decode, "INS_EXTRACT", fmt.Errorf("write %s: %w", target, err))
	}
	if err := out.Close(); err != nil {
		return errs.New(errs.IO, "INS_EXTRACT", err)
	}
	return nil
}

func writeSymlink(target, link string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.New(errs.IO, "INS_EXTRACT", err)
	}
	_ = os.Remove(target)
	if err := os.Symlink(link, target); err != nil {
		return errs.New(errs.IO, "INS_EXTRACT", err)
	}
	return nil
}

// unwrapRoot returns the single directory dir contains, or dir when it holds
// anything else.
func unwrapRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errs.New(errs.IO, "INS_EXTRACT", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
