package deps

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

type extractor func(archive *os.File, size int64, bar *progressbar.ProgressBar, dest string, strip int) error

func getExtractor(url string) (extractor, error) {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return extractZip, nil
	case strings.HasSuffix(url, ".tar.gz"), strings.HasSuffix(url, ".tgz"):
		return compressedTar(func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		}), nil
	case strings.HasSuffix(url, ".tar.bz2"):
		return compressedTar(func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		}), nil
	case strings.HasSuffix(url, ".tar.xz"):
		return compressedTar(func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		}), nil
	default:
		return nil, eris.Errorf("archive format not supported: %s", url)
	}
}

// destPath strips the first strip components from name and joins it with dest. An empty string
// means the entry has to be skipped.
func destPath(dest, name string, strip int) (string, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	parts := strings.Split(name, "/")
	if len(parts) <= strip {
		return "", nil
	}

	rel := filepath.FromSlash(strings.Join(parts[strip:], "/"))
	if rel == "" {
		return "", nil
	}

	result := filepath.Join(dest, rel)
	if result != dest && !strings.HasPrefix(result, dest+string(filepath.Separator)) {
		return "", eris.Errorf("archive entry %s points outside of %s", name, dest)
	}
	return result, nil
}

func writeFile(path string, mode os.FileMode, r io.Reader) error {
	err := os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return f.Close()
}

func extractZip(archive *os.File, size int64, bar *progressbar.ProgressBar, dest string, strip int) error {
	reader, err := zip.NewReader(archive, size)
	if err != nil {
		return eris.Wrap(err, "failed to open zip archive")
	}

	for _, item := range reader.File {
		_ = bar.Add64(int64(item.CompressedSize64))

		itemPath, err := destPath(dest, item.Name, strip)
		if err != nil {
			return err
		}
		if itemPath == "" {
			continue
		}

		if item.FileInfo().IsDir() {
			err = os.MkdirAll(itemPath, 0770)
			if err != nil {
				return eris.Wrapf(err, "failed to create %s", itemPath)
			}
			continue
		}

		err = func() error {
			hdl, err := item.Open()
			if err != nil {
				return eris.Wrapf(err, "failed to read %s from archive", item.Name)
			}
			defer hdl.Close()

			mode := item.Mode().Perm()
			if mode == 0 {
				mode = 0660
			}
			return writeFile(itemPath, mode, hdl)
		}()
		if err != nil {
			return err
		}
	}

	return nil
}

func compressedTar(decompress func(io.Reader) (io.Reader, error)) extractor {
	return func(archive *os.File, size int64, bar *progressbar.ProgressBar, dest string, strip int) error {
		stream, err := decompress(io.TeeReader(archive, bar))
		if err != nil {
			return eris.Wrap(err, "failed to open compressed stream")
		}
		if closer, ok := stream.(io.Closer); ok {
			defer closer.Close()
		}

		return extractTar(tar.NewReader(stream), dest, strip)
	}
}

func extractTar(archive *tar.Reader, dest string, strip int) error {
	for {
		header, err := archive.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "failed to read tar archive")
		}

		itemPath, err := destPath(dest, header.Name, strip)
		if err != nil {
			return err
		}
		if itemPath == "" {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(itemPath, 0770)
			if err != nil {
				return eris.Wrapf(err, "failed to create %s", itemPath)
			}
		case tar.TypeSymlink:
			err = os.MkdirAll(filepath.Dir(itemPath), 0770)
			if err != nil {
				return eris.Wrapf(err, "failed to create %s", filepath.Dir(itemPath))
			}

			err = os.Symlink(header.Linkname, itemPath)
			if err != nil {
				return eris.Wrapf(err, "failed to create symlink %s", itemPath)
			}
		case tar.TypeReg:
			err = writeFile(itemPath, header.FileInfo().Mode().Perm(), archive)
			if err != nil {
				return err
			}
		}
	}
}
