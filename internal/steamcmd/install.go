package steamcmd

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	windowsURL = "https://steamcdn-a.akamaihd.net/client/installer/steamcmd.zip"
	linuxURL   = "https://steamcdn-a.akamaihd.net/client/installer/steamcmd_linux.tar.gz"
)

// Ensure makes sure the steamcmd executable exists at c.Path, downloading and
// unpacking the official bootstrap archive next to it when it does not.
func (c *Client) Ensure(ctx context.Context) error {
	if _, err := os.Stat(c.Path); err == nil {
		return nil
	}

	url := linuxURL
	if runtime.GOOS == "windows" {
		url = windowsURL
	}

	destDir := filepath.Dir(c.Path)
	log.Info().Str("url", url).Str("dir", destDir).Msg("steamcmd not detected, downloading")

	if err := downloadAndUnpack(ctx, url, destDir); err != nil {
		return fmt.Errorf("could not install steamcmd: %w", err)
	}

	if _, err := os.Stat(c.Path); err != nil {
		return fmt.Errorf("%w after installation: %s", ErrNotFound, c.Path)
	}
	if runtime.GOOS != "windows" {
		_ = os.Chmod(c.Path, 0755)
	}
	return nil
}

func downloadAndUnpack(ctx context.Context, url, destDir string) error {
	ext := ".tar.gz"
	if strings.HasSuffix(url, ".zip") {
		ext = ".zip"
	}

	tmpFile, err := os.CreateTemp("", "steamcmd-*"+ext)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func(p string) { _ = os.Remove(p) }(tmpPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		_ = tmpFile.Close()
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("network error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_ = tmpFile.Close()
		return fmt.Errorf("download error: %d", resp.StatusCode)
	}

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("error closing temp file: %w", err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	if ext == ".zip" {
		return unzip(tmpPath, destDir)
	}
	return untar(tmpPath, destDir)
}

func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	if target == filepath.Clean(destDir) {
		return target, nil
	}
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return target, nil
}

func unzip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := writeFromZip(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeFromZip(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode()|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func untar(src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
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
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)|0600)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
