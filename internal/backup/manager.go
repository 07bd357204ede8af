package backup

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"arkmanager/internal/domain"
)

var (
	ErrNothingToBackup = errors.New("no configuration or save files to back up")
	ErrBackupNotFound  = errors.New("backup not found")
)

const timestampFormat = "20060102-150405"

type Manager struct {
	BackupsPath   string
	RetentionDays int
}

func NewManager(backupsPath string, retentionDays int) *Manager {
	return &Manager{
		BackupsPath:   backupsPath,
		RetentionDays: retentionDays,
	}
}

type BackupInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

type Result struct {
	Path  string
	Files int
}

func (m *Manager) profileDir(s domain.ProfileSnapshot) string {
	return filepath.Join(m.BackupsPath, sanitizeFileName(s.Name)+"-"+shortID(s.ID))
}

// sources lists the files that go into an archive: the config files that
// exist, the world save if present, and the player and tribe files next to it.
func sources(s domain.ProfileSnapshot) []string {
	var files []string
	for _, f := range s.ConfigFiles() {
		if fileExists(f) {
			files = append(files, f)
		}
	}

	if !fileExists(s.WorldSaveFile()) {
		return files
	}
	files = append(files, s.WorldSaveFile())

	for _, pattern := range []string{"*.arkprofile", "*.arktribe"} {
		matches, _ := filepath.Glob(filepath.Join(s.SaveDir(), pattern))
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files
}

// CreateBackup archives the profile's config files and world save into
// <backups>/<profile>/<profile>-<timestamp>.zip. Entries are stored relative
// to the install directory so a restore is a plain extract.
func (m *Manager) CreateBackup(ctx context.Context, s domain.ProfileSnapshot) (Result, error) {
	files := sources(s)
	if len(files) == 0 {
		return Result{}, ErrNothingToBackup
	}

	dir := m.profileDir(s)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Result{}, fmt.Errorf("could not create backups directory: %w", err)
	}

	timestamp := time.Now().Format(timestampFormat)
	backupFilePath := filepath.Join(dir, fmt.Sprintf("%s-%s.zip", sanitizeFileName(s.Name), timestamp))
	tempBackupFilePath := backupFilePath + ".temp"

	backupFile, err := os.Create(tempBackupFilePath)
	if err != nil {
		return Result{}, fmt.Errorf("could not create backup file: %w", err)
	}

	zipWriter := zip.NewWriter(backupFile)
	err = func() error {
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := addFile(zipWriter, s.InstallDir, path); err != nil {
				return err
			}
		}
		return nil
	}()

	zipErr := zipWriter.Close()
	fileErr := backupFile.Close()

	if err != nil || zipErr != nil || fileErr != nil {
		_ = os.Remove(tempBackupFilePath)
		if err != nil {
			return Result{}, fmt.Errorf("error creating backup: %w", err)
		}
		return Result{}, fmt.Errorf("error closing files: %v, %v", zipErr, fileErr)
	}

	if err := os.Rename(tempBackupFilePath, backupFilePath); err != nil {
		return Result{}, fmt.Errorf("error renaming temp file: %w", err)
	}

	return Result{Path: backupFilePath, Files: len(files)}, nil
}

func addFile(zw *zip.Writer, root, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(relPath)
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}

func (m *Manager) ListBackups(s domain.ProfileSnapshot) ([]BackupInfo, error) {
	files, err := os.ReadDir(m.profileDir(s))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read backups directory: %w", err)
	}

	var backups []BackupInfo
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".zip") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Name:      file.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].CreatedAt.After(backups[j].CreatedAt) })
	return backups, nil
}

func (m *Manager) DeleteBackup(s domain.ProfileSnapshot, name string) error {
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid backup name")
	}
	backupPath := filepath.Join(m.profileDir(s), name)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}
	return os.Remove(backupPath)
}

// PurgeOld deletes the profile's archives older than the retention window.
// A window of zero or less keeps everything.
func (m *Manager) PurgeOld(s domain.ProfileSnapshot, now time.Time) (int, error) {
	if m.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -m.RetentionDays)

	backups, err := m.ListBackups(s)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.profileDir(s), b.Name)); err != nil {
			return removed, fmt.Errorf("could not remove %s: %w", b.Name, err)
		}
		removed++
	}
	return removed, nil
}

// RestoreBackup extracts an archive over the profile's install directory.
// The server must be stopped.
func (m *Manager) RestoreBackup(s domain.ProfileSnapshot, name string) error {
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid backup name")
	}
	backupPath := filepath.Join(m.profileDir(s), name)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}

	if err := unzip(backupPath, s.InstallDir); err != nil {
		return fmt.Errorf("failed to unzip backup: %w", err)
	}
	return nil
}

func unzip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		fpath := filepath.Join(dest, f.Name)

		if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("%s: illegal file path", fpath)
		}

		if f.FileInfo().IsDir() {
			_ = os.MkdirAll(fpath, os.ModePerm)
			continue
		}

		if err = os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)

		outFile.Close()
		rc.Close()

		if err != nil {
			return err
		}
	}
	return nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, " ", "-")
	reg := regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	sanitized := reg.ReplaceAllString(name, "")
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}
	return sanitized
}
