// Package server manages the files of an installed game server that the
// profile owns: its INI configuration and its network ports.
package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"arkmanager/internal/domain"
)

const maxConfigSize = 10 * 1024 * 1024

var ErrUnknownConfigFile = errors.New("unknown config file")

type FileEntry struct {
	Name         string    `json:"name"`
	Exists       bool      `json:"exists"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// resolve maps a bare file name to one of the profile's config files. Any
// other name, including paths, is rejected.
func resolve(s domain.ProfileSnapshot, name string) (string, error) {
	for _, path := range s.ConfigFiles() {
		if strings.EqualFold(filepath.Base(path), name) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownConfigFile, name)
}

func ListConfigFiles(s domain.ProfileSnapshot) []FileEntry {
	var files []FileEntry
	for _, path := range s.ConfigFiles() {
		entry := FileEntry{Name: filepath.Base(path)}
		if info, err := os.Stat(path); err == nil {
			entry.Exists = true
			entry.Size = info.Size()
			entry.LastModified = info.ModTime()
		}
		files = append(files, entry)
	}
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})
	return files
}

func ReadConfigFile(s domain.ProfileSnapshot, name string) ([]byte, error) {
	path, err := resolve(s, name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("file too large to read (max 10MB)")
	}
	return os.ReadFile(path)
}

// WriteConfigFile replaces the file through a temp file so the server never
// reads a half-written config.
func WriteConfigFile(s domain.ProfileSnapshot, name string, content []byte) error {
	path, err := resolve(s, name)
	if err != nil {
		return err
	}
	return writeAtomic(path, content)
}

func writeAtomic(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	tmp := path + ".temp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
