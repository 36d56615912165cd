package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/i474232898/spotter-data-pull/internal/wave"
)

var (
	// ErrNotFound is returned when no artifact is stored for a device or day.
	ErrNotFound = errors.New("no wave data stored")

	// ErrInvalidDevice is returned for device IDs that cannot be used as a
	// directory name.
	ErrInvalidDevice = errors.New("invalid device id")
)

const artifactExt = ".json"

// FileStore persists one JSON document per device per day under
// <root>/<device>/<device>_<YYYYMMDD>.json.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at root. Nothing is created on disk
// until Prepare or Save is called.
func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("store: output directory is required")
	}
	return &FileStore{root: filepath.Clean(root)}, nil
}

// Root returns the output directory.
func (s *FileStore) Root() string {
	return s.root
}

// Prepare creates the root and a subdirectory for each device.
// It is idempotent.
func (s *FileStore) Prepare(devices []wave.Device) error {
	for _, d := range devices {
		if err := checkDevice(d); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("store: ensure root: %w", err)
	}
	for _, d := range devices {
		if err := os.MkdirAll(s.deviceDir(d), 0o755); err != nil {
			return fmt.Errorf("store: ensure device dir: %w", err)
		}
	}
	return nil
}

// Path returns the artifact path for (device, day).
func (s *FileStore) Path(device wave.Device, day wave.Day) string {
	name := fmt.Sprintf("%s_%s%s", device, day.Compact(), artifactExt)
	return filepath.Join(s.deviceDir(device), name)
}

// Save writes doc indented by two spaces, replacing any previous artifact.
// The document goes to a temp file first so a failed write leaves the
// previous artifact intact.
func (s *FileStore) Save(device wave.Device, day wave.Day, doc json.RawMessage) error {
	if err := checkDevice(device); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(doc), "", "  "); err != nil {
		return fmt.Errorf("%w: %v", wave.ErrMalformedPayload, err)
	}

	dir := s.deviceDir(device)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: ensure device dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".wave-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.Path(device, day)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}

// Devices lists device directories under the root, sorted by name.
func (s *FileStore) Devices() ([]wave.Device, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []wave.Device{}, nil
		}
		return nil, err
	}

	devices := []wave.Device{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			devices = append(devices, wave.Device(e.Name()))
		}
	}
	return devices, nil
}

// Days lists the days stored for a device in ascending order.
func (s *FileStore) Days(device wave.Device) ([]wave.Day, error) {
	if err := checkDevice(device); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.deviceDir(device))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	prefix := string(device) + "_"
	var days []wave.Day
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		day, err := wave.ParseCompactDay(strings.TrimSuffix(strings.TrimPrefix(name, prefix), artifactExt))
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// Load returns the stored document for (device, day).
func (s *FileStore) Load(device wave.Device, day wave.Day) (json.RawMessage, error) {
	if err := checkDevice(device); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(device, day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Latest returns the most recent day stored for a device and its document.
func (s *FileStore) Latest(device wave.Device) (wave.Day, json.RawMessage, error) {
	days, err := s.Days(device)
	if err != nil {
		return wave.Day{}, nil, err
	}
	if len(days) == 0 {
		return wave.Day{}, nil, ErrNotFound
	}
	day := days[len(days)-1]
	doc, err := s.Load(device, day)
	if err != nil {
		return wave.Day{}, nil, err
	}
	return day, doc, nil
}

// Document is one stored artifact.
type Document struct {
	Day  wave.Day
	Data json.RawMessage
}

// Range returns all documents for a device between from and to (inclusive).
func (s *FileStore) Range(device wave.Device, rng wave.DateRange) ([]Document, error) {
	days, err := s.Days(device)
	if err != nil {
		return nil, err
	}

	var result []Document
	for _, day := range days {
		if day.Before(rng.Start) || day.After(rng.End) {
			continue
		}
		doc, err := s.Load(device, day)
		if err != nil {
			return nil, err
		}
		result = append(result, Document{Day: day, Data: doc})
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

func (s *FileStore) deviceDir(device wave.Device) string {
	return filepath.Join(s.root, string(device))
}

// checkDevice prevents device IDs from escaping the output root.
func checkDevice(device wave.Device) error {
	id := string(device)
	if strings.TrimSpace(id) == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, id)
	}
	return nil
}

var _ wave.Store = (*FileStore)(nil)
