package repository

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"volume-watcher/internal/config"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

// FileRepository implements domain.SettingsRepository using a flat YAML map.
// This is a secondary adapter.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository creates a new file-based settings repository.
func NewFileRepository(path string) (*FileRepository, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	return &FileRepository{path: path}, nil
}

// Path returns the settings file location.
func (f *FileRepository) Path() string {
	return f.path
}

// Load reads the settings from disk. A missing or empty file yields defaults;
// unknown keys are logged and ignored.
func (f *FileRepository) Load() (domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.DefaultSettings(), nil
		}
		return domain.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (domain.Settings, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.DefaultSettings(), nil
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return domain.Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}

	settings, unknown, err := config.FromMap(domain.DefaultSettings(), values)
	if err != nil {
		return domain.Settings{}, err
	}
	if len(unknown) > 0 {
		logging.Warnf("ignoring unknown settings keys: %s", strings.Join(unknown, ", "))
	}
	return config.Normalize(settings)
}

// Save persists the settings to disk.
func (f *FileRepository) Save(settings domain.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := encode(settings)
	if err != nil {
		return err
	}

	pendingFile, err := renameio.NewPendingFile(f.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending settings file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logging.Debugf("cleanup pending settings file: %v", err)
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace settings: %w", err)
	}
	return nil
}

// encode writes keys in their persisted order.
func encode(settings domain.Settings) ([]byte, error) {
	values := config.ToMap(settings)
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range config.Keys() {
		var value yaml.Node
		if err := value.Encode(values[key]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return buf.Bytes(), nil
}
