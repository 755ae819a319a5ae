package adapter

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	storage "github.com/supabase-community/storage-go"
	"go.uber.org/zap"
)

// StorageGateway is the object store holding originals and previews.
// Put is an upsert, so repeating it with the same key is safe.
type StorageGateway interface {
	Put(ctx context.Context, data []byte, key, contentType string) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// OriginalKey is where the full resolution upload of photoID is stored.
// Keys are unique per photo, so same-named uploads never share an object.
func OriginalKey(eventID, photoID, filename string) string {
	return fmt.Sprintf("events/%s/originals/%s-%s", eventID, photoID, sanitizeFilename(filename))
}

// PreviewKey is where the watermarked preview of photoID is stored.
func PreviewKey(eventID, photoID, filename string) string {
	name := sanitizeFilename(filename)
	stem := strings.TrimSuffix(name, path.Ext(name))
	return fmt.Sprintf("events/%s/previews/%s-%s.jpg", eventID, photoID, stem)
}

// EventPrefix holds every object of an event.
func EventPrefix(eventID string) string {
	return fmt.Sprintf("events/%s/", eventID)
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == "/" {
		return "upload"
	}
	return name
}

// SupabaseStorage stores objects in a Supabase storage bucket.
type SupabaseStorage struct {
	client  *storage.Client
	bucket  string
	baseURL string
	logger  *zap.Logger
}

// NewSupabaseStorage creates a storage gateway for bucket.
func NewSupabaseStorage(supabaseURL, serviceKey, bucket string, logger *zap.Logger) *SupabaseStorage {
	baseURL := strings.TrimRight(supabaseURL, "/")
	return &SupabaseStorage{
		client:  storage.NewClient(baseURL+"/storage/v1", serviceKey, nil),
		bucket:  bucket,
		baseURL: baseURL,
		logger:  logger,
	}
}

// PublicURL returns the public URL of key.
func (s *SupabaseStorage) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

// Put uploads data under key, overwriting any existing object.
func (s *SupabaseStorage) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upsert := true
	if _, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// Get downloads the object at key.
func (s *SupabaseStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the given objects.
func (s *SupabaseStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, keys); err != nil {
		return fmt.Errorf("remove %d objects: %w", len(keys), err)
	}
	return nil
}

// DeletePrefix removes every object below prefix. Listing is not recursive
// in the storage API, so folders are walked explicitly.
func (s *SupabaseStorage) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.list(ctx, strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	const chunk = 500
	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.Delete(ctx, keys[start:end]...); err != nil {
			return err
		}
	}
	s.logger.Info("storage prefix deleted", zap.String("prefix", prefix), zap.Int("objects", len(keys)))
	return nil
}

func (s *SupabaseStorage) list(ctx context.Context, folder string) ([]string, error) {
	var keys []string
	const page = 1000
	for offset := 0; ; offset += page {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := s.client.ListFiles(s.bucket, folder, storage.FileSearchOptions{Limit: page, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", folder, err)
		}
		for _, f := range files {
			full := folder + "/" + f.Name
			if f.Id == "" {
				nested, err := s.list(ctx, full)
				if err != nil {
					return nil, err
				}
				keys = append(keys, nested...)
				continue
			}
			keys = append(keys, full)
		}
		if len(files) < page {
			return keys, nil
		}
	}
}

// MemoryStorage keeps objects in process memory. It backs tests and local
// runs without a storage account.
type MemoryStorage struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryStorage creates an empty in-memory store whose URLs start with baseURL.
func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Put stores a copy of data under key.
func (m *MemoryStorage) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return m.baseURL + "/" + key, nil
}

// Get returns a copy of the object at key.
func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, Permanent(fmt.Errorf("object %s not found", key))
	}
	return append([]byte(nil), data...), nil
}

// Delete removes keys; missing keys are ignored.
func (m *MemoryStorage) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
		delete(m.types, k)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *MemoryStorage) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
			delete(m.types, k)
		}
	}
	return nil
}

// Keys lists stored keys in order.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type key was stored with.
func (m *MemoryStorage) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key]
}
