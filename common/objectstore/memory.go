package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pulse/vidmod/common/apperrors"
)

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// MemoryStore is an in-process blob store for local runs and tests.
// Signed URLs carry an HMAC over bucket, key and expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	bucket  string
	scheme  string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(scheme, bucket, baseURL string, secret []byte) *MemoryStore {
	if baseURL == "" {
		baseURL = "http://localhost/blobs"
	}
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		bucket:  bucket,
		scheme:  scheme,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}
}

// SetClock overrides the store clock (tests)
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Put stores a copy of data under key
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	const op = "objectstore.Put"

	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageWrite, op, "upload cancelled", err)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", apperrors.New(apperrors.KindStorageWrite, op, "object key is empty")
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = memoryObject{data: buf, contentType: contentType, lastModified: m.now()}
	m.mu.Unlock()

	return Location{Scheme: m.scheme, Bucket: m.bucket, Key: key}.String(), nil
}

// Delete removes the blob at uri
func (m *MemoryStore) Delete(ctx context.Context, uri string) bool {
	if ctx.Err() != nil {
		return false
	}
	loc, err := m.locate(uri)
	if err != nil {
		return false
	}

	m.mu.Lock()
	delete(m.objects, loc.Key)
	m.mu.Unlock()
	return true
}

// SignedAccessURL returns an HMAC-signed URL valid for ttl
func (m *MemoryStore) SignedAccessURL(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	const op = "objectstore.SignedAccessURL"

	if ttl <= 0 || ttl > maxPresignExpiry {
		return "", apperrors.New(apperrors.KindStorageRead, op, fmt.Sprintf("invalid signed url ttl %s", ttl))
	}
	loc, err := m.locate(uri)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageRead, op, "malformed storage uri", err)
	}

	m.mu.RLock()
	_, ok := m.objects[loc.Key]
	now := m.now()
	m.mu.RUnlock()
	if !ok {
		return "", apperrors.New(apperrors.KindStorageRead, op, "blob does not exist")
	}

	expires := now.Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", m.sign(loc.Key, expires))
	return fmt.Sprintf("%s/%s/%s?%s", m.baseURL, loc.Bucket, loc.Key, q.Encode()), nil
}

// VerifySignedURL checks the signature and expiry of a URL minted by this store
func (m *MemoryStore) VerifySignedURL(raw string) bool {
	_, ok := m.verify(raw)
	return ok
}

// OpenSigned returns the blob addressed by a URL minted by SignedAccessURL
func (m *MemoryStore) OpenSigned(raw string) ([]byte, string, error) {
	const op = "objectstore.OpenSigned"

	key, ok := m.verify(raw)
	if !ok {
		return nil, "", apperrors.New(apperrors.KindNotFound, op, "link is invalid or expired")
	}

	m.mu.RLock()
	obj, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return nil, "", apperrors.New(apperrors.KindNotFound, op, "blob does not exist")
	}
	return obj.data, obj.contentType, nil
}

// verify returns the object key of a valid, unexpired signed URL
func (m *MemoryStore) verify(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(m.baseURL)
	if err != nil || u.Host != base.Host {
		return "", false
	}
	prefix := strings.TrimSuffix(base.Path, "/") + "/" + m.bucket + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, prefix)
	if key == "" {
		return "", false
	}

	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	if err != nil {
		return "", false
	}
	m.mu.RLock()
	now := m.now()
	m.mu.RUnlock()
	if now.Unix() > expires {
		return "", false
	}

	want := m.sign(key, expires)
	if !hmac.Equal([]byte(want), []byte(u.Query().Get("signature"))) {
		return "", false
	}
	return key, true
}

// Exists reports whether the blob is present
func (m *MemoryStore) Exists(ctx context.Context, uri string) (bool, error) {
	loc, err := m.locate(uri)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[loc.Key]
	return ok, nil
}

// List returns blobs under prefix sorted by key
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	prefix = strings.TrimPrefix(prefix, "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	objects := make([]ObjectInfo, 0, len(keys))
	for _, key := range keys {
		obj := m.objects[key]
		objects = append(objects, ObjectInfo{
			URI:          Location{Scheme: m.scheme, Bucket: m.bucket, Key: key}.String(),
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.lastModified,
		})
	}
	return objects, nil
}

// Len returns the number of stored blobs
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryStore) locate(uri string) (Location, error) {
	loc, err := ParseURI(uri, m.scheme)
	if err != nil {
		return Location{}, err
	}
	if loc.Bucket != m.bucket {
		return Location{}, apperrors.New(apperrors.KindInvalidArgument, "objectstore.locate",
			fmt.Sprintf("bucket %q is not managed by this store", loc.Bucket))
	}
	return loc, nil
}

func (m *MemoryStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", m.bucket, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
