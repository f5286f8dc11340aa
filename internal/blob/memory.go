package blob

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type object struct {
	body        []byte
	contentType string
}

// MemoryStore is an in-memory Store for development and testing. Signed URLs
// point at Handler, which checks an HMAC over the key and expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
	ready   bool

	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewMemoryStore creates a store whose signed URLs are rooted at baseURL,
// e.g. "http://localhost:8080/blob".
func NewMemoryStore(baseURL string) *MemoryStore {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)

	return &MemoryStore{
		objects: make(map[string]object),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}
}

// EnsureBucket marks the bucket as created.
func (m *MemoryStore) EnsureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		log.Info().Msg("in-memory certificate bucket created")
	}
	m.ready = true
	return nil
}

// Put stores a copy of body under key.
func (m *MemoryStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = object{body: append([]byte(nil), body...), contentType: contentType}
	return nil
}

// Exists reports whether key has been uploaded.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]
	return ok, nil
}

// PresignGet returns a link to Handler valid for ttl.
func (m *MemoryStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}

	expires := strconv.FormatInt(m.now().Add(ttl).Unix(), 10)

	q := url.Values{}
	q.Set("expires", expires)
	q.Set("sig", m.sign(key, expires))

	return m.baseURL + "/" + key + "?" + q.Encode(), nil
}

// Get returns the stored object, for tests and the dev handler.
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.body...), obj.contentType, true
}

// Handler serves signed GET requests. Mount it with http.StripPrefix so the
// remaining path is the object key.
func (m *MemoryStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		key := strings.TrimPrefix(r.URL.Path, "/")
		expires := r.URL.Query().Get("expires")
		sig := r.URL.Query().Get("sig")

		if !hmac.Equal([]byte(sig), []byte(m.sign(key, expires))) {
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}

		exp, err := strconv.ParseInt(expires, 10, 64)
		if err != nil || m.now().Unix() > exp {
			http.Error(w, "link expired", http.StatusForbidden)
			return
		}

		body, contentType, ok := m.Get(key)
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	})
}

func (m *MemoryStore) sign(key, expires string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}
