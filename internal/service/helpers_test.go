package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	config "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/maheshrc27/skyqueue/pkg/credman"
	"github.com/stretchr/testify/require"
)

// fakePDS answers the four XRPC calls the client makes.
type fakePDS struct {
	*httptest.Server

	mu            sync.Mutex
	calls         map[string]int
	password      string
	accessJwt     string
	refreshedJwt  string
	uploadStatus  int
	publishStatus []int // consumed one per createRecord call
	lastRecord    map[string]any
	lastBlobType  string
	lastBearer    string
}

func newFakePDS(t *testing.T) *fakePDS {
	t.Helper()
	p := &fakePDS{
		calls:        make(map[string]int),
		password:     "app-pass",
		accessJwt:    "access-1",
		refreshedJwt: "access-2",
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Close)
	return p
}

func (p *fakePDS) count(nsid string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[nsid]
}

func (p *fakePDS) serve(w http.ResponseWriter, r *http.Request) {
	nsid := strings.TrimPrefix(r.URL.Path, "/xrpc/")
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[nsid]++
	p.lastBearer = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	w.Header().Set("Content-Type", "application/json")
	switch nsid {
	case nsidCreateSession:
		var req struct {
			Identifier string `json:"identifier"`
			Password   string `json:"password"`
		}
		_ = json.Unmarshal(body, &req)
		if req.Password != p.password {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"did":        "did:plc:alice",
			"handle":     "alice.test",
			"accessJwt":  p.accessJwt,
			"refreshJwt": "refresh-1",
		})
	case nsidRefreshSession:
		if r.Method != http.MethodPost || p.lastBearer != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"did":        "did:plc:alice",
			"handle":     "alice.test",
			"accessJwt":  p.refreshedJwt,
			"refreshJwt": "refresh-1",
		})
	case nsidUploadBlob:
		p.lastBlobType = r.Header.Get("Content-Type")
		if p.uploadStatus != 0 {
			w.WriteHeader(p.uploadStatus)
			_, _ = w.Write([]byte(`{"error":"BlobTooLarge"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"blob": map[string]any{
				"$type":    "blob",
				"ref":      map[string]string{"$link": "bafkreiblob"},
				"mimeType": p.lastBlobType,
				"size":     len(body),
			},
		})
	case nsidCreateRecord:
		if len(p.publishStatus) > 0 {
			status := p.publishStatus[0]
			p.publishStatus = p.publishStatus[1:]
			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":"ExpiredToken"}`))
				return
			}
		}
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		p.lastRecord, _ = req["record"].(map[string]any)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uri": "at://did:plc:alice/app.bsky.feed.post/3k",
			"cid": "bafyrecord",
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testStore struct {
	creds repository.CredentialsRepository
	opts  repository.OptionsRepository
}

func newTestStore(t *testing.T, service string) *testStore {
	t.Helper()
	db, err := repository.OpenDatabase(config.DriverSQLite, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv := repository.NewKVRepository(db, config.DriverSQLite)
	s := &testStore{
		creds: repository.NewCredentialsRepository(kv, credman.PlainVault{}),
		opts:  repository.NewOptionsRepository(kv, service),
	}
	require.NoError(t, s.opts.InitDefaults(context.Background()))
	return s
}

func (s *testStore) saveCreds(t *testing.T, password string) {
	t.Helper()
	require.NoError(t, s.creds.Save(context.Background(), &models.Credentials{
		Identifier: "alice.test",
		Password:   password,
	}))
}
