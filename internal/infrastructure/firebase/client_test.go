package firebase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lightswitch/internal/infrastructure/config"
)

// fakeRTDB is an in-memory Realtime Database holding one JSON value per
// top-level path.
type fakeRTDB struct {
	mu        sync.Mutex
	values    map[string]json.RawMessage
	token     string
	failWith  int
	requests  []string
	lastPrint string
}

func newFakeRTDB(t *testing.T) (*fakeRTDB, *httptest.Server) {
	t.Helper()
	db := &fakeRTDB{values: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(db)
	t.Cleanup(srv.Close)
	return db, srv
}

func (db *fakeRTDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.requests = append(db.requests, r.Method+" "+r.URL.RequestURI())
	db.lastPrint = r.Header.Get("X-Firebase-Print")

	if db.token != "" && r.Header.Get("Authorization") != "Bearer "+db.token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Unauthorized request."}`)
		return
	}
	if db.failWith != 0 {
		w.WriteHeader(db.failWith)
		_, _ = io.WriteString(w, `{"error":"Service unavailable"}`)
		return
	}

	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json")
	body, _ := io.ReadAll(r.Body)

	switch r.Method {
	case http.MethodGet:
		if path == "" {
			_, _ = io.WriteString(w, "{}")
			return
		}
		v, ok := db.values[path]
		if !ok {
			_, _ = io.WriteString(w, "null")
			return
		}
		_, _ = w.Write(v)
	case http.MethodPut:
		db.values[path] = body
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(db.values, path)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPatch:
		var updates map[string]json.RawMessage
		if err := json.Unmarshal(body, &updates); err != nil || path != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for k, v := range updates {
			if string(v) == "null" {
				delete(db.values, k)
				continue
			}
			db.values[k] = v
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{url: "https://demo-default-rtdb.firebaseio.com"},
		{url: "https://demo-default-rtdb.europe-west1.firebasedatabase.app/"},
		{url: "", wantErr: true},
		{url: "demo.firebaseio.com", wantErr: true},
		{url: "ftp://demo.firebaseio.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := NewClient(tt.url, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNotConfigured) {
				t.Errorf("error = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestClient_GetSet(t *testing.T) {
	db, srv := newFakeRTDB(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "states"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
	}

	if err := c.Set(ctx, "states", map[string]bool{"led1": true, "led2": false}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if db.lastPrint != "silent" {
		t.Errorf("X-Firebase-Print = %q, want silent", db.lastPrint)
	}

	v, ok, err := c.Get(ctx, "states")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	want := map[string]any{"led1": true, "led2": false}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("Get() = %#v, want %#v", v, want)
	}

	if err := c.Set(ctx, "states", nil); err != nil {
		t.Fatalf("Set(nil) error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "states"); ok {
		t.Error("path still present after Set(nil)")
	}
}

func TestClient_UpdateIsOneRequest(t *testing.T) {
	db, srv := newFakeRTDB(t)
	c := newTestClient(t, srv)

	err := c.Update(context.Background(), map[string]any{
		"states": map[string]bool{"led1": true, "led2": true},
		"led1":   true,
		"led2":   true,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(db.requests) != 1 || db.requests[0] != "PATCH /.json" {
		t.Errorf("requests = %v, want single PATCH /.json", db.requests)
	}
	if string(db.values["led1"]) != "true" || string(db.values["led2"]) != "true" {
		t.Errorf("values = %v", db.values)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	db, srv := newFakeRTDB(t)
	c := newTestClient(t, srv)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if db.requests[0] != "GET /.json?shallow=true" {
		t.Errorf("request = %q, want shallow root read", db.requests[0])
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		token   string
		wantErr error
	}{
		{name: "server error", status: http.StatusServiceUnavailable, wantErr: ErrRequestFailed},
		{name: "rejected token", token: "expected", wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, srv := newFakeRTDB(t)
			db.failWith, db.token = tt.status, tt.token
			c := newTestClient(t, srv)

			_, _, err := c.Get(context.Background(), "states")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Get() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	_, srv := newFakeRTDB(t)
	c := newTestClient(t, srv)
	srv.Close()

	if err := c.Set(context.Background(), "led1", true); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("Set() error = %v, want ErrRequestFailed", err)
	}
}

func TestClient_EscapesPath(t *testing.T) {
	c, err := NewClient("https://demo.firebaseio.com", nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := c.endpoint("a b/c", nil); got != "https://demo.firebaseio.com/a%20b%2Fc.json" {
		t.Errorf("endpoint() = %q", got)
	}
}

// serviceAccountJSON builds a throwaway service-account key whose token_uri
// points at tokenURL.
func serviceAccountJSON(t *testing.T, tokenURL string) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("encoding key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "lightswitch-test",
		"private_key_id": "test-key",
		"private_key":    string(pemKey),
		"client_email":   "panel@lightswitch-test.iam.gserviceaccount.com",
		"client_id":      "1234567890",
		"token_uri":      tokenURL,
	})
	if err != nil {
		t.Fatalf("encoding service account: %v", err)
	}
	return string(data)
}

func newTokenServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("assertion") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConnect_AuthenticatesWithServiceAccount(t *testing.T) {
	tokenSrv := newTokenServer(t, http.StatusOK)
	db, srv := newFakeRTDB(t)
	db.token = "test-token"

	c, err := Connect(context.Background(), config.FirebaseConfig{
		DatabaseURL:        srv.URL,
		ServiceAccountJSON: serviceAccountJSON(t, tokenSrv.URL),
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.Set(context.Background(), "led1", true); err != nil {
		t.Fatalf("Set() with service account error = %v", err)
	}
}

func TestConnect_RejectedCredentialsSurfaceOnRequest(t *testing.T) {
	tokenSrv := newTokenServer(t, http.StatusBadRequest)
	_, srv := newFakeRTDB(t)

	c, err := Connect(context.Background(), config.FirebaseConfig{
		DatabaseURL:        srv.URL,
		ServiceAccountJSON: serviceAccountJSON(t, tokenSrv.URL),
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("Connect() error = %v, want lazy failure", err)
	}

	if _, _, err := c.Get(context.Background(), "states"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Get() error = %v, want ErrUnauthorized", err)
	}
}

func TestConnect_ConfigurationErrors(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(keyFile, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     config.FirebaseConfig
		wantErr error
	}{
		{
			name:    "missing url",
			cfg:     config.FirebaseConfig{ServiceAccountJSON: "{}"},
			wantErr: ErrNotConfigured,
		},
		{
			name:    "missing credentials",
			cfg:     config.FirebaseConfig{DatabaseURL: "https://demo.firebaseio.com"},
			wantErr: ErrNotConfigured,
		},
		{
			name: "missing key file",
			cfg: config.FirebaseConfig{
				DatabaseURL:        "https://demo.firebaseio.com",
				ServiceAccountFile: filepath.Join(t.TempDir(), "absent.json"),
			},
			wantErr: ErrNotConfigured,
		},
		{
			name: "malformed key file",
			cfg: config.FirebaseConfig{
				DatabaseURL:        "https://demo.firebaseio.com",
				ServiceAccountFile: keyFile,
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name: "malformed inline key",
			cfg: config.FirebaseConfig{
				DatabaseURL:        "https://demo.firebaseio.com",
				ServiceAccountJSON: `{"type":"service_account"`,
			},
			wantErr: ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Connect(context.Background(), tt.cfg, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Connect() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
