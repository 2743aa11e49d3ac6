package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/lightswitch/internal/infrastructure/config"
	"github.com/nerrad567/lightswitch/internal/infrastructure/firebase"
	"github.com/nerrad567/lightswitch/internal/infrastructure/logging"
	"github.com/nerrad567/lightswitch/internal/state"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("LIGHTSWITCH_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("LIGHTSWITCH_CONFIG", "/etc/lightswitch.yaml")
	if got := getConfigPath(); got != "/etc/lightswitch.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if got := cfg.DeviceKeys(); len(got) != 2 || got[0] != "led1" || got[1] != "led2" {
		t.Errorf("default devices = %v, want [led1 led2]", got)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("LIGHTSWITCH_CONFIG", writeConfig(t, "store:\n  backend: carrier-pigeon\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with an invalid backend")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error = %v, want it to name the backend", err)
	}
}

func TestRun_ServesAPI(t *testing.T) {
	port := freePort(t)
	t.Setenv("LIGHTSWITCH_CONFIG", writeConfig(t, fmt.Sprintf(`
store:
  backend: memory
api:
  host: 127.0.0.1
  port: %d
logging:
  level: error
  format: text
  output: stderr
`, port)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server did not become healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	resp, err := http.Post(base+"/api/toggle/led1", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"led1":true}` {
		t.Errorf("toggle = %d %s, want 200 {\"led1\":true}", resp.StatusCode, body)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics endpoint missing runtime collectors")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

// =============================================================================
// Backend selection
// =============================================================================

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestOpenBackend_Memory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendMemory

	be, err := openBackend(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	defer be.Close()

	if _, ok := be.tree.(*state.MemoryTree); !ok {
		t.Errorf("tree = %T, want *state.MemoryTree", be.tree)
	}
}

func TestOpenBackend_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "state", "lightswitch.db")

	be, err := openBackend(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	defer be.Close()

	store := be.newStore(state.MustCatalog("led1", "led2"), state.Options{})
	if !store.Configured() {
		t.Fatal("Configured() = false for sqlite backend")
	}
	ctx := context.Background()
	if _, err := store.Write(ctx, state.Snapshot{"led2": true}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got["led1"] || !got["led2"] {
		t.Errorf("Read() = %v, want led2 on", got)
	}
}

func TestOpenBackend_FirebaseUnconfigured(t *testing.T) {
	t.Setenv("FIREBASE_SERVICE_ACCOUNT", "")
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendFirebase
	cfg.Firebase.DatabaseURL = ""

	be, err := openBackend(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openBackend() error = %v, want startup to continue", err)
	}
	if be.tree != nil {
		t.Fatalf("tree = %T, want nil", be.tree)
	}
	if !errors.Is(be.cause, firebase.ErrNotConfigured) {
		t.Errorf("cause = %v, want ErrNotConfigured", be.cause)
	}

	store := be.newStore(state.MustCatalog("led1", "led2"), state.Options{})
	if store.Configured() {
		t.Error("Configured() = true without a tree")
	}
	if _, err := store.Read(context.Background()); !errors.Is(err, state.ErrNotConfigured) {
		t.Errorf("Read() error = %v, want ErrNotConfigured", err)
	}
}

func TestOpenBackend_FirebaseMalformedKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendFirebase
	cfg.Firebase.DatabaseURL = "https://example-default-rtdb.firebaseio.com"
	cfg.Firebase.ServiceAccountJSON = `{"type":"service_account"`

	be, err := openBackend(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	if be.tree != nil || !errors.Is(be.cause, firebase.ErrInvalidCredentials) {
		t.Errorf("backend = %+v, want nil tree with ErrInvalidCredentials", be)
	}
}

// =============================================================================
// MQTT mirror
// =============================================================================

type fakePublisher struct {
	published map[string]bool
	failOn    string
}

func (f *fakePublisher) PublishDeviceState(device string, on bool) error {
	if device == f.failOn {
		return errors.New("broker gone")
	}
	if f.published == nil {
		f.published = make(map[string]bool)
	}
	f.published[device] = on
	return nil
}

func TestMQTTMirror_PublishesEveryDevice(t *testing.T) {
	pub := &fakePublisher{}
	m := &mqttMirror{publisher: pub, catalog: state.MustCatalog("led1", "led2")}

	if err := m.PublishSnapshot(context.Background(), state.Snapshot{"led1": true, "led2": false}); err != nil {
		t.Fatalf("PublishSnapshot() error = %v", err)
	}
	if len(pub.published) != 2 || !pub.published["led1"] || pub.published["led2"] {
		t.Errorf("published = %v", pub.published)
	}
}

func TestMQTTMirror_ContinuesPastFailure(t *testing.T) {
	pub := &fakePublisher{failOn: "led1"}
	m := &mqttMirror{publisher: pub, catalog: state.MustCatalog("led1", "led2")}

	err := m.PublishSnapshot(context.Background(), state.Snapshot{"led1": true, "led2": true})
	if err == nil || !strings.Contains(err.Error(), "publishing led1") {
		t.Errorf("error = %v, want led1 failure", err)
	}
	if !pub.published["led2"] {
		t.Error("led2 not published after led1 failed")
	}
}

func TestMQTTMirror_StopsOnCancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	m := &mqttMirror{publisher: pub, catalog: state.MustCatalog("led1", "led2")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.PublishSnapshot(ctx, state.Snapshot{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(pub.published) != 0 {
		t.Errorf("published = %v, want nothing", pub.published)
	}
}

// blockingPublisher never returns until released.
type blockingPublisher struct {
	release chan struct{}
}

func (b *blockingPublisher) PublishDeviceState(string, bool) error {
	<-b.release
	return nil
}

func TestMQTTMirror_ReturnsWhenContextExpires(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	defer close(pub.release)
	m := &mqttMirror{publisher: pub, catalog: state.MustCatalog("led1", "led2")}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.PublishSnapshot(ctx, state.Snapshot{"led1": true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("PublishSnapshot() took %v with a stalled broker", elapsed)
	}
}
