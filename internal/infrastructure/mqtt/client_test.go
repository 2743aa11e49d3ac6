package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lightswitch/internal/infrastructure/config"
)

const testBrokerAddr = "127.0.0.1:1883"

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "lightswitch-test",
		},
		QoS:         1,
		TopicPrefix: "lightswitch-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// requireBroker skips the test when no broker is listening locally.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBrokerAddr, 500*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s: %v", testBrokerAddr, err)
	}
	conn.Close() //nolint:errcheck // Probe only
}

// =============================================================================
// Unit Tests (no broker)
// =============================================================================

func TestTopics(t *testing.T) {
	tests := []struct {
		name   string
		topics Topics
		got    func(Topics) string
		want   string
	}{
		{"device state", Topics{Prefix: "home"}, func(tp Topics) string { return tp.DeviceState("led1") }, "home/state/led1"},
		{"system status", Topics{Prefix: "home"}, Topics.SystemStatus, "home/system/status"},
		{"default prefix", Topics{}, func(tp Topics) string { return tp.DeviceState("led2") }, "lightswitch/state/led2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(tt.topics); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildStatusPayload(t *testing.T) {
	raw := buildStatusPayload(statusOffline, "lightswitch", reasonUnexpected)

	var p statusPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("payload is not JSON: %v (%s)", err, raw)
	}
	if p.Status != "offline" || p.ClientID != "lightswitch" || p.Reason != "unexpected_disconnect" {
		t.Errorf("payload = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", p.Timestamp, err)
	}

	online := buildStatusPayload(statusOnline, "lightswitch", "")
	if strings.Contains(online, "reason") {
		t.Errorf("online payload %s should omit reason", online)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth = config.MQTTAuthConfig{Username: "panel", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "lightswitch-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "panel" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil with TLS enabled")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, Topics{Prefix: "home"}, "lightswitch")

	if !opts.WillEnabled || opts.WillTopic != "home/system/status" {
		t.Errorf("will = %v on %q, want enabled on home/system/status", opts.WillEnabled, opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained = %v qos = %d, want retained qos 1", opts.WillRetained, opts.WillQos)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "a/b", qos: 3, wantErr: ErrInvalidQoS},
		{name: "payload too large", topic: "a/b", payload: make([]byte, maxPayloadSize+1), wantErr: ErrPublishFailed},
		{name: "not connected", topic: "a/b", qos: 1, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishDeviceStateDisconnected(t *testing.T) {
	client := &Client{}

	if err := client.PublishDeviceState("led1", true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishDeviceState() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnectAndClose(t *testing.T) {
	requireBroker(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestPublishDeviceStateRetained(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if err := client.PublishDeviceState("led1", true); err != nil {
		t.Fatalf("PublishDeviceState() error = %v", err)
	}

	// A fresh subscriber receives the retained state.
	subOpts := pahomqtt.NewClientOptions().
		AddBroker("tcp://" + testBrokerAddr).
		SetClientID("lightswitch-test-sub")
	sub := pahomqtt.NewClient(subOpts)
	if tok := sub.Connect(); !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscriber connect failed: %v", tok.Error())
	}
	defer sub.Disconnect(100)

	var (
		mu  sync.Mutex
		got *DeviceStatePayload
	)
	received := make(chan struct{}, 1)
	sub.Subscribe(client.Topics().DeviceState("led1"), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		var p DeviceStatePayload
		if json.Unmarshal(msg.Payload(), &p) == nil {
			mu.Lock()
			got = &p
			mu.Unlock()
			select {
			case received <- struct{}{}:
			default:
			}
		}
	})

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("retained device state not received")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Device != "led1" || !got.On {
		t.Errorf("payload = %+v, want led1 on", got)
	}
}
