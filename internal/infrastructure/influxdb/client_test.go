package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gymdesk/internal/infrastructure/config"
	"github.com/nerrad567/gymdesk/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	reject bool // answer writes with 400
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		if f.reject {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"code":"invalid","message":"bad line protocol"}`) //nolint:errcheck // test server
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "gymdesk-test-token",
		Org:           "gymdesk",
		Bucket:        "events",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := influxdb.Connect(context.Background(), testConfig("http://127.0.0.1:59999"))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndHealthCheck(t *testing.T) {
	srv := httptest.NewServer(&fakeInflux{})
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteEvent(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	client.WriteEvent("payment.recorded", "usr-1", 49.5, at)
	client.Flush()

	mu.Lock()
	if writeErr != nil {
		t.Errorf("write error = %v", writeErr)
	}
	mu.Unlock()

	lines := fake.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	line := lines[0]
	for _, want := range []string{"gym_events,", "type=payment.recorded", "user_id=usr-1", "count=1i", "amount=49.5"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteAfterClose(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	client.WriteEvent("attendance.checked_in", "usr-1", 0, time.Now())
	client.Flush()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	if n := len(fake.written()); n != 0 {
		t.Errorf("written after Close = %d, want 0", n)
	}
}

func TestNewEventPoint(t *testing.T) {
	at := time.Now()

	p := influxdb.NewEventPoint("attendance.checked_in", "usr-9", 0, at)
	if p.Name() != influxdb.MeasurementEvents {
		t.Errorf("Name() = %q", p.Name())
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["type"] != "attendance.checked_in" || tags["user_id"] != "usr-9" {
		t.Errorf("tags = %v", tags)
	}

	for _, f := range p.FieldList() {
		if f.Key == "amount" {
			t.Error("check-in point should not carry an amount")
		}
	}

	anon := influxdb.NewEventPoint("system.started", "", 0, at)
	for _, tag := range anon.TagList() {
		if tag.Key == "user_id" {
			t.Error("empty user id should not be tagged")
		}
	}
}

func TestSetOnError(t *testing.T) {
	fake := &fakeInflux{reject: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	failures := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case failures <- err:
		default:
		}
	})

	client.WriteEvent("payment.recorded", "usr-1", 10, time.Now())
	client.Flush()

	select {
	case err := <-failures:
		if err == nil {
			t.Error("callback got nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write failure was not reported")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(&fakeInflux{})
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	for range 2 {
		if err := client.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
