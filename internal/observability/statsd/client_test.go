package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func listen(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listener unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func readPacket(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	buf := make([]byte, 64*1024)
	if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	return string(buf[:n])
}

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  metrics.app  ": "metrics.app",
		"..foo..":         "foo",
		".":               "",
		"":                "",
	}
	for input, want := range tests {
		if got := sanitizePrefix(input); got != want {
			t.Fatalf("sanitizePrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" job/state ":   "job_state",
		"foo..bar":      "foo.bar",
		"alert:sent|x":  "alert_sent_x",
		"cycle.events.": "cycle.events",
		"   ":           "",
	}
	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " tracker "}
	local := map[string]string{"job": " etl_load ", "": "ignored", "env": "stage"}

	want := "|#env:stage,job:etl_load,service:tracker"
	if got := formatTags(global, local); got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := formatTags(nil, nil); got != "" {
		t.Fatalf("formatTags(nil, nil) = %q, want empty string", got)
	}
}

func TestDisabledClientDropsMetrics(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
	client.Count("cycle.events", 1, nil)
	client.Flush()
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	var nilClient *Client
	nilClient.Count("x", 1, nil)
	nilClient.Flush()
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientBatchesLinesIntoOnePacket(t *testing.T) {
	t.Parallel()

	pc := listen(t)
	client, err := NewClient(Config{
		Enabled:       true,
		Address:       pc.LocalAddr().String(),
		FlushInterval: time.Hour,
		GlobalTags:    map[string]string{"host": "tracker01"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("job.state", 1, map[string]string{"state": "RUNNING"})
	client.Gauge("cycle.jobs", 2.5, nil)
	client.Timing("cycle.duration", 1500*time.Microsecond, nil)
	client.Flush()

	want := strings.Join([]string{
		"jobtracker.job.state:1|c|#host:tracker01,state:RUNNING",
		"jobtracker.cycle.jobs:2.5|g|#host:tracker01",
		"jobtracker.cycle.duration:1.5|ms|#host:tracker01",
	}, "\n")
	if got := readPacket(t, pc); got != want {
		t.Fatalf("packet mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestClientSplitsOversizedBatches(t *testing.T) {
	t.Parallel()

	pc := listen(t)
	client, err := NewClient(Config{
		Enabled:       true,
		Address:       pc.LocalAddr().String(),
		Prefix:        "t",
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	long := strings.Repeat("x", MaxPacketSize-10)
	client.Count(long, 1, nil)
	client.Count("second", 1, nil)

	first := readPacket(t, pc)
	if first != "t."+long+":1|c" {
		t.Fatalf("first packet has unexpected length %d", len(first))
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if got := readPacket(t, pc); got != "t.second:1|c" {
		t.Fatalf("Close did not flush pending lines, got %q", got)
	}
	if client.Enabled() {
		t.Fatal("expected client to be disabled after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}
}
