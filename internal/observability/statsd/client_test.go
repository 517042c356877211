package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	withPrefix := &Client{prefix: "zonemaster"}
	tests := map[string]string{
		"test.submitted": "zonemaster.test.submitted",
		" padded ":       "zonemaster.padded",
		"with space":     "zonemaster.with_space",
		"with/slash":     "zonemaster.with_slash",
		".trimmed.":      "zonemaster.trimmed",
		"":               "zonemaster",
	}
	for input, want := range tests {
		if got := withPrefix.metricName(input); got != want {
			t.Fatalf("metricName(%q) = %q, want %q", input, got, want)
		}
	}

	noPrefix := &Client{}
	if got := noPrefix.metricName("test.reaped"); got != "test.reaped" {
		t.Fatalf("metricName without prefix = %q", got)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	got := formatTags(map[string]string{
		"result": " created ",
		"class":  "delegated",
		"":       "ignored",
	})
	want := "|#class:delegated,result:created"
	if got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := formatTags(nil); got != "" {
		t.Fatalf("formatTags(nil) = %q, want empty string", got)
	}
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		1:    "1",
		1.5:  "1.5",
		0.25: "0.25",
	}
	for input, want := range tests {
		if got := formatFloat(input); got != want {
			t.Fatalf("formatFloat(%v) = %q, want %q", input, got, want)
		}
	}
}

func TestDisabledClientDiscards(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("disabled client reports enabled")
	}

	// None of these may panic, including on a nil receiver.
	client.Count("test.submitted", 1, nil)
	client.Gauge("queue.depth", 4, nil)
	client.Timing("test.duration", time.Second, nil)

	var nilClient *Client
	nilClient.Count("test.submitted", 1, nil)
	if nilClient.Enabled() {
		t.Fatal("nil client reports enabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil Close error: %v", err)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{enabled: true, conn: clientConn}
	if !client.Enabled() {
		t.Fatal("expected enabled with active connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected disabled after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestClientEmitsOverUDP(t *testing.T) {
	t.Parallel()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	client, err := NewClient(Config{
		Enabled: true,
		Address: conn.LocalAddr().String(),
		Prefix:  "zonemaster",
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("test.submitted", 1, map[string]string{"result": "created"})

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	buf := make([]byte, 512)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	line := string(buf[:n])
	want := "zonemaster.test.submitted:1|c|#result:created"
	if !strings.Contains(line, want) {
		t.Fatalf("got %q, want line containing %q", line, want)
	}
}
