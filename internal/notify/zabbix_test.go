package notify

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// serveZabbixOnce accepts a single trapper connection, decodes the request
// onto the returned channel and answers with resp.
func serveZabbixOnce(t *testing.T, resp zabbixResponse) (*types.ZabbixConfig, <-chan zabbixRequest) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan zabbixRequest, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		body, err := readZabbixFrame(conn)
		if err != nil {
			return
		}
		var req zabbixRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return
		}
		got <- req

		reply, _ := json.Marshal(resp)
		_ = writeZabbixFrame(conn, reply)
	}()

	cfg := &types.ZabbixConfig{
		Server: "127.0.0.1",
		Port:   ln.Addr().(*net.TCPAddr).Port,
		Host:   "studio-pc",
		Key:    "noise.alert",
	}
	return cfg, got
}

func TestZabbixFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = client.Close() }()
	defer func() { _ = server.Close() }()

	payload := []byte(`{"request":"sender data"}`)
	go func() {
		assert.NoError(t, writeZabbixFrame(client, payload))
	}()

	body, err := readZabbixFrame(server)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestReadZabbixFrameRejectsBadHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  []byte
		wantErr string
	}{
		{
			"bad_magic",
			[]byte{'H', 'T', 'T', 'P', 0x01, 1, 0, 0, 0, 0, 0, 0, 0},
			"invalid zabbix reply header",
		},
		{
			"empty_body",
			[]byte{'Z', 'B', 'X', 'D', 0x01, 0, 0, 0, 0, 0, 0, 0, 0},
			"empty zabbix reply",
		},
		{
			"oversized_body",
			// Length 0x00010001 = 65537, one past the reply cap.
			[]byte{'Z', 'B', 'X', 'D', 0x01, 1, 0, 1, 0, 0, 0, 0, 0},
			"zabbix reply too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer func() { _ = client.Close() }()
			defer func() { _ = server.Close() }()

			go func() {
				_, _ = client.Write(tt.header)
			}()

			_, err := readZabbixFrame(server)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSendZabbixEventSkipsIncompleteConfig(t *testing.T) {
	assert.NoError(t, sendZabbixEvent(nil, "event=TEST"))

	// Server set but no key: nothing is dialed, no error either.
	cfg := &types.ZabbixConfig{Server: "127.0.0.1", Host: "studio-pc"}
	assert.NoError(t, sendZabbixEvent(cfg, "event=TEST"))
}

func TestSendNoiseZabbix(t *testing.T) {
	cfg, got := serveZabbixOnce(t, zabbixResponse{
		Response: "success",
		Info:     "processed: 1; failed: 0; total: 1; seconds spent: 0.000045",
	})

	require.NoError(t, SendNoiseZabbix(cfg, -12.5, -30.0))

	select {
	case req := <-got:
		require.Len(t, req.Data, 1)
		assert.Equal(t, "sender data", req.Request)
		assert.Equal(t, "studio-pc", req.Data[0].Host)
		assert.Equal(t, "noise.alert", req.Data[0].Key)
		assert.Equal(t, "event=NOISE level=-12.5 threshold=-30.0", req.Data[0].Value)
	case <-time.After(2 * time.Second):
		t.Fatal("zabbix server saw no request")
	}
}

func TestSendRecoveryZabbixValue(t *testing.T) {
	cfg, got := serveZabbixOnce(t, zabbixResponse{
		Response: "success",
		Info:     "processed: 1; failed: 0; total: 1; seconds spent: 0.000045",
	})

	require.NoError(t, SendRecoveryZabbix(cfg, 4200, -35.0, -8.2, -30.0))

	select {
	case req := <-got:
		require.Len(t, req.Data, 1)
		assert.Equal(t, "event=RECOVERY duration_ms=4200 level=-35.0 peak=-8.2 threshold=-30.0", req.Data[0].Value)
	case <-time.After(2 * time.Second):
		t.Fatal("zabbix server saw no request")
	}
}

func TestSendZabbixRejectedData(t *testing.T) {
	cfg, _ := serveZabbixOnce(t, zabbixResponse{
		Response: "failed",
		Info:     "invalid item key",
	})

	err := SendTestZabbix(cfg)
	assert.ErrorContains(t, err, "zabbix rejected data: invalid item key")
}

func TestSendZabbixNoItemsProcessed(t *testing.T) {
	cfg, _ := serveZabbixOnce(t, zabbixResponse{
		Response: "success",
		Info:     "processed: 0; failed: 0; total: 1; seconds spent: 0.000045",
	})

	err := SendTestZabbix(cfg)
	assert.ErrorContains(t, err, "zabbix processed no items")
}

func TestZabbixTimeout(t *testing.T) {
	assert.Equal(t, zabbixDefaultTimeout, zabbixTimeout(&types.ZabbixConfig{}))
	assert.Equal(t, 250*time.Millisecond, zabbixTimeout(&types.ZabbixConfig{TimeoutMs: 250}))
}
