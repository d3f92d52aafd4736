package notify

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// Zabbix sender protocol constants.
const (
	zabbixDefaultPort    = 10051
	zabbixDefaultTimeout = 5 * time.Second
	zabbixHeaderSize     = 13        // "ZBXD\x01" (5) + uint64 length (8)
	maxReplySize         = 64 * 1024 // bound on reply body we are willing to read
)

// zabbixMagic opens every frame of the trapper protocol.
var zabbixMagic = [5]byte{'Z', 'B', 'X', 'D', 0x01}

type zabbixRequest struct {
	Request string       `json:"request"`
	Data    []zabbixItem `json:"data"`
}

type zabbixItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type zabbixResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

// zabbixTimeout returns the configured timeout, or the default.
func zabbixTimeout(cfg *types.ZabbixConfig) time.Duration {
	if cfg.TimeoutMs > 0 {
		return time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return zabbixDefaultTimeout
}

// writeZabbixFrame sends one length-prefixed protocol frame.
func writeZabbixFrame(conn net.Conn, body []byte) error {
	header := make([]byte, zabbixHeaderSize)
	copy(header[0:5], zabbixMagic[:])
	binary.LittleEndian.PutUint64(header[5:], uint64(len(body)))

	if _, err := conn.Write(header); err != nil {
		return util.WrapError("write zabbix header", err)
	}
	if _, err := conn.Write(body); err != nil {
		return util.WrapError("write zabbix payload", err)
	}
	return nil
}

// readZabbixFrame reads one length-prefixed protocol frame.
func readZabbixFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, zabbixHeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, util.WrapError("read zabbix reply header", err)
	}
	if !bytes.Equal(header[0:5], zabbixMagic[:]) {
		return nil, fmt.Errorf("invalid zabbix reply header")
	}

	bodyLen := binary.LittleEndian.Uint64(header[5:zabbixHeaderSize])
	if bodyLen == 0 {
		return nil, fmt.Errorf("empty zabbix reply")
	}
	if bodyLen > maxReplySize {
		return nil, fmt.Errorf("zabbix reply too large: %d bytes (max %d)", bodyLen, maxReplySize)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, util.WrapError("read zabbix reply body", err)
	}
	return body, nil
}

// sendZabbixPayload performs one sender exchange with the trapper port.
func sendZabbixPayload(cfg *types.ZabbixConfig, payload zabbixRequest) error {
	port := cfg.Port
	if port == 0 {
		port = zabbixDefaultPort
	}
	timeout := zabbixTimeout(cfg)

	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return util.WrapError("connect to zabbix", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return util.WrapError("set deadline", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal zabbix payload", err)
	}
	if err := writeZabbixFrame(conn, body); err != nil {
		return err
	}

	reply, err := readZabbixFrame(conn)
	if err != nil {
		return err
	}

	var resp zabbixResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return util.WrapError("parse zabbix reply", err)
	}
	if resp.Response == "failed" {
		return fmt.Errorf("zabbix rejected data: %s", resp.Info)
	}

	// "processed: 0; failed: 0" means the server accepted the frame but
	// matched no item, which points at a host or key mismatch.
	if strings.Contains(resp.Info, "processed: 0;") && strings.Contains(resp.Info, "failed: 0;") {
		return fmt.Errorf("zabbix processed no items (check host/key config)")
	}

	return nil
}

// sendZabbixEvent pushes one value to the configured trapper item.
// An incomplete configuration is silently skipped.
func sendZabbixEvent(cfg *types.ZabbixConfig, value string) error {
	if cfg == nil || !util.IsConfigured(cfg.Server, cfg.Host, cfg.Key) {
		return nil
	}
	req := zabbixRequest{
		Request: "sender data",
		Data:    []zabbixItem{{Host: cfg.Host, Key: cfg.Key, Value: value}},
	}
	return sendZabbixPayload(cfg, req)
}

// SendNoiseZabbix sends a noise alert to Zabbix.
func SendNoiseZabbix(cfg *types.ZabbixConfig, levelDB, thresholdDB float64) error {
	return sendZabbixEvent(cfg,
		fmt.Sprintf("event=NOISE level=%.1f threshold=%.1f", levelDB, thresholdDB))
}

// SendRecoveryZabbix reports the end of a noise episode to Zabbix.
func SendRecoveryZabbix(cfg *types.ZabbixConfig, durationMs int64, levelDB, peakDB, thresholdDB float64) error {
	return sendZabbixEvent(cfg,
		fmt.Sprintf("event=RECOVERY duration_ms=%d level=%.1f peak=%.1f threshold=%.1f",
			durationMs, levelDB, peakDB, thresholdDB))
}

// SendTestZabbix pushes a test value so the server-side item can be checked.
func SendTestZabbix(cfg *types.ZabbixConfig) error {
	return sendZabbixEvent(cfg, "event=TEST source=zwfm-noisewatch")
}
