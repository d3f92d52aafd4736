package audio

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/malgo"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// newContext initializes a miniaudio context for the platform backend.
// Contexts are opened and closed per operation, matching the per-operation
// device policy of the monitor loop.
func newContext() (*malgo.AllocatedContext, error) {
	return malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
}

// closeContext tears a context down, logging instead of returning errors.
func closeContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		slog.Warn("failed to uninit audio context", "error", err)
	}
	ctx.Free()
}

// ListDevices enumerates the available capture and playback devices.
func ListDevices() (types.DeviceList, error) {
	ctx, err := newContext()
	if err != nil {
		return types.DeviceList{}, util.WrapError("initialize audio context", err)
	}
	defer closeContext(ctx)

	inputs, err := enumerate(ctx, malgo.Capture)
	if err != nil {
		return types.DeviceList{}, util.WrapError("list capture devices", err)
	}
	outputs, err := enumerate(ctx, malgo.Playback)
	if err != nil {
		return types.DeviceList{}, util.WrapError("list playback devices", err)
	}

	return types.DeviceList{Inputs: inputs, Outputs: outputs}, nil
}

func enumerate(ctx *malgo.AllocatedContext, kind malgo.DeviceType) ([]types.AudioDevice, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, err
	}

	devices := make([]types.AudioDevice, 0, len(infos))
	for i := range infos {
		info := &infos[i]
		devices = append(devices, types.AudioDevice{
			ID:      deviceID(info),
			Name:    info.Name(),
			Default: info.IsDefault == 1,
		})
	}
	return devices, nil
}

// deviceID renders the backend identifier as a readable string. ALSA and
// CoreAudio IDs are ASCII under the hex encoding; other backends fall back
// to the raw hex form.
func deviceID(info *malgo.DeviceInfo) string {
	decoded, err := hexToASCII(info.ID.String())
	if err != nil || decoded == "" {
		return info.ID.String()
	}
	return decoded
}

// hexToASCII converts a hex-encoded identifier to a trimmed ASCII string.
func hexToASCII(hexStr string) (string, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

// findDevice resolves a configured device name to a backend device.
// A device matches on its decoded ID or on a substring of its display name,
// mirroring what the device listing shows the operator.
func findDevice(ctx *malgo.AllocatedContext, kind malgo.DeviceType, name string) (*malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, util.WrapError("list devices", err)
	}

	for i := range infos {
		info := &infos[i]
		if deviceID(info) == name || strings.Contains(info.Name(), name) {
			return info, nil
		}
	}

	return nil, fmt.Errorf("no %s device matches %q", direction(kind), name)
}

func direction(kind malgo.DeviceType) string {
	if kind == malgo.Capture {
		return "capture"
	}
	return "playback"
}
