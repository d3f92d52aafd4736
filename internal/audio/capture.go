package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// Capture opens the named capture device (system default when name is
// empty), blocks until frames mono 16-bit samples at the given rate have
// been read, and closes the device again. The device is held only for the
// duration of the call; concurrent captures on one device are the caller's
// problem to avoid.
func Capture(ctx context.Context, device string, sampleRate, frames int) ([]int16, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("capture length must be positive, got %d frames", frames)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	mctx, err := newContext()
	if err != nil {
		return nil, util.WrapError("initialize audio context", err)
	}
	defer closeContext(mctx)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	if device != "" {
		info, err := findDevice(mctx, malgo.Capture, device)
		if err != nil {
			return nil, err
		}
		cfg.Capture.DeviceID = info.ID.Pointer()
	}

	var (
		mu      sync.Mutex
		samples = make([]int16, 0, frames)
		done    = make(chan struct{})
		once    sync.Once
	)

	onRecv := func(_, pIn []byte, frameCount uint32) {
		mu.Lock()
		for i := 0; i+1 < len(pIn) && len(samples) < frames; i += 2 {
			samples = append(samples, int16(binary.LittleEndian.Uint16(pIn[i:])))
		}
		filled := len(samples) >= frames
		mu.Unlock()

		if filled {
			once.Do(func() { close(done) })
		}
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return nil, util.WrapError("open capture device", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return nil, util.WrapError("start capture device", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := dev.Stop(); err != nil {
		slog.Warn("failed to stop capture device", "error", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return samples[:frames], nil
}
