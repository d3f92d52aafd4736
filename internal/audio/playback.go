package audio

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// playbackDrain is how long to let the device drain its final period
// before tearing it down.
const playbackDrain = 50 * time.Millisecond

// Play renders mono 16-bit samples on the named playback device (system
// default when name is empty), blocking until the buffer has been consumed.
// The device is opened and closed per call.
func Play(ctx context.Context, device string, sampleRate int, pcm []int16) error {
	if len(pcm) == 0 {
		return nil
	}

	mctx, err := newContext()
	if err != nil {
		return util.WrapError("initialize audio context", err)
	}
	defer closeContext(mctx)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)

	if device != "" {
		info, err := findDevice(mctx, malgo.Playback, device)
		if err != nil {
			return err
		}
		cfg.Playback.DeviceID = info.ID.Pointer()
	}

	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	var (
		pos  int
		done = make(chan struct{})
		once sync.Once
	)

	onSend := func(pOut, _ []byte, frameCount uint32) {
		n := copy(pOut, buf[pos:])
		pos += n
		// Zero-fill once the buffer is exhausted.
		for i := n; i < len(pOut); i++ {
			pOut[i] = 0
		}
		if pos >= len(buf) {
			once.Do(func() { close(done) })
		}
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onSend})
	if err != nil {
		return util.WrapError("open playback device", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return util.WrapError("start playback device", err)
	}

	select {
	case <-done:
		// Let the final period reach the hardware before stopping.
		time.Sleep(playbackDrain)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := dev.Stop(); err != nil {
		slog.Warn("failed to stop playback device", "error", err)
	}

	return nil
}
