// Package clips captures audio around noise episodes and stores it as WAV
// files, locally and/or in S3.
package clips

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// Clip timing.
	beforeSeconds   = 10
	maxNoiseSeconds = 10
	afterSeconds    = 5
	bufferSeconds   = beforeSeconds + maxNoiseSeconds + afterSeconds

	// Output subdirectory name (inside system temp dir) when no clip
	// directory is configured.
	defaultDirName = "noisewatch-clips"
)

// DefaultDir returns the fallback clip directory.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), defaultDirName)
}

// ClipResult describes a finished clip, or the failure that produced none.
type ClipResult struct {
	// FilePath is the full path to the WAV file.
	FilePath string
	// Filename is the base name of the WAV file.
	Filename string
	// FileSize is the WAV size in bytes.
	FileSize int64
	// Duration is the total noise episode duration.
	Duration time.Duration
	// ClipStart is when the noise episode started.
	ClipStart time.Time
	// Error reports an encoding failure; the other fields are then empty.
	Error error
}

// ClipCallback receives each finished clip.
type ClipCallback func(result *ClipResult)

// Capturer keeps a rolling window of monitor audio and cuts a clip around
// each noise episode: up to 10s before, the last 10s of the noise itself
// and 5s after recovery. One Capturer serves one monitoring session; the
// sample rate is fixed at construction.
type Capturer struct {
	mu sync.Mutex

	sampleRate int

	// Ring buffer for continuous audio capture. Positions are in samples.
	buffer       []int16
	writePos     int
	totalWritten int64

	// Noise episode tracking (positions, not copies).
	noiseStartPos int64     // Sample position when the episode started
	noiseEndPos   int64     // Sample position when audio went quiet again
	noiseStart    time.Time // Time when the episode started
	// capturing reports whether we're waiting for the post-episode window.
	capturing bool

	// Saved pre-noise audio snapshot. Captured immediately on episode start
	// so a long episode that laps the ring buffer cannot destroy it.
	savedBefore []int16

	outputDir   string
	onClipReady ClipCallback
}

// NewCapturer creates a capturer for one monitoring session.
func NewCapturer(sampleRate int, outputDir string, onClipReady ClipCallback) *Capturer {
	if outputDir == "" {
		outputDir = DefaultDir()
	}
	return &Capturer{
		sampleRate:  sampleRate,
		buffer:      make([]int16, bufferSeconds*sampleRate),
		outputDir:   outputDir,
		onClipReady: onClipReady,
	}
}

// WriteAudio buffers one capture cycle's samples.
func (c *Capturer) WriteAudio(samples []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(samples) == 0 {
		return
	}

	capacity := len(c.buffer)
	for i := range samples {
		c.buffer[c.writePos] = samples[i]
		c.writePos = (c.writePos + 1) % capacity
	}
	c.totalWritten += int64(len(samples))

	c.checkAndFinalize()
}

// OnNoiseStart begins clip capture for a noise episode.
func (c *Capturer) OnNoiseStart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// If the previous episode is still waiting out its post window, cut it
	// now so back-to-back episodes each get a clip.
	if c.capturing && c.noiseEndPos > 0 {
		c.extractAndEncode()
	}

	beforeSamples := min(c.totalWritten, int64(beforeSeconds*c.sampleRate))
	if beforeSamples > 0 {
		c.savedBefore = make([]int16, beforeSamples)
		c.copyFromRing(c.savedBefore, c.totalWritten-beforeSamples)
	} else {
		c.savedBefore = nil
	}

	c.noiseStartPos = c.totalWritten
	c.noiseStart = time.Now()
	c.noiseEndPos = 0
	c.capturing = true

	slog.Debug("clip capture started", "position", c.noiseStartPos, "saved_before_samples", len(c.savedBefore))
}

// OnNoiseEnd signals that the episode is over. quietDuration is how long
// audio was quiet before the end was confirmed; the end position is
// backdated by that amount so the clip stops where the noise actually did.
func (c *Capturer) OnNoiseEnd(totalDuration, quietDuration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return
	}

	quietSamples := int64(quietDuration.Seconds() * float64(c.sampleRate))
	c.noiseEndPos = c.totalWritten - quietSamples

	slog.Debug("clip capture episode ended",
		"start_pos", c.noiseStartPos,
		"end_pos", c.noiseEndPos,
		"duration", totalDuration,
	)
}

// checkAndFinalize completes a clip once enough post-episode audio arrived.
func (c *Capturer) checkAndFinalize() {
	if !c.capturing || c.noiseEndPos == 0 {
		return
	}

	requiredSamples := c.noiseEndPos + int64(afterSeconds*c.sampleRate)
	if c.totalWritten < requiredSamples {
		return
	}

	c.extractAndEncode()

	c.capturing = false
	c.noiseStartPos = 0
	c.noiseEndPos = 0
	c.noiseStart = time.Time{}
}

// extractAndEncode assembles the clip PCM and encodes it in the background.
func (c *Capturer) extractAndEncode() {
	// The noise section is capped to its final maxNoiseSeconds: when an
	// episode outlasts the ring buffer only the tail still exists, and the
	// tail is also what leads into the recovery.
	noiseSamples := max(0, c.noiseEndPos-c.noiseStartPos)
	noiseCopyStart := c.noiseStartPos
	if limit := int64(maxNoiseSeconds * c.sampleRate); noiseSamples > limit {
		noiseCopyStart = c.noiseEndPos - limit
		noiseSamples = limit
	}
	afterSamples := int64(0)
	if c.noiseEndPos > 0 {
		afterSamples = int64(afterSeconds * c.sampleRate)
	}

	beforeLen := int64(len(c.savedBefore))
	pcm := make([]int16, beforeLen+noiseSamples+afterSamples)
	copy(pcm, c.savedBefore)
	c.copyFromRing(pcm[beforeLen:beforeLen+noiseSamples], noiseCopyStart)
	c.copyFromRing(pcm[beforeLen+noiseSamples:], c.noiseEndPos)

	// Capture everything the goroutine needs before releasing the lock.
	noiseStart := c.noiseStart
	noiseDuration := time.Duration(c.noiseEndPos-c.noiseStartPos) * time.Second / time.Duration(c.sampleRate)
	sampleRate := c.sampleRate
	outputDir := c.outputDir
	callback := c.onClipReady

	c.savedBefore = nil

	// Encode in background to not block the capture cycle.
	go func() {
		result := encodeClip(outputDir, sampleRate, pcm, noiseStart, noiseDuration)
		if callback != nil {
			callback(result)
		}
	}()
}

// copyFromRing copies buffered audio into the destination slice.
func (c *Capturer) copyFromRing(dst []int16, startPos int64) {
	capacity := int64(len(c.buffer))
	bufferStart := startPos % capacity

	for i := range dst {
		pos := (bufferStart + int64(i)) % capacity
		dst[i] = c.buffer[pos]
	}
}

// encodeClip writes the assembled PCM to a WAV file.
func encodeClip(outputDir string, sampleRate int, pcm []int16, noiseStart time.Time, duration time.Duration) *ClipResult {
	result := &ClipResult{
		Duration:  duration,
		ClipStart: noiseStart,
	}

	// Filename: noise-2024-01-15_14-32-05.wav (local time)
	result.Filename = "noise-" + noiseStart.Local().Format("2006-01-02_15-04-05") + ".wav"
	result.FilePath = filepath.Join(outputDir, result.Filename)

	if err := writeWAV(result.FilePath, sampleRate, pcm); err != nil {
		result.Error = fmt.Errorf("encode clip: %w", err)
		return result
	}

	info, err := os.Stat(result.FilePath)
	if err != nil {
		result.Error = fmt.Errorf("stat clip file: %w", err)
		return result
	}
	result.FileSize = info.Size()

	slog.Info("noise clip saved",
		"file", result.Filename,
		"size", result.FileSize,
		"duration", duration,
	)

	return result
}

// Reset discards the rolling window and any in-flight episode.
func (c *Capturer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writePos = 0
	c.totalWritten = 0
	c.noiseStartPos = 0
	c.noiseEndPos = 0
	c.noiseStart = time.Time{}
	c.capturing = false
	c.savedBefore = nil

	slog.Debug("clip capturer reset")
}
