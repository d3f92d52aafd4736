package clips

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCapturer(t *testing.T, sampleRate int) (*Capturer, chan *ClipResult) {
	t.Helper()
	results := make(chan *ClipResult, 4)
	c := NewCapturer(sampleRate, t.TempDir(), func(r *ClipResult) {
		results <- r
	})
	return c, results
}

func writeConstant(c *Capturer, n int, value int16) {
	buf := make([]int16, n)
	for i := range buf {
		buf[i] = value
	}
	c.WriteAudio(buf)
}

func awaitClip(t *testing.T, results chan *ClipResult) *ClipResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no clip was produced")
		return nil
	}
}

func decodeClip(t *testing.T, path string) ([]int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.NumChans)
	assert.EqualValues(t, 16, d.BitDepth)
	return buf.Data, buf.Format.SampleRate
}

func TestCapturerProducesClip(t *testing.T) {
	const rate = 8000
	c, results := newTestCapturer(t, rate)

	// 2s of pre-noise audio, 1s of noise, then the 5s post window.
	writeConstant(c, 2*rate, 100)
	c.OnNoiseStart()
	writeConstant(c, rate, 3000)
	c.OnNoiseEnd(time.Second, 0)
	writeConstant(c, afterSeconds*rate, 200)

	clip := awaitClip(t, results)
	require.NoError(t, clip.Error)
	assert.True(t, strings.HasPrefix(clip.Filename, "noise-"))
	assert.True(t, strings.HasSuffix(clip.Filename, ".wav"))
	assert.Equal(t, time.Second, clip.Duration)
	assert.Greater(t, clip.FileSize, int64(0))

	data, gotRate := decodeClip(t, clip.FilePath)
	assert.Equal(t, rate, gotRate)
	require.Len(t, data, 2*rate+rate+afterSeconds*rate)

	// Pre-noise, noise and post sections appear in order.
	assert.Equal(t, 100, data[0])
	assert.Equal(t, 100, data[2*rate-1])
	assert.Equal(t, 3000, data[2*rate])
	assert.Equal(t, 3000, data[3*rate-1])
	assert.Equal(t, 200, data[3*rate])
	assert.Equal(t, 200, data[len(data)-1])
}

func TestCapturerBackdatesQuietTail(t *testing.T) {
	const rate = 8000
	c, results := newTestCapturer(t, rate)

	writeConstant(c, rate, 1)
	c.OnNoiseStart()
	writeConstant(c, 2*rate, 2)
	// The episode end was confirmed after 1s of quiet, so the clip's noise
	// section stops where the noise actually did.
	c.OnNoiseEnd(2*time.Second, time.Second)
	writeConstant(c, 4*rate, 3)

	clip := awaitClip(t, results)
	require.NoError(t, clip.Error)
	assert.Equal(t, time.Second, clip.Duration)

	data, _ := decodeClip(t, clip.FilePath)
	assert.Len(t, data, rate+rate+afterSeconds*rate)
}

func TestCapturerLongEpisodeKeepsTail(t *testing.T) {
	const rate = 1000
	c, results := newTestCapturer(t, rate)

	writeConstant(c, rate, 1)
	c.OnNoiseStart()
	writeConstant(c, 12*rate, 2)
	c.OnNoiseEnd(12*time.Second, 0)
	writeConstant(c, afterSeconds*rate, 3)

	clip := awaitClip(t, results)
	require.NoError(t, clip.Error)
	assert.Equal(t, 12*time.Second, clip.Duration)

	// The noise section is capped to its final 10s.
	data, _ := decodeClip(t, clip.FilePath)
	require.Len(t, data, rate+maxNoiseSeconds*rate+afterSeconds*rate)
	assert.Equal(t, 2, data[rate])
	assert.Equal(t, 2, data[rate+maxNoiseSeconds*rate-1])
	assert.Equal(t, 3, data[rate+maxNoiseSeconds*rate])
}

func TestCapturerBackToBackEpisodes(t *testing.T) {
	const rate = 1000
	c, results := newTestCapturer(t, rate)

	writeConstant(c, rate, 1)
	c.OnNoiseStart()
	writeConstant(c, 2*rate, 2)
	c.OnNoiseEnd(2*time.Second, 0)
	writeConstant(c, rate, 3)

	// A new episode before the post window fills cuts the previous clip
	// immediately so both episodes get one.
	c.OnNoiseStart()
	first := awaitClip(t, results)
	require.NoError(t, first.Error)
	assert.Equal(t, 2*time.Second, first.Duration)

	writeConstant(c, 2*rate, 4)
	c.OnNoiseEnd(2*time.Second, 0)
	writeConstant(c, afterSeconds*rate, 5)

	second := awaitClip(t, results)
	require.NoError(t, second.Error)
	assert.Equal(t, 2*time.Second, second.Duration)
}

func TestCapturerIgnoresEndWithoutStart(t *testing.T) {
	const rate = 1000
	c, results := newTestCapturer(t, rate)

	writeConstant(c, rate, 1)
	c.OnNoiseEnd(time.Second, 0)
	writeConstant(c, (afterSeconds+1)*rate, 2)

	select {
	case clip := <-results:
		t.Fatalf("unexpected clip produced: %v", clip.Filename)
	case <-time.After(200 * time.Millisecond):
	}
}
