package clips

import (
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

const (
	wavBitDepth    = 16
	wavNumChannels = 1
	wavAudioFormat = 1 // PCM
)

// writeWAV writes mono 16-bit samples to a WAV file, creating parent
// directories as needed.
func writeWAV(filePath string, sampleRate int, samples []int16) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return util.WrapError("create clip directory", err)
	}

	outFile, err := os.Create(filePath)
	if err != nil {
		return util.WrapError("create clip file", err)
	}
	defer util.SafeCloseFunc(outFile, "clip file")()

	enc := wav.NewEncoder(outFile, sampleRate, wavBitDepth, wavNumChannels, wavAudioFormat)

	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Data:   ints,
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: wavNumChannels},
	}
	if err := enc.Write(buf); err != nil {
		return util.WrapError("encode clip", err)
	}

	return enc.Close()
}
