//go:build linux

package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// espeakBinaries lists the binaries probed in order; most current distros
// ship espeak-ng with an espeak compatibility symlink, some only the former.
var espeakBinaries = []string{"espeak", "espeak-ng"}

type espeakEngine struct{}

func platformEngine() Engine {
	return espeakEngine{}
}

func (espeakEngine) Name() string {
	return "espeak"
}

func (espeakEngine) binary() (string, bool) {
	for _, name := range espeakBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

func (e espeakEngine) Available() bool {
	_, ok := e.binary()
	return ok
}

func (e espeakEngine) Speak(ctx context.Context, text string) error {
	bin, ok := e.binary()
	if !ok {
		return fmt.Errorf("no espeak binary found in PATH")
	}

	cmd := exec.CommandContext(ctx, bin,
		"-s", fmt.Sprintf("%d", speechRate),
		"-a", fmt.Sprintf("%d", speechAmplitude),
		"--", text)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if detail := util.ExtractLastError(stderr.String()); detail != "" {
			return fmt.Errorf("espeak: %s: %w", detail, err)
		}
		return util.WrapError("run espeak", err)
	}
	return nil
}
