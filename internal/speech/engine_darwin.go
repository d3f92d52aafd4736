//go:build darwin

package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

type sayEngine struct{}

func platformEngine() Engine {
	return sayEngine{}
}

func (sayEngine) Name() string {
	return "say"
}

func (sayEngine) Available() bool {
	_, err := exec.LookPath("say")
	return err == nil
}

func (sayEngine) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, "say", "-r", fmt.Sprintf("%d", speechRate), "--", text)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if detail := util.ExtractLastError(stderr.String()); detail != "" {
			return fmt.Errorf("say: %s: %w", detail, err)
		}
		return util.WrapError("run say", err)
	}
	return nil
}
