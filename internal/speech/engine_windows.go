//go:build windows

package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

type sapiEngine struct{}

func platformEngine() Engine {
	return sapiEngine{}
}

func (sapiEngine) Name() string {
	return "sapi"
}

func (sapiEngine) Available() bool {
	_, err := exec.LookPath("powershell")
	return err == nil
}

func (sapiEngine) Speak(ctx context.Context, text string) error {
	// Single-quoted PowerShell string literal; only ' needs escaping.
	quoted := strings.ReplaceAll(text, "'", "''")
	script := fmt.Sprintf(
		"Add-Type -AssemblyName System.Speech; (New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak('%s')",
		quoted)

	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if detail := util.ExtractLastError(stderr.String()); detail != "" {
			return fmt.Errorf("sapi: %s: %w", detail, err)
		}
		return util.WrapError("run speech synthesizer", err)
	}
	return nil
}
