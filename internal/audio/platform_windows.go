//go:build windows

package audio

import "github.com/gen2brain/malgo"

// platformBackend returns the miniaudio backend used on this platform.
func platformBackend() malgo.Backend {
	return malgo.BackendWasapi
}
