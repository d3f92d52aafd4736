package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
	"golang.org/x/mod/semver"
)

// Build metadata, injected via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	releaseEndpoint = "https://api.github.com/repos/oszuidwest/zwfm-noisewatch/releases/latest"

	// The first check waits until well after startup so a slow GitHub
	// response can never delay the monitor coming up.
	releaseCheckDelay    = 30 * time.Second
	releaseCheckInterval = 24 * time.Hour
	releaseCheckTimeout  = 30 * time.Second
	releaseCheckAttempts = 3
)

// checkOutcome classifies one poll of the release endpoint.
type checkOutcome int

const (
	checkDone  checkOutcome = iota // got an answer, wait for the next interval
	checkRetry                     // transient failure, try again shortly
)

// VersionChecker polls GitHub for the newest release tag so the remote
// panel can show when an update is available. Safe for concurrent use.
type VersionChecker struct {
	mu     sync.RWMutex
	latest string
	etag   string
	stop   chan struct{}
}

// NewVersionChecker starts the release poller in the background.
func NewVersionChecker() *VersionChecker {
	vc := &VersionChecker{stop: make(chan struct{})}
	go vc.run()
	return vc
}

// Stop ends the background poller.
func (vc *VersionChecker) Stop() {
	close(vc.stop)
}

func (vc *VersionChecker) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	select {
	case <-time.After(releaseCheckDelay):
		vc.poll()
	case <-vc.stop:
		return
	}

	ticker := time.NewTicker(releaseCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			vc.poll()
		case <-vc.stop:
			return
		}
	}
}

// poll runs one check cycle, backing off between transient failures.
func (vc *VersionChecker) poll() {
	wait := util.NewBackoff(time.Minute, 10*time.Minute)
	for attempt := range releaseCheckAttempts {
		if vc.fetchLatest() == checkDone {
			return
		}
		if attempt == releaseCheckAttempts-1 {
			return
		}
		select {
		case <-time.After(wait.Next()):
		case <-vc.stop:
			return
		}
	}
}

type releaseInfo struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// fetchLatest asks GitHub for the newest release, using a conditional
// request once an ETag is known.
func (vc *VersionChecker) fetchLatest() checkOutcome {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		releaseCheckTimeout,
		errors.New("release check timeout"),
	)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseEndpoint, http.NoBody)
	if err != nil {
		return checkRetry
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-noisewatch/"+Version)

	vc.mu.RLock()
	etag := vc.etag
	vc.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return checkRetry
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // drain and close, nothing to do on failure
	}()

	if outcome, decided := classifyStatus(resp.StatusCode); decided {
		return outcome
	}

	var release releaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return checkRetry
	}

	// Drafts and prereleases are not updates the operator should act on.
	if release.Draft || release.Prerelease {
		return checkDone
	}
	if release.TagName == "" {
		return checkRetry
	}

	vc.mu.Lock()
	vc.latest = strings.TrimPrefix(strings.TrimSpace(release.TagName), "v")
	if tag := resp.Header.Get("ETag"); tag != "" {
		vc.etag = tag
	}
	vc.mu.Unlock()

	return checkDone
}

// classifyStatus maps a response code to an outcome. The second return is
// false for 200, where the body still needs to be read.
func classifyStatus(code int) (checkOutcome, bool) {
	switch {
	case code == http.StatusOK:
		return checkDone, false
	case code == http.StatusNotModified:
		// Nothing new since the stored ETag.
		return checkDone, true
	case code == http.StatusNotFound:
		// The repo has no releases yet.
		return checkDone, true
	case code == http.StatusForbidden, code == http.StatusTooManyRequests:
		// Rate limited.
		return checkRetry, true
	case code >= 500:
		return checkRetry, true
	default:
		return checkDone, true
	}
}

// Info returns the running build and the newest known release.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := strings.TrimPrefix(strings.TrimSpace(Version), "v")
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = semver.Compare(canonical(vc.latest), canonical(current)) > 0
	}
	return info
}

// canonical prefixes the leading v that semver.Compare requires.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
