package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

const (
	// expiryWarningDays marks a secret as expiring soon this many days out.
	expiryWarningDays = 30
	// expiryCacheTTL is how long one Azure AD answer stays valid locally.
	expiryCacheTTL = 1 * time.Hour
)

// SecretExpiryChecker reports when the Graph client secret runs out, so the
// panel can warn the operator before alert emails silently stop. Lookups
// are cached; the status broadcast asks every few seconds.
type SecretExpiryChecker struct {
	mu        sync.RWMutex
	cfg       *types.GraphConfig
	info      types.SecretExpiryInfo
	checkedAt time.Time
	client    *http.Client
}

// NewSecretExpiryChecker returns a checker bound to the given credentials.
func NewSecretExpiryChecker(cfg *types.GraphConfig) *SecretExpiryChecker {
	return &SecretExpiryChecker{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout},
	}
}

// GetInfo returns the secret expiry information, querying Azure AD only
// when the cached answer has aged out.
func (c *SecretExpiryChecker) GetInfo() types.SecretExpiryInfo {
	c.mu.RLock()
	if !c.checkedAt.IsZero() && time.Since(c.checkedAt) < expiryCacheTTL {
		info := c.info
		c.mu.RUnlock()
		return info
	}
	c.mu.RUnlock()

	return c.refresh()
}

// UpdateConfig swaps in new credentials and drops the cached answer.
func (c *SecretExpiryChecker) UpdateConfig(cfg *types.GraphConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.checkedAt = time.Time{}
	c.mu.Unlock()
}

func (c *SecretExpiryChecker) refresh() types.SecretExpiryInfo {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if cfg == nil || !util.IsConfigured(cfg.TenantID, cfg.ClientID, cfg.ClientSecret) {
		return c.store(types.SecretExpiryInfo{Error: "Graph API not configured"})
	}

	info, err := c.queryCredentialExpiry(cfg)
	if err != nil {
		info = types.SecretExpiryInfo{Error: err.Error()}
	}
	return c.store(info)
}

// store caches an answer and stamps the check time.
func (c *SecretExpiryChecker) store(info types.SecretExpiryInfo) types.SecretExpiryInfo {
	c.mu.Lock()
	c.info = info
	c.checkedAt = time.Now()
	c.mu.Unlock()
	return info
}

// appRegistration is the slice of the Graph applications resource we need.
type appRegistration struct {
	PasswordCredentials []clientSecretMeta `json:"passwordCredentials"`
}

type clientSecretMeta struct {
	EndDateTime string `json:"endDateTime"`
}

// queryCredentialExpiry asks Azure AD when the app registration's secrets
// end. Reading the registration requires Application.Read.All consent.
func (c *SecretExpiryChecker) queryCredentialExpiry(cfg *types.GraphConfig) (types.SecretExpiryInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
	defer cancel()

	ts, err := TokenSourceContext(ctx, cfg)
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("create token source: %w", err)
	}
	token, err := ts.Token()
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("acquire token: %w", err)
	}

	apiURL := fmt.Sprintf("%s/applications(appId='%s')", graphBaseURL, url.PathEscape(cfg.ClientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return types.SecretExpiryInfo{}, fmt.Errorf("API returned %d: %s", resp.StatusCode, string(body))
	}

	var app appRegistration
	if err := json.Unmarshal(body, &app); err != nil {
		return types.SecretExpiryInfo{}, fmt.Errorf("parse response: %w", err)
	}

	earliest := earliestExpiry(app.PasswordCredentials)
	if earliest.IsZero() {
		return types.SecretExpiryInfo{Error: "no password credentials found"}, nil
	}

	daysLeft := max(0, int(time.Until(earliest).Hours()/24))
	return types.SecretExpiryInfo{
		ExpiresAt:   earliest.Format(time.RFC3339),
		ExpiresSoon: daysLeft <= expiryWarningDays,
		DaysLeft:    daysLeft,
	}, nil
}

// earliestExpiry returns the soonest end date among the registered secrets,
// or the zero time when none parse. The registration may hold several
// secrets during a rotation; the soonest one is the one that bites.
func earliestExpiry(creds []clientSecretMeta) time.Time {
	var earliest time.Time
	for _, cred := range creds {
		expiry, err := time.Parse(time.RFC3339, cred.EndDateTime)
		if err != nil {
			continue
		}
		if earliest.IsZero() || expiry.Before(earliest) {
			earliest = expiry
		}
	}
	return earliest
}
