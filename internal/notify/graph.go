package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	graphBaseURL     = "https://graph.microsoft.com/v1.0"
	graphScope       = "https://graph.microsoft.com/.default"
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token" //nolint:gosec // token endpoint template, no secret material

	// Retry settings.
	maxRetries       = 3
	initialRetryWait = 1 * time.Second
	maxRetryWait     = 30 * time.Second

	// Timeout for Graph HTTP calls.
	httpTimeout = 30 * time.Second

	// MaxAttachmentBytes is the Graph API limit for direct file attachments.
	// Larger files need an upload session, which we do not implement.
	MaxAttachmentBytes = 3 * 1024 * 1024
)

// guidPattern is the canonical GUID shape for tenant and client IDs.
var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// requireCredentials checks that the three auth fields are present.
func requireCredentials(cfg *types.GraphConfig) error {
	if cfg.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	return nil
}

// requireGUIDs checks that tenant and client IDs look like Azure GUIDs.
// Only the settings form runs this; saved configs are trusted as-is.
func requireGUIDs(cfg *types.GraphConfig) error {
	if !guidPattern.MatchString(cfg.TenantID) {
		return fmt.Errorf("tenant ID must be a valid GUID (e.g., 12345678-1234-1234-1234-123456789abc)")
	}
	if !guidPattern.MatchString(cfg.ClientID) {
		return fmt.Errorf("client ID must be a valid GUID (e.g., 12345678-1234-1234-1234-123456789abc)")
	}
	return nil
}

// newCredentialsConfig assembles the OAuth2 client-credentials config.
func newCredentialsConfig(cfg *types.GraphConfig) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLTemplate, cfg.TenantID),
		Scopes:       []string{graphScope},
	}
}

// GraphClient sends alert emails from a shared mailbox via the Microsoft
// Graph API.
type GraphClient struct {
	fromAddress string
	httpClient  *http.Client
}

// NewGraphClient builds an email client after checking the credentials.
func NewGraphClient(cfg *types.GraphConfig) (*GraphClient, error) {
	if err := requireCredentials(cfg); err != nil {
		return nil, err
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("from address (shared mailbox) is required")
	}

	// The oauth2 transport inherits this client's timeout for both token
	// acquisition and API calls.
	baseClient := &http.Client{Timeout: httpTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)

	return &GraphClient{
		fromAddress: cfg.FromAddress,
		httpClient:  newCredentialsConfig(cfg).Client(ctx),
	}, nil
}

// sendMailRequest is the Graph sendMail body.
type sendMailRequest struct {
	Message graphMessage `json:"message"`
}

type graphMessage struct {
	Subject      string            `json:"subject"`
	Body         graphBody         `json:"body"`
	ToRecipients []graphRecipient  `json:"toRecipients"`
	Attachments  []graphAttachment `json:"attachments,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
}

type graphAttachment struct {
	OdataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"` // Base64-encoded
}

// EmailAttachment is a file to attach to an outgoing email.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SendMail delivers a plain text message to the given recipients.
func (c *GraphClient) SendMail(recipients []string, subject, body string) error {
	return c.SendMailWithAttachment(recipients, subject, body, nil)
}

// SendMailWithAttachment delivers a message, attaching a file when given.
func (c *GraphClient) SendMailWithAttachment(recipients []string, subject, body string, attachment *EmailAttachment) error {
	to := buildRecipients(recipients)
	if len(to) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	message := graphMessage{
		Subject:      subject,
		Body:         graphBody{ContentType: "Text", Content: body},
		ToRecipients: to,
	}

	if attachment != nil && len(attachment.Data) > 0 {
		att, err := buildAttachment(attachment)
		if err != nil {
			return err
		}
		message.Attachments = []graphAttachment{att}
	}

	jsonData, err := json.Marshal(sendMailRequest{Message: message})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.postWithRetry(jsonData)
}

func buildRecipients(addrs []string) []graphRecipient {
	to := make([]graphRecipient, 0, len(addrs))
	for _, addr := range addrs {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, graphRecipient{EmailAddress: graphEmailAddress{Address: addr}})
		}
	}
	return to
}

func buildAttachment(a *EmailAttachment) (graphAttachment, error) {
	if len(a.Data) > MaxAttachmentBytes {
		return graphAttachment{}, fmt.Errorf("attachment %s exceeds %d byte limit", a.Filename, MaxAttachmentBytes)
	}
	return graphAttachment{
		OdataType:    "#microsoft.graph.fileAttachment",
		Name:         a.Filename,
		ContentType:  a.ContentType,
		ContentBytes: base64.StdEncoding.EncodeToString(a.Data),
	}, nil
}

// postWithRetry posts the sendMail body, retrying transient failures with
// exponential backoff.
func (c *GraphClient) postWithRetry(jsonData []byte) error {
	apiURL := fmt.Sprintf("%s/users/%s/sendMail", graphBaseURL, url.PathEscape(c.fromAddress))
	backoff := util.NewBackoff(initialRetryWait, maxRetryWait)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff.Next())
		}

		retryable, err := c.postOnce(apiURL, jsonData)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// postOnce performs a single sendMail POST. Rate limiting and server
// errors come back retryable; a 429 honors the Retry-After header before
// returning.
func (c *GraphClient) postOnce(apiURL string, jsonData []byte) (retryable bool, err error) {
	req, err := http.NewRequest(http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("send request: %w", err)
	}

	respBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK, http.StatusNoContent:
		return false, nil
	case http.StatusTooManyRequests:
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				time.Sleep(time.Duration(seconds) * time.Second)
			}
		}
		return true, fmt.Errorf("graph API rate limited (429): %s", string(respBody))
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, fmt.Errorf("graph API returned %d: %s", resp.StatusCode, string(respBody))
	default:
		return false, fmt.Errorf("graph API error %d: %s", resp.StatusCode, string(respBody))
	}
}

// ValidateAuth confirms the credentials can reach the sending mailbox.
func (c *GraphClient) ValidateAuth() error {
	// Token acquisition happens on the first request, so any request
	// validates the credentials. A user lookup is the lightest one.
	apiURL := fmt.Sprintf("%s/users/%s", graphBaseURL, url.PathEscape(c.fromAddress))
	req, err := http.NewRequest(http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create validation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "oauth2") || strings.Contains(err.Error(), "token") {
			return fmt.Errorf("authentication failed: %w", err)
		}
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 403 means the token works but lacks User.Read, which is fine for a
	// mailbox that only ever sends.
	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("mailbox %s not found", c.fromAddress)
	case http.StatusUnauthorized:
		return fmt.Errorf("authentication failed: invalid credentials")
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("validation failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// ValidateConfig checks cfg for missing fields and malformed GUIDs.
func ValidateConfig(cfg *types.GraphConfig) error {
	if err := requireCredentials(cfg); err != nil {
		return err
	}
	if err := requireGUIDs(cfg); err != nil {
		return err
	}
	if cfg.FromAddress == "" {
		return fmt.Errorf("from address (shared mailbox) is required")
	}
	if cfg.Recipients == "" {
		return fmt.Errorf("recipients are required")
	}
	return nil
}

// IsConfigured reports whether enough Graph fields are set to attempt a send.
func IsConfigured(cfg *types.GraphConfig) bool {
	return util.IsConfigured(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.FromAddress, cfg.Recipients)
}

// ParseRecipients splits a comma-separated address list, dropping empties.
func ParseRecipients(recipients string) []string {
	var result []string
	for r := range strings.SplitSeq(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			result = append(result, r)
		}
	}
	return result
}

// TokenSourceContext returns an OAuth2 token source whose token requests
// run under ctx.
func TokenSourceContext(ctx context.Context, cfg *types.GraphConfig) (oauth2.TokenSource, error) {
	if err := requireCredentials(cfg); err != nil {
		return nil, err
	}
	return newCredentialsConfig(cfg).TokenSource(ctx), nil
}
