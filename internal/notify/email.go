package notify

import (
	"fmt"

	"github.com/oszuidwest/zwfm-noisewatch/internal/clips"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// SendTestEmail sends a test email to verify the Graph configuration.
func SendTestEmail(cfg *types.GraphConfig, stationName string) error {
	client, err := NewGraphClient(cfg)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Test email from %s", AppName)
	body := fmt.Sprintf(
		"This is a test email from %s (%s).\n\nIf you received this, email notifications are working.",
		AppName, stationName)

	return client.SendMail(ParseRecipients(cfg.Recipients), subject, body)
}

// SendUploadAbandonedEmail alerts operators that a clip upload was given up
// on after exhausting its retries, so the file can be rescued by hand.
func SendUploadAbandonedEmail(cfg *types.GraphConfig, stationName string, info clips.AbandonedUpload) error {
	client, err := NewGraphClient(cfg)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("[%s] Clip upload abandoned: %s", stationName, info.Filename)
	body := fmt.Sprintf(
		"An alert clip could not be uploaded to S3 and has been abandoned after %d attempts.\n\n"+
			"File: %s\nS3 key: %s\nLast error: %s\n\n"+
			"The local copy (if any) will be removed by retention cleanup.\n\n%s",
		info.RetryCount+1, info.Filename, info.S3Key, info.LastError, AppName)

	return client.SendMail(ParseRecipients(cfg.Recipients), subject, body)
}
