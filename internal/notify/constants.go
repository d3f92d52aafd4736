package notify

import "time"

// AppName identifies this application in notifications.
const AppName = "ZuidWest FM Noisewatch"

// timestampUTC returns the current time formatted for notification payloads.
func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
