package types

// WSConfigResponse answers a config/get command with the persisted
// configuration, no runtime state.
type WSConfigResponse struct {
	Type   string `json:"type"` // "config"
	Config any    `json:"config"`
}

// WSCommandResult is the standard response for command execution over the
// WebSocket surface (monitor/start, alert/update, speech/send, ...).
type WSCommandResult struct {
	Type    string           `json:"type"`            // "<command>_result"
	Success bool             `json:"success"`         // true if command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    any              `json:"data,omitempty"`  // Optional response data
}

// WSTestResult reports the outcome of a notification channel test.
type WSTestResult struct {
	Type     string `json:"type"`            // "test_result"
	TestType string `json:"test_type"`       // webhook, log, email or zabbix
	Success  bool   `json:"success"`         // true if the test send worked
	Error    string `json:"error,omitempty"` // Failure detail
}

// WSAlertLogResult carries alert log entries in response to
// notifications/log/view.
type WSAlertLogResult struct {
	Type    string          `json:"type"`              // "alert_log_result"
	Success bool            `json:"success"`           // true if the log was read
	Error   string          `json:"error,omitempty"`   // Failure detail
	Entries []AlertLogEntry `json:"entries,omitempty"` // Newest first
	Path    string          `json:"path,omitempty"`    // Log file that was read
}
