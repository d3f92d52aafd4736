package server

// Request bodies for WebSocket commands. Field constraints are expressed as
// go-playground/validator struct tags and checked by DecodeAndValidate.

// --- Audio requests ---

// AudioUpdateRequest is the request body for audio/update. Nil fields are
// left unchanged.
type AudioUpdateRequest struct {
	Input             *string  `json:"input" validate:"omitempty,max=256"`
	Output            *string  `json:"output" validate:"omitempty,max=256"`
	SampleRate        *int     `json:"sample_rate" validate:"omitempty,oneof=8000 16000 22050 32000 44100 48000"`
	CaptureSeconds    *float64 `json:"capture_seconds" validate:"omitempty,gt=0,lte=5"`
	CycleDelaySeconds *float64 `json:"cycle_delay_seconds" validate:"omitempty,gte=0,lte=5"`
}

// --- Alert settings ---

// AlertUpdateRequest is the request body for alert/update. The threshold
// carries no range tags; any finite value is accepted and the loop applies
// it as-is.
type AlertUpdateRequest struct {
	ThresholdDB        *float64 `json:"threshold_db"`
	Shape              *string  `json:"shape" validate:"omitempty,oneof=sine square saw"`
	FrequencyHz        *float64 `json:"frequency_hz" validate:"omitempty,gte=20,lte=20000"`
	DurationMs         *int     `json:"duration_ms" validate:"omitempty,gte=10,lte=10000"`
	VolumePct          *int     `json:"volume_pct" validate:"omitempty,gte=0,lte=100"`
	NoiseMinDurationMs *int64   `json:"noise_min_duration_ms" validate:"omitempty,gte=0,lte=300000"`
	NoiseQuietMs       *int64   `json:"noise_quiet_ms" validate:"omitempty,gte=500,lte=60000"`
}

// ThresholdUpdateRequest is the request body for POST /api/threshold.
type ThresholdUpdateRequest struct {
	Threshold *float64 `json:"threshold" validate:"required"`
}

// --- Speech ---

// MessageRequest is the request body for speech/send and POST /api/message.
// Validation is manual so the error strings stay stable for API clients.
type MessageRequest struct {
	Message string `json:"message"`
}

// --- Calibration ---

// CalibrateRequest is the request body for monitor/calibrate. An empty
// device means the configured capture device.
type CalibrateRequest struct {
	Device string `json:"device" validate:"omitempty,max=256"`
}

// --- Notification channel requests ---

// WebhookUpdateRequest carries the notifications/webhook/update payload.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// LogUpdateRequest carries the notifications/log/update payload.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailUpdateRequest carries the notifications/email/update payload.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// ZabbixUpdateRequest carries the notifications/zabbix/update payload.
type ZabbixUpdateRequest struct {
	Server string `json:"server" validate:"omitempty,max=253"`
	Port   int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Host   string `json:"host" validate:"omitempty,max=253"`
	Key    string `json:"key" validate:"omitempty,max=256"`
}

// --- Clip storage ---

// ClipsUpdateRequest is the request body for clips/update. Nil fields are
// left unchanged.
type ClipsUpdateRequest struct {
	Enabled           *bool   `json:"enabled"`
	Directory         *string `json:"directory" validate:"omitempty,max=4096"`
	StorageMode       *string `json:"storage_mode" validate:"omitempty,oneof=local s3 both"`
	RetentionDays     *int    `json:"retention_days" validate:"omitempty,gte=1,lte=3650"`
	S3Endpoint        *string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	S3Bucket          *string `json:"s3_bucket" validate:"omitempty,max=63"`
	S3AccessKeyID     *string `json:"s3_access_key_id" validate:"omitempty,max=128"`
	S3SecretAccessKey *string `json:"s3_secret_access_key" validate:"omitempty,max=256"`
}

// --- S3 connectivity ---

// S3TestRequest is the request body for clips/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"s3_bucket" validate:"required,max=63"`
	AccessKey string `json:"s3_access_key_id" validate:"required,max=128"`
	SecretKey string `json:"s3_secret_access_key" validate:"required,max=256"`
}

// --- Event log ---

// EventsRequest is the request body for events/get.
type EventsRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"omitempty,gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=monitor noise speech clip"`
}
