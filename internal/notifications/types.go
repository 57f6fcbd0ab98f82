package notifications

import "time"

// NotificationType tags the data payload of a push.
type NotificationType string

const (
	TypeDigestReady NotificationType = "digest_ready"
)

// DigestNotification is the payload pushed to every registered device.
type DigestNotification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Device is a registered push token.
type Device struct {
	Token     string    `json:"token" binding:"required"`
	DeviceID  string    `json:"device_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SendResult is the outcome of one device delivery.
type SendResult struct {
	Token    string
	Success  bool
	Response string
	Error    string
}
