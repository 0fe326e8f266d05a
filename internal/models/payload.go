package models

import "time"

const (
	ChannelSMS               = "sms"
	ChannelEmail             = "email"
	ChannelPush              = "push"
	ChannelEmergencyServices = "emergencyServices"
)

// ChannelDelivery records that a notification would fire on a channel.
// Delivery itself happens outside this service.
type ChannelDelivery struct {
	Channel    string   `json:"channel"`
	Recipients []string `json:"recipients,omitempty"`
}

// AlertPayload is the normalized notification emitted once per matched,
// non-suppressed config.
type AlertPayload struct {
	ID            string            `json:"id"`
	DisasterID    string            `json:"disasterId"`
	AlertConfigID string            `json:"alertConfigId"`
	DisasterType  DisasterType      `json:"disasterType"`
	Severity      int               `json:"severity"`
	Location      Location          `json:"location"`
	Description   string            `json:"description"`
	Channels      []ChannelDelivery `json:"channels"`
	Timestamp     time.Time         `json:"timestamp"` // dispatch time
}
