package notify

import (
	"github.com/samber/lo"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

// ChannelDecisions lists the enabled channels of a config in a fixed order
// with their de-duplicated, non-empty recipients.
func ChannelDecisions(c models.Channels) []models.ChannelDelivery {
	out := make([]models.ChannelDelivery, 0, 4)
	add := func(enabled bool, name string, recipients []string) {
		if !enabled {
			return
		}
		out = append(out, models.ChannelDelivery{
			Channel:    name,
			Recipients: lo.Uniq(lo.Filter(recipients, func(r string, _ int) bool { return r != "" })),
		})
	}

	add(c.SMS.Enabled, models.ChannelSMS, c.SMS.Recipients)
	add(c.Email.Enabled, models.ChannelEmail, c.Email.Recipients)
	add(c.Push.Enabled, models.ChannelPush, c.Push.Recipients)
	add(c.EmergencyServices.Enabled, models.ChannelEmergencyServices, c.EmergencyServices.ServiceIDs)
	return out
}
