package alerting

import (
	"fmt"
	"time"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

type CommandKind int

const (
	CommandMarkAlertsSent CommandKind = iota + 1
	CommandSetLastTriggered
)

func (k CommandKind) String() string {
	switch k {
	case CommandMarkAlertsSent:
		return "mark-alerts-sent"
	case CommandSetLastTriggered:
		return "set-last-triggered"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is a pending write produced by a state transition. A guarded
// command only applies if the stored state still permits the transition.
type Command struct {
	Kind       CommandKind
	DisasterID string
	ConfigID   string
	At         time.Time
	Guard      bool
}

func (c Command) Guarded() Command {
	c.Guard = true
	return c
}

// MarkProcessed moves a disaster from unprocessed to processed.
func MarkProcessed(d models.DisasterEvent) (models.DisasterEvent, Command) {
	d.AlertsSent = true
	return d, Command{Kind: CommandMarkAlertsSent, DisasterID: d.ID}
}

// Trigger fires cfg at now unless it is in cooldown. A suppressed config
// comes back unchanged with ok false and no command.
func Trigger(cfg models.AlertConfig, now time.Time) (models.AlertConfig, Command, bool) {
	if cfg.InCooldown(now) {
		return cfg, Command{}, false
	}
	at := now
	cfg.LastTriggered = &at
	return cfg, Command{Kind: CommandSetLastTriggered, ConfigID: cfg.ID, At: now}, true
}
