package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/dotsetgreg/rumi/pkg/bus"
	"github.com/dotsetgreg/rumi/pkg/logger"
)

// Channel is a chat platform adapter.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(guildID string) bool
}

// BaseChannel carries the bus, allow list and running flag shared by
// adapters.
type BaseChannel struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, mb *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       mb,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed reports whether messages from the guild are recorded. An empty
// allow list records every guild.
func (c *BaseChannel) IsAllowed(guildID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if strings.TrimSpace(allowed) == guildID {
			return true
		}
	}
	return false
}

// HandleMessage publishes msg to the inbound bus when its guild is allowed.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) bool {
	if !c.IsAllowed(msg.GuildID) {
		return false
	}
	msg.Channel = c.name
	if !c.bus.PublishInbound(msg) {
		logger.WarnCF(c.name, "Inbound message dropped", map[string]any{
			"platform_id": msg.PlatformID,
			"guild_id":    msg.GuildID,
			"channel_id":  msg.ChannelID,
		})
		return false
	}
	return true
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
