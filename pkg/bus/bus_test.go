package bus

import (
	"context"
	"testing"
	"time"
)

func TestMessageBus_PublishInboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBus(4)
	defer mb.Close()

	for i := 0; i < cap(mb.inbound); i++ {
		if !mb.PublishInbound(InboundMessage{GuildID: "g", ChannelID: "c", UserID: "u", Content: "msg"}) {
			t.Fatalf("publish %d should be accepted", i)
		}
	}

	if mb.PublishInbound(InboundMessage{GuildID: "g", ChannelID: "c", UserID: "u", Content: "overflow"}) {
		t.Fatal("overflow publish should be rejected")
	}
	stats := mb.Stats()
	if stats.DroppedInbound != 1 {
		t.Fatalf("expected dropped inbound count 1, got %d", stats.DroppedInbound)
	}
	if stats.Published != 4 || stats.PendingInbound != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMessageBus_PublishOutboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBus(2)
	defer mb.Close()

	for i := 0; i < cap(mb.outbound); i++ {
		mb.PublishOutbound(OutboundMessage{Channel: "discord", ChannelID: "c", Content: "msg"})
	}

	mb.PublishOutbound(OutboundMessage{Channel: "discord", ChannelID: "c", Content: "overflow"})
	if got := mb.Stats().DroppedOutbound; got != 1 {
		t.Fatalf("expected dropped outbound count 1, got %d", got)
	}
}

func TestMessageBus_ConsumePreservesFields(t *testing.T) {
	mb := NewMessageBus(0)
	defer mb.Close()

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mb.PublishInbound(InboundMessage{GuildID: "g", ChannelID: "c", UserID: "u", Content: "hello", ReplyToID: 7, Timestamp: at})

	msg, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.Content != "hello" || msg.ReplyToID != 7 || !msg.Timestamp.Equal(at) {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMessageBus_ClosedChannelsReturnFalse(t *testing.T) {
	mb := NewMessageBus(0)
	mb.Close()
	mb.Close()

	if mb.PublishInbound(InboundMessage{Content: "late"}) {
		t.Fatal("publish after close should be rejected")
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatalf("expected closed inbound consume to return ok=false")
	}
	if _, ok := mb.SubscribeOutbound(context.Background()); ok {
		t.Fatalf("expected closed outbound subscribe to return ok=false")
	}
}

func TestMessageBus_ConsumeHonorsContext(t *testing.T) {
	mb := NewMessageBus(0)
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("expected ok=false once the context expires")
	}
}
