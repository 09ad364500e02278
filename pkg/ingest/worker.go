package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dotsetgreg/rumi/pkg/bus"
	"github.com/dotsetgreg/rumi/pkg/logger"
	"github.com/dotsetgreg/rumi/pkg/memory"
)

const (
	// DefaultReplyCacheSize bounds the platform id to ledger id map used to
	// resolve reply references.
	DefaultReplyCacheSize = 4096
	defaultStoreTimeout   = 15 * time.Second
)

type Options struct {
	ReplyCacheSize int
	StoreTimeout   time.Duration
}

// Worker drains the inbound bus into the message store. Messages are stored
// one at a time in arrival order.
type Worker struct {
	bus     *bus.MessageBus
	writer  memory.MessageWriter
	replies *lru.Cache[string, int64]
	opts    Options

	stored atomic.Uint64
	failed atomic.Uint64

	stopCh    chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

func NewWorker(mb *bus.MessageBus, writer memory.MessageWriter, opts Options) (*Worker, error) {
	if opts.ReplyCacheSize <= 0 {
		opts.ReplyCacheSize = DefaultReplyCacheSize
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	replies, err := lru.New[string, int64](opts.ReplyCacheSize)
	if err != nil {
		return nil, err
	}
	return &Worker{
		bus:     mb,
		writer:  writer,
		replies: replies,
		opts:    opts,
		stopCh:  make(chan struct{}),
	}, nil
}

func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		w.wg.Add(2)
		go func() {
			defer w.wg.Done()
			select {
			case <-w.stopCh:
			case <-runCtx.Done():
			}
			cancel()
		}()
		go func() {
			defer w.wg.Done()
			defer cancel()
			w.loop(runCtx)
		}()
		logger.InfoC("ingest", "Ingest worker started")
	})
}

func (w *Worker) loop(ctx context.Context) {
	for {
		msg, ok := w.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		_, _ = w.Handle(ctx, msg)
	}
}

// Stop ends the consume loop and waits for the in-flight message. Messages
// still queued on the bus are left there.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.Wait()
}

// Wait blocks until the consume loop exits, which happens once the bus is
// closed and drained, the start context ends, or Stop is called.
func (w *Worker) Wait() {
	w.wg.Wait()
	logger.InfoCF("ingest", "Ingest worker stopped", map[string]any{
		"stored": w.stored.Load(),
		"failed": w.failed.Load(),
	})
}

// Handle stores one inbound message and remembers its ledger id for later
// replies.
func (w *Worker) Handle(ctx context.Context, msg bus.InboundMessage) (int64, error) {
	in := w.toInput(msg)

	storeCtx, cancel := context.WithTimeout(ctx, w.opts.StoreTimeout)
	defer cancel()

	id, err := w.writer.StoreMessage(storeCtx, in)
	if err != nil {
		w.failed.Add(1)
		logger.ErrorCF("ingest", "Failed to store message", map[string]any{
			"correlation_id": uuid.NewString(),
			"platform_id":    msg.PlatformID,
			"guild_id":       msg.GuildID,
			"channel_id":     msg.ChannelID,
			"user_id":        msg.UserID,
			"error":          err.Error(),
		})
		return 0, err
	}

	w.stored.Add(1)
	if msg.PlatformID != "" {
		w.replies.Add(msg.PlatformID, id)
	}
	logger.DebugCF("ingest", "Stored message", map[string]any{
		"id":          id,
		"platform_id": msg.PlatformID,
		"user_id":     msg.UserID,
		"reply_to":    in.ReplyToID,
	})
	return id, nil
}

func (w *Worker) toInput(msg bus.InboundMessage) memory.MessageInput {
	replyTo := msg.ReplyToID
	if replyTo == 0 && msg.ReplyToPlatformID != "" {
		if id, ok := w.replies.Get(msg.ReplyToPlatformID); ok {
			replyTo = id
		}
	}
	return memory.MessageInput{
		GuildID:     msg.GuildID,
		GuildName:   msg.GuildName,
		ChannelID:   msg.ChannelID,
		ChannelName: msg.ChannelName,
		UserID:      msg.UserID,
		Username:    msg.Username,
		DisplayName: msg.DisplayName,
		Content:     msg.Content,
		Kind:        msg.Kind,
		ReplyToID:   replyTo,
		Timestamp:   msg.Timestamp,
	}
}

// Counts reports messages stored and failed since start.
func (w *Worker) Counts() (stored, failed uint64) {
	return w.stored.Load(), w.failed.Load()
}
