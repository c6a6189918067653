// Package server bridges the Feishu connection into the message bus: it
// takes raw events off the vendor-owned WebSocket goroutine, deduplicates
// them, resolves media, and forwards them downstream.
package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/featherworks/feishu-agent-bridge/feishu"
	"github.com/featherworks/feishu-agent-bridge/internal/bus"
	"github.com/featherworks/feishu-agent-bridge/internal/data"
	"github.com/featherworks/feishu-agent-bridge/internal/dedup"
)

const channelName = "feishu"

// seenReaction is added to admitted messages before processing.
const seenReaction = "THUMBSUP"

// msgTypeLabels maps non-text message kinds to their display placeholder.
var msgTypeLabels = map[string]string{
	"image":   "[image]",
	"audio":   "[audio]",
	"file":    "[file]",
	"sticker": "[sticker]",
}

// Lifecycle states of the bridge.
const (
	stateStopped int32 = iota
	stateStarting
	stateConnected
	stateStopping
)

// stopTimeout bounds how long Stop waits for the dispatch goroutine to
// finish its in-flight event. Network operations already running are not
// cancelled; they complete fire-and-forget.
const stopTimeout = 5 * time.Second

// ChannelClient is the slice of the Feishu client the bridge needs.
type ChannelClient interface {
	OnEvent(feishu.EventHandler)
	Start(ctx context.Context) error
	Stop()
	AddReaction(ctx context.Context, messageID, emojiType string) error
	DownloadResource(ctx context.Context, eventID, resourceKey string) (string, error)
	Send(ctx context.Context, msg feishu.OutboundMessage) (string, error)
}

// FeishuServer owns the adapter-side pipeline. All mutable state (the dedup
// cache in particular) is confined to the single dispatch goroutine; the
// vendor's WebSocket goroutine only ever touches the handoff channel.
type FeishuServer struct {
	client  ChannelClient
	bus     *bus.MessageBus
	archive *data.Archive // optional
	title   string

	dedup  *dedup.Cache
	events chan *feishu.Event
	quit   chan struct{}
	done   chan struct{}
	state  atomic.Int32
}

// NewFeishuServer creates the bridge. archive may be nil.
func NewFeishuServer(client ChannelClient, b *bus.MessageBus, archive *data.Archive, title string) *FeishuServer {
	return &FeishuServer{
		client:  client,
		bus:     b,
		archive: archive,
		title:   title,
		dedup:   dedup.New(dedup.DefaultHighWater, dedup.DefaultLowWater),
		events:  make(chan *feishu.Event, 256),
	}
}

// Start spins up the dispatch goroutine and the vendor connection on its
// own goroutine, then returns. Reaching the connected state is best-effort;
// no handshake confirmation is modeled. Transport failures end the
// connection goroutine and are logged — there is no internal reconnection.
func (s *FeishuServer) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateStopped, stateStarting) {
		return fmt.Errorf("server already started")
	}

	// Fresh signal channels each run so a stopped bridge can be started
	// again; the previous run's channels are already closed.
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	s.client.OnEvent(s.onRawEvent)
	s.bus.SubscribeOutbound(channelName, s.handleOutbound)

	go s.dispatchLoop(ctx, s.quit, s.done)
	go func() {
		if err := s.client.Start(ctx); err != nil {
			log.Error().Err(err).Msg("feishu transport ended")
		}
	}()

	s.state.Store(stateConnected)
	log.Info().Msg("feishu bridge started")
	return nil
}

// Stop signals the connection to terminate and waits, bounded, for the
// dispatch goroutine to drain its current event.
func (s *FeishuServer) Stop() {
	if !s.state.CompareAndSwap(stateConnected, stateStopping) &&
		!s.state.CompareAndSwap(stateStarting, stateStopping) {
		return
	}

	s.client.Stop()
	close(s.quit)

	select {
	case <-s.done:
	case <-time.After(stopTimeout):
		log.Warn().Msg("dispatch goroutine did not stop in time")
	}

	s.state.Store(stateStopped)
	log.Info().Msg("feishu bridge stopped")
}

// onRawEvent is called on the vendor's WebSocket goroutine. It hands the
// event to the dispatch goroutine without blocking; when the bridge is not
// running or the queue is full the event is dropped. Dropping instead of
// queueing with retry is the backpressure policy.
func (s *FeishuServer) onRawEvent(ev *feishu.Event) {
	state := s.state.Load()
	if state != stateStarting && state != stateConnected {
		log.Debug().Str("event_id", ev.ID).Msg("bridge not running, event dropped")
		return
	}
	select {
	case s.events <- ev:
	default:
		log.Warn().Str("event_id", ev.ID).Msg("event queue full, event dropped")
	}
}

// dispatchLoop is the single consumer of the handoff channel. Every piece
// of adapter state is mutated here and only here.
func (s *FeishuServer) dispatchLoop(ctx context.Context, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.process(ctx, ev)
		}
	}
}

// process handles one admitted event. Failures are contained here so one
// bad event cannot halt the bridge.
func (s *FeishuServer) process(ctx context.Context, ev *feishu.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event_id", ev.ID).Msg("panic while processing event")
		}
	}()

	// An id admitted once is never reprocessed, whatever the payload.
	if !s.dedup.MarkIfNew(ev.ID) {
		log.Debug().Str("event_id", ev.ID).Msg("duplicate event dropped")
		return
	}

	if ev.SenderType == "bot" || ev.SenderType == "app" {
		return
	}

	if err := s.client.AddReaction(ctx, ev.ID, seenReaction); err != nil {
		log.Debug().Err(err).Str("event_id", ev.ID).Msg("seen reaction failed")
	}

	content, media := s.decode(ctx, ev)
	if content == "" {
		return
	}

	// Group messages are answered in the group; direct messages go back
	// to the sender.
	replyTo := ev.SenderID
	if ev.ChatType == "group" {
		replyTo = ev.ChatID
	}

	msg := bus.InboundMessage{
		Channel:   channelName,
		SenderID:  ev.SenderID,
		ChatID:    replyTo,
		Content:   content,
		Media:     media,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"message_id": ev.ID,
			"chat_type":  ev.ChatType,
			"msg_type":   ev.MsgType,
		},
	}

	if s.archive != nil {
		if err := s.archive.Record(ctx, &data.Record{
			MsgID:     ev.ID,
			Direction: data.DirectionInbound,
			Channel:   channelName,
			ChatID:    replyTo,
			SenderID:  ev.SenderID,
			Content:   content,
			CreatedAt: msg.Timestamp,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to archive inbound message")
		}
	}

	s.bus.PublishInbound(msg)
}

// decode turns a raw event payload into forwardable content plus any
// downloaded media paths.
func (s *FeishuServer) decode(ctx context.Context, ev *feishu.Event) (string, []string) {
	switch ev.MsgType {
	case "text":
		return feishu.ParseTextContent(ev.Content), nil
	case "image":
		key := feishu.ExtractResourceKey(ev.Content)
		if key == "" {
			return "[image: missing resource key]", nil
		}
		path, err := s.client.DownloadResource(ctx, ev.ID, key)
		if err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to download inbound image")
			return "[image: download failed]", nil
		}
		return fmt.Sprintf("[image: %s]", path), []string{path}
	default:
		if label, ok := msgTypeLabels[ev.MsgType]; ok {
			return label, nil
		}
		return fmt.Sprintf("[%s]", ev.MsgType), nil
	}
}

// handleOutbound delivers an agent reply through the compositor. Partial
// upload failures are already folded into the outcome string; only vendor
// send failures surface as errors, and those are logged rather than
// propagated so the agent loop is never interrupted.
func (s *FeishuServer) handleOutbound(msg bus.OutboundMessage) {
	out := feishu.OutboundMessage{
		ChatID: msg.ChatID,
		Text:   msg.Content,
		Media:  msg.Media,
		Title:  msg.Title(),
	}
	if out.Title == "" {
		out.Title = s.title
	}

	ctx := context.Background()
	outcome, err := s.client.Send(ctx, out)
	if err != nil {
		log.Error().Err(err).Str("chat_id", msg.ChatID).Str("outcome", outcome).Msg("outbound send failed")
		return
	}
	log.Info().Str("chat_id", msg.ChatID).Str("outcome", outcome).Msg("outbound send complete")

	if s.archive != nil && msg.Content != "" {
		if err := s.archive.Record(ctx, &data.Record{
			Direction: data.DirectionOutbound,
			Channel:   channelName,
			ChatID:    msg.ChatID,
			SenderID:  "bot",
			Content:   msg.Content,
			CreatedAt: time.Now(),
		}); err != nil {
			log.Warn().Err(err).Msg("failed to archive outbound message")
		}
	}
}
