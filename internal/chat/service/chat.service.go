package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"flexchat/internal/metrics"
	"flexchat/internal/pubsub"
	"flexchat/pkg/logger"
	"flexchat/store"
)

var (
	ErrNotFound        = errors.New("id not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrInvalidCount    = errors.New("count must not be negative")
)

type OrderDirection string

const (
	ASC  OrderDirection = "ASC"
	DESC OrderDirection = "DESC"
)

// ParseOrderDirection accepts ASC or DESC; empty means ASC.
func ParseOrderDirection(s string) (OrderDirection, error) {
	switch OrderDirection(s) {
	case "", ASC:
		return ASC, nil
	case DESC:
		return DESC, nil
	}
	return "", fmt.Errorf("invalid order direction %q", s)
}

// ChatService is the single entry point to the chat document. Writes are
// serialized by mu; long polls wait on the registries.
type ChatService struct {
	Store *store.Store

	mu       sync.RWMutex
	channels *pubsub.Registry[store.Channel]
	comments *pubsub.Registry[store.Comment]
}

func NewChatService(s *store.Store) *ChatService {
	channels := pubsub.NewRegistry[store.Channel]()
	channels.OnChange = func(delta int) {
		metrics.LongPollWaiters.WithLabelValues("channel").Add(float64(delta))
	}
	comments := pubsub.NewRegistry[store.Comment]()
	comments.OnChange = func(delta int) {
		metrics.LongPollWaiters.WithLabelValues("comment").Add(float64(delta))
	}
	return &ChatService{Store: s, channels: channels, comments: comments}
}

// Close releases every pending long poll with pubsub.ErrClosed.
func (s *ChatService) Close() {
	s.channels.Close()
	s.comments.Close()
}

// CreateChannel appends a channel and wakes channel long polls. Duplicate
// names are allowed.
func (s *ChatService) CreateChannel(name string) (store.Channel, error) {
	channel := store.Channel{ID: store.NewChannelID(), Name: name}

	err := s.write("channel", func(doc *store.Document) error {
		doc.Channels = append(doc.Channels, channel)
		return nil
	}, func() {
		s.channels.Publish(pubsub.AnyChannel, channel)
	})
	if err != nil {
		return store.Channel{}, err
	}
	logger.Sugar.Infof("Created channel %s (%q)", channel.ID, channel.Name)
	return channel, nil
}

// AddComment appends a comment to an existing channel and wakes that
// channel's long polls. The document is left untouched on failure.
func (s *ChatService) AddComment(channelID store.ChannelID, name, message string) (store.Comment, error) {
	comment := store.Comment{
		ID:        store.NewCommentID(),
		ChannelID: channelID,
		Name:      name,
		Message:   message,
	}

	err := s.write("comment", func(doc *store.Document) error {
		if _, ok := doc.FindChannel(channelID); !ok {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		doc.Comments = append(doc.Comments, comment)
		return nil
	}, func() {
		s.comments.Publish(channelID.String(), comment)
	})
	if err != nil {
		return store.Comment{}, err
	}
	return comment, nil
}

// write runs one read-modify-write cycle under the document lock. publish
// runs after the file is written and before the lock is released, so waiters
// see records in write order.
func (s *ChatService) write(kind string, mutate func(*store.Document) error, publish func()) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		metrics.DocumentWriteDuration.Observe(time.Since(start).Seconds())
	}()

	doc, err := s.Store.ReadAll()
	if err != nil {
		metrics.DocumentWrites.WithLabelValues(kind, "error").Inc()
		return err
	}
	if err := mutate(doc); err != nil {
		metrics.DocumentWrites.WithLabelValues(kind, "rejected").Inc()
		return err
	}
	if err := doc.Validate(); err != nil {
		metrics.DocumentWrites.WithLabelValues(kind, "rejected").Inc()
		return err
	}
	if err := s.Store.WriteAll(doc); err != nil {
		metrics.DocumentWrites.WithLabelValues(kind, "error").Inc()
		logger.Sugar.Errorf("Failed to write %s: %v", kind, err)
		return err
	}
	metrics.DocumentWrites.WithLabelValues(kind, "ok").Inc()
	publish()
	return nil
}

func (s *ChatService) snapshot() (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Store.ReadAll()
}

// FindChannel returns false when no channel has id.
func (s *ChatService) FindChannel(id store.ChannelID) (store.Channel, bool, error) {
	doc, err := s.snapshot()
	if err != nil {
		return store.Channel{}, false, err
	}
	channel, ok := doc.FindChannel(id)
	return channel, ok, nil
}

func (s *ChatService) ListChannelsCreatedAsc() ([]store.Channel, error) {
	doc, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return doc.Channels, nil
}

// ChannelsAfter returns the channels created after cursor.
func (s *ChatService) ChannelsAfter(cursor store.ChannelID) ([]store.Channel, error) {
	doc, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return channelsAfter(doc.Channels, cursor)
}

// LongPollChannels returns the channels after cursor when there are any.
// Otherwise, or without a cursor, it blocks until the next channel is created
// and returns just that one.
func (s *ChatService) LongPollChannels(ctx context.Context, cursor *store.ChannelID, dir OrderDirection) ([]store.Channel, error) {
	channels, waiter, err := s.channelsOrSubscribe(cursor, dir)
	if err != nil || waiter == nil {
		return channels, err
	}

	channel, err := waiter.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return []store.Channel{channel}, nil
}

// channelsOrSubscribe reads and subscribes under one read lock. Writers
// publish under the write lock, so no channel can land between the two.
func (s *ChatService) channelsOrSubscribe(cursor *store.ChannelID, dir OrderDirection) ([]store.Channel, *pubsub.Waiter[store.Channel], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cursor != nil {
		doc, err := s.Store.ReadAll()
		if err != nil {
			return nil, nil, err
		}
		channels, err := channelsAfter(doc.Channels, *cursor)
		if err != nil {
			return nil, nil, err
		}
		if len(channels) > 0 {
			return order(channels, dir), nil, nil
		}
	}
	return nil, s.channels.Subscribe(pubsub.AnyChannel), nil
}

// CommentsAfter returns the comments of a channel created after cursor.
func (s *ChatService) CommentsAfter(channelID store.ChannelID, cursor store.CommentID, dir OrderDirection) ([]store.Comment, error) {
	doc, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	comments, err := commentsAfter(doc.CommentsIn(channelID), cursor)
	if err != nil {
		return nil, err
	}
	return order(comments, dir), nil
}

// FirstComments returns the last count comments of a channel by creation
// time, oldest first for ASC and reversed for DESC.
func (s *ChatService) FirstComments(channelID store.ChannelID, count int, dir OrderDirection) ([]store.Comment, error) {
	if count < 0 {
		return nil, ErrInvalidCount
	}
	doc, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	comments := doc.CommentsIn(channelID)
	if len(comments) > count {
		comments = comments[len(comments)-count:]
	}
	return order(comments, dir), nil
}

// LongPollComments is LongPollChannels scoped to one channel's comments.
func (s *ChatService) LongPollComments(ctx context.Context, channelID store.ChannelID, cursor *store.CommentID, dir OrderDirection) ([]store.Comment, error) {
	comments, waiter, err := s.commentsOrSubscribe(channelID, cursor, dir)
	if err != nil || waiter == nil {
		return comments, err
	}

	comment, err := waiter.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return []store.Comment{comment}, nil
}

func (s *ChatService) commentsOrSubscribe(channelID store.ChannelID, cursor *store.CommentID, dir OrderDirection) ([]store.Comment, *pubsub.Waiter[store.Comment], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.Store.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if _, ok := doc.FindChannel(channelID); !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	if cursor != nil {
		comments, err := commentsAfter(doc.CommentsIn(channelID), *cursor)
		if err != nil {
			return nil, nil, err
		}
		if len(comments) > 0 {
			return order(comments, dir), nil, nil
		}
	}
	return nil, s.comments.Subscribe(channelID.String()), nil
}

// PendingCommentPolls reports the comment long polls waiting on a channel.
func (s *ChatService) PendingCommentPolls(channelID store.ChannelID) int {
	return s.comments.Len(channelID.String())
}

// PendingChannelPolls reports the long polls waiting for a new channel.
func (s *ChatService) PendingChannelPolls() int {
	return s.channels.Len(pubsub.AnyChannel)
}

func channelsAfter(channels []store.Channel, cursor store.ChannelID) ([]store.Channel, error) {
	i := slices.IndexFunc(channels, func(c store.Channel) bool { return c.ID == cursor })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cursor)
	}
	return slices.Clone(channels[i+1:]), nil
}

func commentsAfter(comments []store.Comment, cursor store.CommentID) ([]store.Comment, error) {
	i := slices.IndexFunc(comments, func(c store.Comment) bool { return c.ID == cursor })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cursor)
	}
	return slices.Clone(comments[i+1:]), nil
}

func order[T any](records []T, dir OrderDirection) []T {
	if dir == DESC {
		slices.Reverse(records)
	}
	return records
}
