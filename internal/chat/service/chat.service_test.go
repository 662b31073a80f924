package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"flexchat/internal/metrics"
	"flexchat/internal/pubsub"
	"flexchat/pkg/version"
	"flexchat/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var testCode = version.Encode(version.MustParse("0.3.0"), 0)

func newService(t *testing.T) *ChatService {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), store.FileName), testCode)
	require.NoError(t, err)
	svc := NewChatService(s)
	t.Cleanup(svc.Close)
	return svc
}

func createChannels(t *testing.T, svc *ChatService, names ...string) []store.Channel {
	t.Helper()
	out := make([]store.Channel, 0, len(names))
	for _, name := range names {
		c, err := svc.CreateChannel(name)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func addComments(t *testing.T, svc *ChatService, channel store.ChannelID, messages ...string) []store.Comment {
	t.Helper()
	out := make([]store.Comment, 0, len(messages))
	for _, m := range messages {
		c, err := svc.AddComment(channel, "alice", m)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

func TestSaveAndReopen(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "a", "b")
	comments := append(
		addComments(t, svc, channels[0].ID, "1", "2"),
		addComments(t, svc, channels[1].ID, "3")...,
	)

	reopened, err := store.Open(svc.Store.Path(), testCode)
	require.NoError(t, err)
	doc, err := reopened.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, channels, doc.Channels)
	assert.Equal(t, comments, doc.Comments)
}

func TestFindChannel(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "a", "a")
	assert.NotEqual(t, channels[0].ID, channels[1].ID, "duplicate names are allowed")

	got, ok, err := svc.FindChannel(channels[1].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, channels[1], got)

	_, ok, err = svc.FindChannel(store.NewChannelID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannelsAfter(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "A", "B", "C")

	all, err := svc.ListChannelsCreatedAsc()
	require.NoError(t, err)
	assert.Equal(t, channels, all)

	after, err := svc.ChannelsAfter(channels[1].ID)
	require.NoError(t, err)
	assert.Equal(t, channels[2:], after)

	after, err = svc.ChannelsAfter(channels[2].ID)
	require.NoError(t, err)
	assert.Empty(t, after)

	_, err = svc.ChannelsAfter(store.NewChannelID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddCommentUnknownChannel(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "a")
	addComments(t, svc, channels[0].ID, "1")

	before, err := svc.Store.ReadAll()
	require.NoError(t, err)

	_, err = svc.AddComment(store.NewChannelID(), "bob", "lost")
	assert.ErrorIs(t, err, ErrChannelNotFound)

	after, err := svc.Store.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCommentsAfter(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "a", "b")
	c := addComments(t, svc, channels[0].ID, "1", "2")
	other := addComments(t, svc, channels[1].ID, "x")
	c = append(c, addComments(t, svc, channels[0].ID, "3", "4")...)

	asc, err := svc.CommentsAfter(channels[0].ID, c[1].ID, ASC)
	require.NoError(t, err)
	assert.Equal(t, []store.Comment{c[2], c[3]}, asc)

	desc, err := svc.CommentsAfter(channels[0].ID, c[1].ID, DESC)
	require.NoError(t, err)
	assert.Equal(t, []store.Comment{c[3], c[2]}, desc)

	// The cursor must belong to the queried channel.
	_, err = svc.CommentsAfter(channels[0].ID, other[0].ID, ASC)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFirstCommentsReturnsNewest(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "a")
	c := addComments(t, svc, channels[0].ID, "c1", "c2", "c3", "c4")

	asc, err := svc.FirstComments(channels[0].ID, 2, ASC)
	require.NoError(t, err)
	assert.Equal(t, []store.Comment{c[2], c[3]}, asc)

	desc, err := svc.FirstComments(channels[0].ID, 2, DESC)
	require.NoError(t, err)
	assert.Equal(t, []store.Comment{c[3], c[2]}, desc)

	all, err := svc.FirstComments(channels[0].ID, 10, ASC)
	require.NoError(t, err)
	assert.Equal(t, c, all)

	none, err := svc.FirstComments(channels[0].ID, 0, ASC)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.FirstComments(channels[0].ID, -1, ASC)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestLongPollCommentsWakesOnMatchingChannel(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "x", "y")
	x, y := channels[0].ID, channels[1].ID

	type result struct {
		comments []store.Comment
		err      error
	}
	done := make(chan result, 1)
	go func() {
		comments, err := svc.LongPollComments(context.Background(), x, nil, ASC)
		done <- result{comments, err}
	}()
	waitFor(t, func() bool { return svc.PendingCommentPolls(x) == 1 })

	addComments(t, svc, y, "elsewhere")
	select {
	case r := <-done:
		t.Fatalf("woke on another channel: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	want := addComments(t, svc, x, "hello")
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, want, r.comments)
	case <-time.After(time.Second):
		t.Fatal("long poll did not wake")
	}
	assert.Equal(t, 0, svc.PendingCommentPolls(x))
}

func TestLongPollCommentsReturnsExistingRecords(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "x")
	c := addComments(t, svc, channels[0].ID, "1", "2", "3")

	got, err := svc.LongPollComments(context.Background(), channels[0].ID, &c[0].ID, DESC)
	require.NoError(t, err)
	assert.Equal(t, []store.Comment{c[2], c[1]}, got)

	missing := store.NewCommentID()
	_, err = svc.LongPollComments(context.Background(), channels[0].ID, &missing, ASC)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.LongPollComments(context.Background(), store.NewChannelID(), nil, ASC)
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestLongPollCommentsAtCursorBlocks(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "x")
	c := addComments(t, svc, channels[0].ID, "1")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := svc.LongPollComments(ctx, channels[0].ID, &c[0].ID, ASC)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, svc.PendingCommentPolls(channels[0].ID))
}

func TestLongPollChannels(t *testing.T) {
	svc := newService(t)
	channels := createChannels(t, svc, "a", "b", "c")

	got, err := svc.LongPollChannels(context.Background(), &channels[0].ID, ASC)
	require.NoError(t, err)
	assert.Equal(t, channels[1:], got)

	got, err = svc.LongPollChannels(context.Background(), &channels[0].ID, DESC)
	require.NoError(t, err)
	assert.Equal(t, []store.Channel{channels[2], channels[1]}, got)

	unknown := store.NewChannelID()
	_, err = svc.LongPollChannels(context.Background(), &unknown, ASC)
	assert.ErrorIs(t, err, ErrNotFound)

	done := make(chan []store.Channel, 1)
	go func() {
		got, err := svc.LongPollChannels(context.Background(), &channels[2].ID, ASC)
		if err == nil {
			done <- got
		}
	}()
	waitFor(t, func() bool { return svc.PendingChannelPolls() == 1 })

	created := createChannels(t, svc, "d")
	select {
	case got := <-done:
		assert.Equal(t, created, got)
	case <-time.After(time.Second):
		t.Fatal("channel long poll did not wake")
	}
}

func TestCloseReleasesLongPolls(t *testing.T) {
	svc := newService(t)
	done := make(chan error, 1)
	go func() {
		_, err := svc.LongPollChannels(context.Background(), nil, ASC)
		done <- err
	}()
	waitFor(t, func() bool { return svc.PendingChannelPolls() == 1 })

	svc.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, pubsub.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("close did not release the long poll")
	}
}

func TestConcurrentAddComment(t *testing.T) {
	svc := newService(t)
	channel := createChannels(t, svc, "busy")[0]

	const n = 32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		msg := fmt.Sprintf("message-%d", i)
		g.Go(func() error {
			_, err := svc.AddComment(channel.ID, "writer", msg)
			return err
		})
	}
	require.NoError(t, g.Wait())

	doc, err := svc.Store.ReadAll()
	require.NoError(t, err)
	require.NoError(t, doc.Validate())
	require.Len(t, doc.Comments, n)

	seen := make(map[string]int, n)
	for _, c := range doc.Comments {
		seen[c.Message]++
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, 1, seen[fmt.Sprintf("message-%d", i)])
	}
}

func TestParseOrderDirection(t *testing.T) {
	dir, err := ParseOrderDirection("")
	require.NoError(t, err)
	assert.Equal(t, ASC, dir)

	dir, err = ParseOrderDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, DESC, dir)

	_, err = ParseOrderDirection("sideways")
	assert.Error(t, err)
}

func TestWriteMetrics(t *testing.T) {
	svc := newService(t)
	ok := metrics.DocumentWrites.WithLabelValues("comment", "ok")
	rejected := metrics.DocumentWrites.WithLabelValues("comment", "rejected")
	okBefore, rejectedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(rejected)

	channel := createChannels(t, svc, "a")[0]
	addComments(t, svc, channel.ID, "1")
	_, err := svc.AddComment(store.NewChannelID(), "bob", "lost")
	require.Error(t, err)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(rejected))
}
