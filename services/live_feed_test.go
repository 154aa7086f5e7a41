package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedRoomCount(f *LiveFeed) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms)
}

// A watcher that obtained the room just before the last client left must
// still be able to register: the run loop may not tear the room down while
// a Join has been handed out.
func TestLiveFeedJoinDuringTeardown(t *testing.T) {
	feed := NewLiveFeed()
	challengeID := uuid.New()

	room := feed.Join(challengeID)
	first := NewFeedClient(room, nil)

	// Second watcher gets the room pointer before the first disconnects.
	again := feed.Join(challengeID)
	require.Same(t, room, again)

	room.unregister <- first

	registered := make(chan *FeedClient, 1)
	go func() {
		registered <- NewFeedClient(again, nil)
	}()

	var second *FeedClient
	select {
	case second = <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("registering on a room obtained before teardown blocked")
	}

	// The room is alive and delivering events to the late watcher.
	feed.Publish(ProgressEvent{ChallengeID: challengeID, UserID: uuid.New(), Progress: 40, At: time.Now()})
	select {
	case msg := <-second.Send:
		assert.Contains(t, string(msg), `"progress":40`)
	case <-time.After(2 * time.Second):
		t.Fatal("late watcher never received a published event")
	}

	room.unregister <- second
	assert.Eventually(t, func() bool { return feedRoomCount(feed) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLiveFeedDestroysEmptyRoom(t *testing.T) {
	feed := NewLiveFeed()
	challengeID := uuid.New()

	room := feed.Join(challengeID)
	client := NewFeedClient(room, nil)
	require.Equal(t, 1, feedRoomCount(feed))

	room.unregister <- client

	_, open := <-client.Send
	assert.False(t, open)
	assert.Eventually(t, func() bool { return feedRoomCount(feed) == 0 }, 2*time.Second, 10*time.Millisecond)

	// A fresh Join after teardown starts a new room.
	fresh := feed.Join(challengeID)
	require.NotNil(t, fresh)
	assert.NotSame(t, room, fresh)
	NewFeedClient(fresh, nil)
	assert.Equal(t, 1, feedRoomCount(feed))
}

func TestLiveFeedPublishWithoutWatchersIsNoop(t *testing.T) {
	feed := NewLiveFeed()
	feed.Publish(ProgressEvent{ChallengeID: uuid.New(), Progress: 100, Completed: true, At: time.Now()})
	assert.Equal(t, 0, feedRoomCount(feed))
}
