package challenge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"fitTribeAPI/internal/apperr"
)

func TestClampProgress(t *testing.T) {
	assert.Equal(t, 0, ClampProgress(-5))
	assert.Equal(t, 0, ClampProgress(0))
	assert.Equal(t, 55, ClampProgress(55))
	assert.Equal(t, 100, ClampProgress(100))
	assert.Equal(t, 100, ClampProgress(250))
}

func TestCompletionEdge(t *testing.T) {
	p := &Participant{Progress: 80}
	assert.False(t, CompletionEdge(p, 99))
	assert.True(t, CompletionEdge(p, 100))

	now := time.Now()
	done := &Participant{Progress: 100, CompletedAt: &now}
	assert.False(t, CompletionEdge(done, 100), "completion fires once")
}

func TestJoinEligibilityOrder(t *testing.T) {
	now := time.Now()
	userID := uuid.New()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	one := 1

	base := func() *Challenge {
		return &Challenge{ID: uuid.New(), IsActive: true}
	}

	t.Run("eligible", func(t *testing.T) {
		assert.NoError(t, base().JoinEligibility(userID, now))
	})

	t.Run("inactive wins over everything", func(t *testing.T) {
		c := base()
		c.IsActive = false
		c.Participants = []Participant{{UserID: userID}}
		c.MaxParticipants = &one
		assert.ErrorIs(t, c.JoinEligibility(userID, now), apperr.ErrInvalidState)
	})

	t.Run("already participating beats capacity", func(t *testing.T) {
		c := base()
		c.Participants = []Participant{{UserID: userID}}
		c.MaxParticipants = &one
		assert.ErrorIs(t, c.JoinEligibility(userID, now), apperr.ErrConflict)
	})

	t.Run("full", func(t *testing.T) {
		c := base()
		c.Participants = []Participant{{UserID: uuid.New()}}
		c.MaxParticipants = &one
		err := c.JoinEligibility(userID, now)
		assert.ErrorIs(t, err, apperr.ErrInvalidState)
		assert.Contains(t, err.Error(), "full")
	})

	t.Run("not started", func(t *testing.T) {
		c := base()
		c.StartDate = &future
		err := c.JoinEligibility(userID, now)
		assert.ErrorIs(t, err, apperr.ErrInvalidState)
		assert.Contains(t, err.Error(), "not started")
	})

	t.Run("ended", func(t *testing.T) {
		c := base()
		c.EndDate = &past
		err := c.JoinEligibility(userID, now)
		assert.ErrorIs(t, err, apperr.ErrInvalidState)
		assert.Contains(t, err.Error(), "ended")
	})

	t.Run("window boundaries are inclusive", func(t *testing.T) {
		c := base()
		c.StartDate = &now
		c.EndDate = &now
		assert.NoError(t, c.JoinEligibility(userID, now))
	})
}

func TestRankParticipants(t *testing.T) {
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	a := Participant{UserID: uuid.New(), Progress: 100, CompletedAt: &late}
	b := Participant{UserID: uuid.New(), Progress: 100, CompletedAt: &early}
	c := Participant{UserID: uuid.New(), Progress: 60}
	d := Participant{UserID: uuid.New(), Progress: 60}
	e := Participant{UserID: uuid.New(), Progress: 85}

	ranked := RankParticipants([]Participant{a, c, d, e, b})

	assert.Equal(t, b.UserID, ranked[0].UserID, "earlier completion ranks first")
	assert.Equal(t, a.UserID, ranked[1].UserID)
	assert.Equal(t, e.UserID, ranked[2].UserID)
	assert.Equal(t, c.UserID, ranked[3].UserID, "ties keep insertion order")
	assert.Equal(t, d.UserID, ranked[4].UserID)
}

func TestRankParticipantsDoesNotMutateInput(t *testing.T) {
	input := []Participant{
		{UserID: uuid.New(), Progress: 10},
		{UserID: uuid.New(), Progress: 90},
	}
	first := input[0].UserID

	RankParticipants(input)

	assert.Equal(t, first, input[0].UserID)
}

func TestCompletedCount(t *testing.T) {
	now := time.Now()
	c := &Challenge{Participants: []Participant{
		{UserID: uuid.New(), Progress: 100, CompletedAt: &now},
		{UserID: uuid.New(), Progress: 40},
	}}

	assert.Equal(t, 2, c.ParticipantCount())
	assert.Equal(t, 1, c.CompletedCount())
}
