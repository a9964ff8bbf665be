package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/deepresearch/internal/domain"
)

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRegistry_DeleteIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Delete("never-existed")

	r.Put(domain.Job{ID: "a"}, nil)
	r.Delete("a")
	r.Delete("a")

	_, err := r.Get("a")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRegistry_UpdateReplacesSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Put(domain.Job{ID: "a", Status: domain.JobStatusPending}, nil)

	got, err := r.Update("a", func(j *domain.Job) error {
		j.Status = domain.JobStatusProcessing
		j.Progress = 5
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)

	stored, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Progress)
}

func TestRegistry_UpdateErrorKeepsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Put(domain.Job{ID: "a", Status: domain.JobStatusCancelled}, nil)
	errStop := errors.New("stop")

	_, err := r.Update("a", func(j *domain.Job) error {
		j.Status = domain.JobStatusCompleted
		return errStop
	})
	assert.ErrorIs(t, err, errStop)

	stored, _ := r.Get("a")
	assert.Equal(t, domain.JobStatusCancelled, stored.Status)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Put(domain.Job{ID: "a", Sources: []domain.Source{{Title: "one"}}}, nil)

	j, _ := r.Get("a")
	j.Sources[0].Title = "mutated"

	again, _ := r.Get("a")
	assert.Equal(t, "one", again.Sources[0].Title)
}

func TestRegistry_ListOrderAndLimit(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Put(domain.Job{ID: "old", CreatedAt: base}, nil)
	r.Put(domain.Job{ID: "new", CreatedAt: base.Add(2 * time.Hour)}, nil)
	r.Put(domain.Job{ID: "mid", CreatedAt: base.Add(time.Hour)}, nil)

	all := r.List(0)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})

	top := r.List(2)
	require.Len(t, top, 2)
	assert.Equal(t, "new", top[0].ID)
	assert.Equal(t, "mid", top[1].ID)
}
