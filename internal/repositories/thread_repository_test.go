package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resonate/chat-service/internal/errs"
)

func TestNormalizePair(t *testing.T) {
	a, b := normalizePair(7, 3)
	assert.Equal(t, 3, a)
	assert.Equal(t, 7, b)

	a, b = normalizePair(3, 7)
	assert.Equal(t, 3, a)
	assert.Equal(t, 7, b)
}

func TestResolveOrCreateRejectsSelfThread(t *testing.T) {
	repo := NewThreadRepo(nil)

	_, err := repo.ResolveOrCreate(context.Background(), 4, 4)
	require.ErrorIs(t, err, errs.ErrSelfThread)
}
