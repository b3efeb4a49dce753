package usecase

import (
	"context"
	"testing"

	"elasticrag/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCollections(t *testing.T) {
	admin := newFakeIndexAdmin(
		"bge-small__alice__docs",
		"alice__notes",
		"bge-small__bob__docs",
		"other__alice-archive__old",
		domain.UserIndex,
	)
	client := NewClient(nil, nil, nil, admin)

	infos, err := client.ListCollections(context.Background(), "alice")
	require.NoError(t, err)

	require.Len(t, infos, 2)
	assert.Equal(t, "notes", infos[0].Name)
	assert.Empty(t, infos[0].ModelID, "no model segment means lexical-only")
	assert.Equal(t, "docs", infos[1].Name)
	assert.Equal(t, "bge-small", infos[1].ModelID)
	assert.Equal(t, "bge-small__alice__docs", infos[1].Index)
}

func TestListCollections_InvalidUsername(t *testing.T) {
	client := NewClient(nil, nil, nil, newFakeIndexAdmin())

	_, err := client.ListCollections(context.Background(), "bad__name")

	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}
