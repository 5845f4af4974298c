package pgvector

import (
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressroom/backend/internal/vector"
)

func TestSimilarityQuery_Operators(t *testing.T) {
	q, err := similarityQuery(vector.MetricCosine)
	require.NoError(t, err)
	assert.Contains(t, q, "embedding <=> $2")

	q, err = similarityQuery(vector.MetricEuclidean)
	require.NoError(t, err)
	assert.Contains(t, q, "embedding <-> $2")
	assert.Contains(t, q, "ORDER BY distance")

	_, err = similarityQuery("dot")
	assert.Error(t, err)
}

func TestMigrations_Embedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "migrations/000001_document_embeddings.up.sql")
	assert.Contains(t, names, "migrations/000001_document_embeddings.down.sql")

	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
}
