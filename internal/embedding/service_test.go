package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/codesight/internal/models"
	"github.com/hyperjump/codesight/internal/storage"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmbedTextReusesStoredEmbedding(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := NewMockEmbedder(16)
	svc := NewService(embedder, store, models.ModelDescriptor{Name: "mock", Provider: "test"})

	first, err := svc.EmbedText(ctx, "func Run()")
	require.NoError(t, err)

	second, err := svc.EmbedText(ctx, "func Run()")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "identical text under the same model should reuse the stored embedding")
}

func TestEmbedEntityLinksSourceLocation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	embedder := NewMockEmbedder(16)
	svc := NewService(embedder, store, models.ModelDescriptor{Name: "mock", Provider: "test"})

	cb := models.NewCodebase("demo", "/repo/demo")
	require.NoError(t, store.CreateCodebase(ctx, cb))
	entity := models.NewCodeEntity(cb.ID, models.EntityFunction, "Run", "pkg.Run", "pkg/run.go")
	entity.StartLine, entity.EndLine = 3, 9
	entity.Documentation = "Run starts the service."

	e, err := svc.EmbedEntity(ctx, entity)
	require.NoError(t, err)
	assert.Equal(t, entity.ID, e.EntityID)
	require.NotNil(t, e.Source)
	assert.Equal(t, "pkg/run.go", e.Source.FilePath)
}

func TestCosineSimilarityDetectsDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.Error(t, err)
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0.6, 0.8}, []float32{0.6, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)
}

func TestEuclideanDistanceAndDotProduct(t *testing.T) {
	d, err := EuclideanDistance([]float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-6)

	dot, err := DotProduct([]float32{1, 2}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 11.0, dot, 1e-6)

	_, err = EuclideanDistance([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
	_, err = DotProduct([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestValidateBatchForModelRejectsBatchOnNonBatchingModel(t *testing.T) {
	model := models.ModelDescriptor{Name: "solo", SupportsBatching: false}
	_, err := ValidateBatchForModel(model, []string{"a", "b"}, true)
	assert.Error(t, err)

	out, err := ValidateBatchForModel(model, []string{"a"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out)
}

func TestValidateBatchForModelRejectsOversizedBatch(t *testing.T) {
	model := models.ModelDescriptor{Name: "capped", SupportsBatching: true, MaxBatchSize: 2}
	_, err := ValidateBatchForModel(model, []string{"a", "b", "c"}, true)
	assert.Error(t, err)
}

func TestValidateBatchForModelTruncatesLongInputWhenRequested(t *testing.T) {
	model := models.ModelDescriptor{Name: "short", SupportsBatching: true, MaxInputLength: 2}
	out, err := ValidateBatchForModel(model, []string{"one two three four"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"one two"}, out)
}

func TestValidateBatchForModelFailsLongInputWhenTruncationNotRequested(t *testing.T) {
	model := models.ModelDescriptor{Name: "short", SupportsBatching: true, MaxInputLength: 2}
	_, err := ValidateBatchForModel(model, []string{"one two three four"}, false)
	assert.Error(t, err)
}

func TestMockEmbedderEmbedBatchEnforcesModelLimits(t *testing.T) {
	ctx := context.Background()
	embedder := NewMockEmbedder(8)
	embedder.SetModel(models.ModelDescriptor{Name: "mock", SupportsBatching: true, MaxBatchSize: 1}, true)

	_, err := embedder.EmbedBatch(ctx, []string{"a", "b"})
	assert.Error(t, err)

	out, err := embedder.EmbedBatch(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
