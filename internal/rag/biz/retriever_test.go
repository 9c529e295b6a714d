package biz

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bdlaw/internal/rag/metrics"
	"github.com/kart-io/bdlaw/internal/rag/store"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
)

func TestRetrieveFilterConstruction(t *testing.T) {
	tests := []struct {
		name   string
		terms  []string
		filter store.Filter
	}{
		{"no terms", []string{}, nil},
		{"nil terms", nil, nil},
		{"single term", []string{"9"}, store.Filter{"$contains": "9"}},
		{"two terms", []string{"9", "79"}, store.Filter{"$or": []store.Filter{
			{"$contains": "9"},
			{"$contains": "79"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := &fakeStore{}
			r := NewRetriever(vs, metrics.New())

			_, err := r.Retrieve(context.Background(), "Right to Information Act section 9", tt.terms, 20)
			require.NoError(t, err)

			q := vs.lastQuery()
			require.NotNil(t, q)
			assert.Equal(t, []string{"Right to Information Act section 9"}, q.Texts)
			assert.Equal(t, 20, q.Limit)
			assert.Equal(t, tt.filter, q.Filter)
		})
	}
}

func TestRetrieveFlattensFirstBatch(t *testing.T) {
	vs := &fakeStore{result: rtiResult()}
	r := NewRetriever(vs, metrics.New())

	docs, err := r.Retrieve(context.Background(), "q", []string{"9"}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Section 9. Procedure for providing information.", docs[0].Text)
	assert.Equal(t, "9", docs[0].Metadata["section_en"])
	assert.InDelta(t, 0.12, docs[0].Distance, 1e-9)
}

func TestRetrieveEmptyResult(t *testing.T) {
	r := NewRetriever(&fakeStore{}, metrics.New())
	docs, err := r.Retrieve(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestRetrieveInvalidLimit(t *testing.T) {
	vs := &fakeStore{}
	r := NewRetriever(vs, metrics.New())

	for _, limit := range []int{0, -1} {
		_, err := r.Retrieve(context.Background(), "q", nil, limit)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidLimit))
	}
	assert.Nil(t, vs.lastQuery(), "store must not be queried")
}

func TestRetrieveStoreFailure(t *testing.T) {
	m := metrics.New()
	vs := &fakeStore{err: stderrors.New("connection reset by peer")}
	r := NewRetriever(vs, m)

	docs, err := r.Retrieve(context.Background(), "q", nil, 5)
	assert.Nil(t, docs)
	assert.True(t, stderrors.Is(err, errors.ErrRetrieval))
	assert.ErrorContains(t, err, "connection reset by peer")
	assert.Len(t, vs.queries, 1, "no retry")
	assert.Equal(t, uint64(1), m.Stats().Retrieval.Errors)
}
