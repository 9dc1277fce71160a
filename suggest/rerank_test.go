package suggest

import (
	"testing"

	"github.com/hupe1980/pagecorpus/label"
	"github.com/hupe1980/pagecorpus/model"
	"github.com/hupe1980/pagecorpus/similarity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(id, l string, score float32) similarity.Hit {
	return similarity.Hit{ID: model.PageID(id), Label: l, Score: score}
}

func labels(ss []Suggestion) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Label
	}
	return out
}

func TestRerankDedupesByCanonicalLabel(t *testing.T) {
	r := NewReranker(func(o *Options) {
		o.Resolver = label.Aliases{"f1040_P1": "1040_P1"}
	})

	got := r.Rerank([]similarity.Hit{
		hit("a#1", "1040_P1", 0.70),
		hit("b#1", "f1040_P1", 0.90),
		hit("c#1", "W2", 0.80),
	}, nil, nil)

	require.Len(t, got, 2)
	assert.Equal(t, "1040_P1", got[0].Label)
	assert.Equal(t, model.PageID("b#1"), got[0].MatchID)
	assert.InDelta(t, 0.90, got[0].Score, 1e-6)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "W2", got[1].Label)
	assert.Equal(t, 2, got[1].Rank)
}

func TestRerankBoosts(t *testing.T) {
	r := NewReranker()

	hits := []similarity.Hit{
		hit("a#1", "1040_P1", 0.80),
		hit("b#2", "1040_P2", 0.79),
		hit("c#1", "SchC_P1", 0.81),
		hit("d#1", "W2", 0.815),
	}

	page := &Page{AutoLabel: "1040_P2", RawLabel: "Form 1040 P2"}
	prev := &Page{Label: "1040_P1"}

	got := r.Rerank(hits, page, prev)
	require.Len(t, got, 4)

	// 1040_P2: 0.79 + 0.03 auto + 0.02 page + 0.02 continuity
	assert.Equal(t, "1040_P2", got[0].Label)
	assert.InDelta(t, 0.86, got[0].Score, 1e-5)
	assert.Equal(t, []string{BoostAutoLabel, BoostPageNumber, BoostContinuity}, got[0].Boosts)

	// 1040_P1: 0.80 + 0.02 continuity
	assert.Equal(t, "1040_P1", got[1].Label)
	assert.InDelta(t, 0.82, got[1].Score, 1e-5)

	assert.ElementsMatch(t, []string{"W2", "SchC_P1"}, labels(got[2:]))
}

func TestRerankPageHintRequiresMatchingBase(t *testing.T) {
	r := NewReranker()

	got := r.Rerank([]similarity.Hit{
		hit("a#1", "SchC_P2", 0.5),
	}, &Page{AutoLabel: "1040_P1", RawLabel: "P2"}, nil)

	require.Len(t, got, 1)
	assert.InDelta(t, 0.5, got[0].Score, 1e-6)
	assert.Empty(t, got[0].Boosts)
}

func TestRerankPageHintFromAutoLabel(t *testing.T) {
	r := NewReranker()

	got := r.Rerank([]similarity.Hit{
		hit("a#3", "1040_P3", 0.5),
		hit("b#3", "1040_P4", 0.5),
	}, &Page{Label: "1040_P3"}, nil)

	require.Len(t, got, 2)
	assert.Equal(t, "1040_P3", got[0].Label)
	assert.Equal(t, []string{BoostAutoLabel, BoostPageNumber}, got[0].Boosts)
}

func TestRerankTopKAndTies(t *testing.T) {
	r := NewReranker(func(o *Options) { o.TopK = 3 })

	got := r.Rerank([]similarity.Hit{
		hit("1#1", "e", 0.5),
		hit("2#1", "d", 0.5),
		hit("3#1", "c", 0.5),
		hit("4#1", "b", 0.5),
		hit("5#1", "a", 0.5),
	}, nil, nil)

	assert.Equal(t, []string{"a", "b", "c"}, labels(got))
	for i, s := range got {
		assert.Equal(t, i+1, s.Rank)
	}
}

func TestRerankEmpty(t *testing.T) {
	assert.Empty(t, NewReranker().Rerank(nil, nil, nil))
}

func TestPageFromRecord(t *testing.T) {
	assert.Nil(t, PageFromRecord(nil))

	p := PageFromRecord(&model.PageRecord{Label: "1040_P1", AutoLabel: "1040_P2", RawLabel: "raw"})
	assert.Equal(t, &Page{Label: "1040_P1", AutoLabel: "1040_P2", RawLabel: "raw"}, p)
}
