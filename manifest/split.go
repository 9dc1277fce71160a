package manifest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/hupe1980/pagecorpus/model"
)

// Split names one partition.
type Split string

// Partitions.
const (
	Train Split = "train"
	Val   Split = "val"
	Test  Split = "test"
)

// Splits lists the partitions in output order.
var Splits = []Split{Train, Val, Test}

// Ratios are the target document fractions per partition.
type Ratios struct {
	Train float64 `json:"train"`
	Val   float64 `json:"val"`
	Test  float64 `json:"test"`
}

// DefaultRatios is 80/10/10.
var DefaultRatios = Ratios{Train: 0.8, Val: 0.1, Test: 0.1}

// DefaultSeed seeds the document shuffle.
const DefaultSeed int64 = 42

// Validate checks that the ratios are non-negative and sum to one.
func (r Ratios) Validate() error {
	if r.Train < 0 || r.Val < 0 || r.Test < 0 {
		return fmt.Errorf("split ratios must be non-negative: %+v", r)
	}

	if math.Abs(r.Train+r.Val+r.Test-1) > 1e-6 {
		return fmt.Errorf("split ratios must sum to 1: %+v", r)
	}

	return nil
}

// Partition is the content of one split.
type Partition struct {
	Documents []string       `json:"documents"`
	Pages     []model.PageID `json:"pages"`
}

// Assignment is the split file written next to a manifest.
type Assignment struct {
	DatasetVersion model.Version            `json:"dataset_version"`
	Seed           int64                    `json:"seed"`
	Ratios         Ratios                   `json:"ratios"`
	Partitions     map[Split]*Partition     `json:"partitions"`
	Strata         map[string]map[Split]int `json:"strata"`
	byDocument     map[string]Split
}

// Of returns the split a document was assigned to.
func (a *Assignment) Of(document string) (Split, bool) {
	s, ok := a.byDocument[document]
	return s, ok
}

// SplitCounts are document and page totals of one split.
type SplitCounts struct {
	Documents int `json:"documents"`
	Pages     int `json:"pages"`
}

// SplitSummary is the split section of a manifest.
type SplitSummary struct {
	Seed   int64                 `json:"seed"`
	Ratios Ratios                `json:"ratios"`
	Counts map[Split]SplitCounts `json:"counts"`
	File   string                `json:"file,omitempty"`
}

// Summary condenses the assignment for the manifest.
func (a *Assignment) Summary() SplitSummary {
	s := SplitSummary{Seed: a.Seed, Ratios: a.Ratios, Counts: map[Split]SplitCounts{}}
	for _, name := range Splits {
		p := a.Partitions[name]
		s.Counts[name] = SplitCounts{Documents: len(p.Documents), Pages: len(p.Pages)}
	}

	return s
}

// stratum is the dominant base label of a document: the one covering most
// of its pages, the smallest on ties.
func stratum(counts map[string]int) string {
	best, n := "", -1
	for base, c := range counts {
		if c > n || (c == n && base < best) {
			best, n = base, c
		}
	}

	return best
}

// allocate divides n documents by ratio with largest-remainder rounding.
func allocate(n int, r Ratios) (train, val, test int) {
	exact := []float64{float64(n) * r.Train, float64(n) * r.Val, float64(n) * r.Test}
	counts := make([]int, 3)

	rest := n
	for i, x := range exact {
		counts[i] = int(math.Floor(x))
		rest -= counts[i]
	}

	order := []int{0, 1, 2}
	sort.SliceStable(order, func(i, j int) bool {
		return exact[order[i]]-math.Floor(exact[order[i]]) > exact[order[j]]-math.Floor(exact[order[j]])
	})

	for i := 0; rest > 0; i = (i + 1) % 3 {
		counts[order[i]]++
		rest--
	}

	return counts[0], counts[1], counts[2]
}

// Assign splits the current records of a version at document level. Each
// document is stratified by its dominant base label; inside a stratum the
// documents are sorted, shuffled with the seeded generator and cut by
// ratio. Every page of one document lands in the same partition.
func Assign(v model.Version, records []model.PageRecord, ratios Ratios, seed int64) (*Assignment, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}

	pagesByDoc := map[string][]model.PageID{}
	basesByDoc := map[string]map[string]int{}

	for i := range records {
		r := &records[i]

		pagesByDoc[r.Document] = append(pagesByDoc[r.Document], r.Key().ID())

		if basesByDoc[r.Document] == nil {
			basesByDoc[r.Document] = map[string]int{}
		}
		basesByDoc[r.Document][r.BaseLabel]++
	}

	strata := map[string][]string{}
	for doc, bases := range basesByDoc {
		s := stratum(bases)
		strata[s] = append(strata[s], doc)
	}

	names := make([]string, 0, len(strata))
	for s := range strata {
		names = append(names, s)
	}
	sort.Strings(names)

	a := &Assignment{
		DatasetVersion: v,
		Seed:           seed,
		Ratios:         ratios,
		Partitions:     map[Split]*Partition{},
		Strata:         map[string]map[Split]int{},
		byDocument:     map[string]Split{},
	}
	for _, name := range Splits {
		a.Partitions[name] = &Partition{Documents: []string{}, Pages: []model.PageID{}}
	}

	rng := rand.New(rand.NewSource(seed)) // nolint gosec

	for _, s := range names {
		docs := strata[s]
		sort.Strings(docs)
		rng.Shuffle(len(docs), func(i, j int) { docs[i], docs[j] = docs[j], docs[i] })

		nTrain, nVal, _ := allocate(len(docs), ratios)
		a.Strata[s] = map[Split]int{}

		for i, doc := range docs {
			split := Test
			switch {
			case i < nTrain:
				split = Train
			case i < nTrain+nVal:
				split = Val
			}

			a.byDocument[doc] = split
			a.Strata[s][split]++

			p := a.Partitions[split]
			p.Documents = append(p.Documents, doc)
			p.Pages = append(p.Pages, pagesByDoc[doc]...)
		}
	}

	for _, p := range a.Partitions {
		sort.Strings(p.Documents)
		sort.Slice(p.Pages, func(i, j int) bool { return p.Pages[i] < p.Pages[j] })
	}

	return a, nil
}
