// Package testutil provides testing utilities for pagecorpus.
//
// This package is intended for use in tests only. It provides helpers for
// generating seeded random vectors, computing exact cosine nearest
// neighbours and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(100, 64)
//
// # Exact Search (Ground Truth)
//
//	results := testutil.ExactTopK(query, ids, vectors, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(exact, approx)
package testutil
