// Package postprocess - provides Non-Maximum Suppression for rotated detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-east/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	ScoreThreshold float32 // Candidates must score strictly above this value to be considered.
	IoUThreshold   float32 // Overlap threshold for suppression.
}

// SortByScore returns candidate indices ordered by descending score.
//
// Equal scores keep their original relative order so that the suppression result is
// deterministic for a given scan order.
//
// Arguments:
//   - candidates: The candidates to order.
//
// Returns:
//   - []int: Indices into candidates, highest score first.
func SortByScore(candidates []Candidate) []int {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return candidates[order[i]].Score > candidates[order[j]].Score
	})
	return order
}

// ApplyRotatedNMS performs greedy Non-Maximum Suppression over rotated boxes.
//
// Candidates at or below the score threshold are discarded first. The rest are
// visited from the highest score down; each one not yet suppressed is kept and
// suppresses every later candidate whose rotated IoU with it exceeds the IoU
// threshold.
//
// Arguments:
//   - candidates: Candidates in scan order.
//   - config: The score and overlap thresholds.
//
// Returns:
//   - []int: Indices of kept candidates in keep order (descending score, stable). If no
//     candidate survives, returns nil.
func ApplyRotatedNMS(candidates []Candidate, config *NMSConfig) []int {
	order := SortByScore(candidates)

	// Drop candidates that do not clear the score cutoff.
	ranked := order[:0]
	for _, idx := range order {
		if candidates[idx].Score > config.ScoreThreshold {
			ranked = append(ranked, idx)
		}
	}

	n := len(ranked)
	if n == 0 {
		return nil
	}

	kept := make([]int, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := candidates[ranked[i]].Box
		kept = append(kept, ranked[i])
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.RotatedIoU(anchor, candidates[ranked[j]].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return kept
}
