package utils

import (
	"math/rand"
	"sort"
)

// SampleFromProbs draws a token id from a probability row, optionally
// restricted by top-k and nucleus (top-p) filtering. The rng must be
// provided so callers control reproducibility.
func SampleFromProbs(probs []float64, topK int, topP float64, rng *rand.Rand) int {
	type kv struct {
		id  int
		val float64
	}
	arr := make([]kv, len(probs))
	sum := 0.0
	for i, p := range probs {
		arr[i] = kv{id: i, val: p}
		sum += p
	}
	if sum <= 0 {
		return 0
	}
	for i := range arr {
		arr[i].val /= sum
	}

	sort.Slice(arr, func(i, j int) bool { return arr[i].val > arr[j].val })

	if topK > 0 && topK < len(arr) {
		arr = arr[:topK]
	}
	if topP > 0 && topP < 1 {
		cum := 0.0
		cut := len(arr)
		for i, kv := range arr {
			cum += kv.val
			if cum >= topP {
				cut = i + 1
				break
			}
		}
		arr = arr[:cut]
	}

	// renormalize after filtering
	sum = 0.0
	for _, kv := range arr {
		sum += kv.val
	}
	for i := range arr {
		arr[i].val /= sum
	}

	rnd := rng.Float64()
	cum := 0.0
	for _, kv := range arr {
		cum += kv.val
		if rnd < cum {
			return kv.id
		}
	}
	return arr[len(arr)-1].id
}
