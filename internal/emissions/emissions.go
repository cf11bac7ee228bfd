// Package emissions models the CO2 cost of a delivery trip. The numbers are
// deliberately simple: one solo trip emits a fixed amount, a pooled trip
// splits that amount across its orders.
package emissions

// SoloTripGrams is the CO2 emitted by a single-order delivery trip.
const SoloTripGrams = 285.0

// Saved returns the grams of CO2 a single order avoids by sharing a trip
// with batchSize-1 others. A solo order, or a "batch" of one, saves nothing.
// Savings grow with batch size but never reach the full solo emission.
func Saved(isBatched bool, batchSize int) float64 {
	if isBatched && batchSize > 1 {
		return SoloTripGrams - SoloTripGrams/float64(batchSize)
	}
	return 0
}

// SavedDispatch is the per-order credit applied when a batch actually
// dispatches. Batch size is floored at 2: an order that committed to pooling
// keeps its paired-trip credit even if rush escapes left it alone.
func SavedDispatch(batchSize int) float64 {
	if batchSize < 2 {
		batchSize = 2
	}
	return Saved(true, batchSize)
}
