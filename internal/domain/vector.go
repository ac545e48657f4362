package domain

import (
	"fmt"
	"math"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

const (
	// PreviewSize длина превью вектора при получении одной записи и в полном поиске.
	PreviewSize = 100
	// ListPreviewSize длина превью вектора в постраничном списке.
	ListPreviewSize = 10
)

// VectorStats — сводная статистика по значениям вектора.
type VectorStats struct {
	Min          float64
	Max          float64
	Mean         float64
	NonZeroCount int
	Dimensions   int
}

// ValidateVector проверяет, что вектор непустой, имеет размерность dim и содержит только конечные значения.
func ValidateVector(vec []float32, dim int) error {
	if len(vec) == 0 {
		return e.ErrEmptyVector
	}
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", e.ErrDimensionMismatch, len(vec), dim)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: index %d", e.ErrNonFiniteValue, i)
		}
	}

	return nil
}

// ComputeStats считает статистику по всему вектору. Значения округляются до 6 знаков.
func ComputeStats(vec []float32) VectorStats {
	if len(vec) == 0 {
		return VectorStats{}
	}

	stats := VectorStats{
		Min:        float64(vec[0]),
		Max:        float64(vec[0]),
		Dimensions: len(vec),
	}

	var sum float64
	for _, v := range vec {
		f := float64(v)
		sum += f
		stats.Min = math.Min(stats.Min, f)
		stats.Max = math.Max(stats.Max, f)
		if v != 0 {
			stats.NonZeroCount++
		}
	}

	stats.Min = round6(stats.Min)
	stats.Max = round6(stats.Max)
	stats.Mean = round6(sum / float64(len(vec)))

	return stats
}

// Preview возвращает копию первых n значений вектора.
func Preview(vec []float32, n int) []float32 {
	if n > len(vec) {
		n = len(vec)
	}
	if n <= 0 {
		return []float32{}
	}

	out := make([]float32, n)
	copy(out, vec[:n])
	return out
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
