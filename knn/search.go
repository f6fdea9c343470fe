package knn

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/knncache"
)

// Score is the leave-one-out error of one k.
type Score struct {
	K    int
	RMSE float64
	// N is the number of rows scored.
	N int
}

// LeaveOneOut computes the leave-one-out RMSE of every k in 1..kMax over
// rows (all rows when rows is nil). Each row's neighbor list is fetched
// once and its prefix means give the estimates for every k.
func LeaveOneOut(ctx context.Context, est *Estimator, rows []int, kMax int) ([]Score, error) {
	if err := checkK(kMax); err != nil {
		return nil, err
	}
	ds := est.c.Dataset()
	if rows == nil {
		rows = make([]int, ds.Len())
		for i := range rows {
			rows[i] = i
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to score", knncache.ErrInvalidArgument)
	}

	sse := make([]float64, kMax)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ys, err := est.c.ApplyRow(ctx, row)
		if err != nil {
			return nil, err
		}
		if len(ys) < kMax {
			return nil, &knncache.InsufficientNeighborsError{K: kMax, Available: len(ys)}
		}
		target := ds.Ys[row]
		var sum float64
		for k := 1; k <= kMax; k++ {
			sum += ys[k-1]
			e := sum/float64(k) - target
			sse[k-1] += e * e
		}
	}

	scores := make([]Score, kMax)
	for i, s := range sse {
		scores[i] = Score{K: i + 1, RMSE: math.Sqrt(s / float64(len(rows))), N: len(rows)}
	}
	return scores, nil
}

// BestK returns the score with the lowest RMSE, preferring the smaller k
// on ties.
func BestK(scores []Score) (Score, error) {
	if len(scores) == 0 {
		return Score{}, fmt.Errorf("%w: no scores", knncache.ErrInvalidArgument)
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.RMSE < best.RMSE || (s.RMSE == best.RMSE && s.K < best.K) {
			best = s
		}
	}
	return best, nil
}
