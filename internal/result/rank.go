package result

import "sort"

// Entry is one ranked attempt in a cohort pass.
type Entry struct {
	AttemptID     uint
	MarksObtained float64
}

// Standing is the computed rank/percentile of one attempt.
type Standing struct {
	Rank       int
	Percentile float64
}

// Rank orders a cohort by marks descending. Tied marks share a rank; an
// attempt's rank is one more than the number of attempts scoring strictly
// higher, so {90, 90, 70} ranks {1, 1, 3}. This is competition ranking, not
// dense ranking: ties leave a gap after them even where a rank is loosely
// called "dense". Percentile is the share of the cohort scoring strictly
// lower, in [0, 100).
func Rank(cohort []Entry) map[uint]Standing {
	out := make(map[uint]Standing, len(cohort))
	if len(cohort) == 0 {
		return out
	}
	sorted := make([]Entry, len(cohort))
	copy(sorted, cohort)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MarksObtained > sorted[j].MarksObtained
	})

	total := len(sorted)
	for i := 0; i < total; {
		j := i
		for j < total && sorted[j].MarksObtained == sorted[i].MarksObtained {
			j++
		}
		// i attempts score strictly higher, total-j strictly lower
		st := Standing{
			Rank:       i + 1,
			Percentile: percentile(total-j, total),
		}
		for k := i; k < j; k++ {
			out[sorted[k].AttemptID] = st
		}
		i = j
	}
	return out
}

// percentile truncates to 2dp in integer arithmetic so it never reaches 100.
func percentile(lower, total int) float64 {
	return float64(lower*10000/total) / 100
}
