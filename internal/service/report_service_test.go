package service

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
)

// rankedCohort grades three essay attempts 9, 9 and 4 out of 10 and finalizes.
func (f *fixture) rankedCohort(t *testing.T) *model.Test {
	test, qid := f.essayTest(t)
	for i, marks := range []float64{9, 9, 4} {
		a := f.submittedEssay(t, test.ID, qid, uint(i+1))
		_, err := f.grading.GradeAnswer(f.ctx, a.ID, qid, GradeInput{Marks: marks}, 50)
		require.NoError(t, err)
	}
	_, err := f.grading.FinalizeGrading(f.ctx, test.ID, 50)
	require.NoError(t, err)
	return test
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	test := f.rankedCohort(t)
	f.start(t, test.ID, 4)

	st, err := f.reports.Stats(f.ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Attempts)
	assert.Equal(t, map[string]int{model.AttemptGraded: 3, model.AttemptInProgress: 1}, st.ByStatus)
	assert.Equal(t, 3, st.Scored)
	assert.Equal(t, 73.33, st.AveragePercentage)
	assert.Equal(t, 90.0, st.HighestPercentage)
	assert.Equal(t, 40.0, st.LowestPercentage)
	assert.Equal(t, 66.67, st.PassRate)
	assert.Equal(t, map[string]int{"A+": 2, "F": 1}, st.GradeDistribution)
	assert.Equal(t, int64(0), st.PendingManual)

	_, err = f.reports.Stats(f.ctx, 777)
	assert.ErrorIs(t, err, util.ErrTestNotFound)
}

func TestExportCSVOrdersByRank(t *testing.T) {
	f := newFixture(t)
	test := f.rankedCohort(t)

	var buf bytes.Buffer
	require.NoError(t, f.reports.ExportCSV(f.ctx, test.ID, &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"student_id", "attempt_number", "status", "Essay", "marks_obtained", "total_marks", "percentage", "grade", "rank", "percentile"}, rows[0])
	assert.Equal(t, []string{"1", "1", "graded", "9.00", "9.00", "10.00", "90.00", "A+", "1", "33.33"}, rows[1])
	assert.Equal(t, "3", rows[3][0])
	assert.Equal(t, "3", rows[3][8])
}

func TestExportToStorage(t *testing.T) {
	f := newFixture(t)
	test := f.rankedCohort(t)

	url, err := f.reports.ExportToStorage(f.ctx, test.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.uploader.key, "exports/test-"))
	assert.True(t, strings.HasSuffix(f.uploader.key, ".csv"))
	assert.Equal(t, "https://files.example.com/"+f.uploader.key, url)
	assert.Contains(t, string(f.uploader.body), "student_id")
}
