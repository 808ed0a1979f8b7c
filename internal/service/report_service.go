package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"assessment_backend/internal/grading"
	"assessment_backend/internal/model"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Uploader stores an export and returns where it can be downloaded.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
}

// ReportService 考试统计与成绩导出
type ReportService struct {
	Tests    *repository.TestRepository
	Attempts *repository.AttemptRepository
	Storage  Uploader
}

func NewReportService(tests *repository.TestRepository, attempts *repository.AttemptRepository, storage Uploader) *ReportService {
	return &ReportService{Tests: tests, Attempts: attempts, Storage: storage}
}

// StatsReport 单场考试统计
type StatsReport struct {
	TestID            uint           `json:"testId"`
	Attempts          int            `json:"attempts"`
	ByStatus          map[string]int `json:"byStatus"`
	Scored            int            `json:"scored"`
	AveragePercentage float64        `json:"averagePercentage"`
	HighestPercentage float64        `json:"highestPercentage"`
	LowestPercentage  float64        `json:"lowestPercentage"`
	PassRate          float64        `json:"passRate"`
	GradeDistribution map[string]int `json:"gradeDistribution"`
	PendingManual     int64          `json:"pendingManual"`
}

func (s *ReportService) loadTest(ctx context.Context, id uint) (*model.Test, error) {
	test, err := s.Tests.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}
	return test, nil
}

// Stats 汇总成绩分布；百分比统计只计入已评分的作答
func (s *ReportService) Stats(ctx context.Context, testID uint) (*StatsReport, error) {
	if _, err := s.loadTest(ctx, testID); err != nil {
		return nil, err
	}
	attempts, err := s.Attempts.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	pending, err := s.Attempts.CountUngraded(ctx, testID)
	if err != nil {
		return nil, err
	}

	st := &StatsReport{
		TestID:            testID,
		Attempts:          len(attempts),
		ByStatus:          map[string]int{},
		GradeDistribution: map[string]int{},
		PendingManual:     pending,
	}
	var sum float64
	passed := 0
	for _, a := range attempts {
		st.ByStatus[a.Status]++
		if a.Status != model.AttemptGraded || a.Result == nil {
			continue
		}
		p := a.Result.Percentage
		if st.Scored == 0 || p > st.HighestPercentage {
			st.HighestPercentage = p
		}
		if st.Scored == 0 || p < st.LowestPercentage {
			st.LowestPercentage = p
		}
		st.Scored++
		sum += p
		st.GradeDistribution[a.Result.Grade]++
		if a.Result.IsPassing {
			passed++
		}
	}
	if st.Scored > 0 {
		st.AveragePercentage = grading.Round2(sum / float64(st.Scored))
		st.PassRate = grading.Round2(float64(passed) * 100 / float64(st.Scored))
	}
	return st, nil
}

// ExportCSV 按排名导出成绩单
func (s *ReportService) ExportCSV(ctx context.Context, testID uint, w io.Writer) error {
	test, err := s.loadTest(ctx, testID)
	if err != nil {
		return err
	}
	attempts, err := s.Attempts.ListByTest(ctx, testID, model.AttemptSubmitted, model.AttemptAutoSubmitted, model.AttemptGraded)
	if err != nil {
		return err
	}
	sort.SliceStable(attempts, func(i, j int) bool {
		return rankOf(&attempts[i]) < rankOf(&attempts[j])
	})

	cw := csv.NewWriter(w)
	header := []string{"student_id", "attempt_number", "status"}
	for i, sec := range test.Sections {
		name := sec.Name
		if name == "" {
			name = "section_" + strconv.Itoa(i+1)
		}
		header = append(header, name)
	}
	header = append(header, "marks_obtained", "total_marks", "percentage", "grade", "rank", "percentile")
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range attempts {
		a := &attempts[i]
		row := []string{
			strconv.FormatUint(uint64(a.StudentID), 10),
			strconv.Itoa(a.AttemptNumber),
			a.Status,
		}
		res := a.Result
		if res == nil {
			res = &model.Result{}
		}
		sections := make(map[int]float64, len(res.SectionScores))
		for _, sc := range res.SectionScores {
			sections[sc.SectionIndex] = sc.MarksObtained
		}
		for j := range test.Sections {
			row = append(row, formatFloat(sections[j]))
		}
		row = append(row,
			formatFloat(res.MarksObtained),
			formatFloat(res.TotalMarks),
			formatFloat(res.Percentage),
			res.Grade,
			"",
			"",
		)
		if res.Rank != nil {
			row[len(row)-2] = strconv.Itoa(*res.Rank)
		}
		if res.Percentile != nil {
			row[len(row)-1] = formatFloat(*res.Percentile)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// unranked attempts sort after ranked ones
func rankOf(a *model.Attempt) int {
	if a.Result == nil || a.Result.Rank == nil {
		return int(^uint(0) >> 1)
	}
	return *a.Result.Rank
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ExportToStorage 导出成绩单并上传到对象存储，返回下载地址
func (s *ReportService) ExportToStorage(ctx context.Context, testID uint) (string, error) {
	var buf bytes.Buffer
	if err := s.ExportCSV(ctx, testID, &buf); err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/test-%d/%s-%s.csv", util.StorageExportDir, testID, time.Now().Format("20060102"), uuid.New().String())
	url, err := s.Storage.Upload(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), util.MimeCSV)
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	logger.Log.Info("Results exported",
		zap.Uint("test_id", testID),
		zap.String("key", key))
	return url, nil
}
