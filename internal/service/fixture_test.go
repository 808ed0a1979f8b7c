package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"assessment_backend/internal/grading"
	"assessment_backend/internal/model"
	"assessment_backend/internal/notify"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/scheduler"
	"assessment_backend/internal/testdb"
)

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduler.Job
}

func (f *fakeScheduler) Enqueue(_ context.Context, job scheduler.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == job.ID {
			return nil
		}
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeScheduler) Close() error { return nil }

func (f *fakeScheduler) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j.ID)
	}
	return out
}

type recorder struct {
	mu         sync.Mutex
	events     []notify.Event
	recomputed []uint
}

func (r *recorder) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Recompute(_ context.Context, _, attemptID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recomputed = append(r.recomputed, attemptID)
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == kind {
			n++
		}
	}
	return n
}

type fakeUploader struct {
	key  string
	body []byte
}

func (u *fakeUploader) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) (string, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	u.key, u.body = key, buf.Bytes()
	return "https://files.example.com/" + key, nil
}

type fixture struct {
	ctx      context.Context
	now      time.Time
	sched    *fakeScheduler
	events   *recorder
	uploader *fakeUploader

	tests     *repository.TestRepository
	questions *repository.QuestionRepository
	repo      *repository.AttemptRepository

	attempts  *AttemptService
	grading   *GradingService
	lifecycle *LifecycleService
	reports   *ReportService
}

const testGrace = 30 * time.Second

func newFixture(t *testing.T) *fixture {
	db := testdb.Open(t)
	f := &fixture{
		ctx:       context.Background(),
		now:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		sched:     &fakeScheduler{},
		events:    &recorder{},
		uploader:  &fakeUploader{},
		tests:     repository.NewTestRepository(db),
		questions: repository.NewQuestionRepository(db),
		repo:      repository.NewAttemptRepository(db),
	}
	clock := func() time.Time { return f.now }

	f.attempts = NewAttemptService(f.tests, f.questions, f.repo, f.sched, f.events, f.events, testGrace)
	f.attempts.Now = clock
	f.attempts.shuffle = func(int, func(i, j int)) {}
	f.grading = NewGradingService(f.tests, f.repo, f.events, f.events)
	f.grading.Now = clock
	f.lifecycle = NewLifecycleService(f.tests, f.attempts, f.sched, f.events, testGrace)
	f.lifecycle.Now = clock
	f.reports = NewReportService(f.tests, f.repo, f.uploader)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) question(t *testing.T, qType, content string, marks float64, subject uint, options ...string) uint {
	q := &model.Question{
		TenantID:  1,
		SubjectID: subject,
		Type:      qType,
		Prompt:    "prompt for " + qType,
		Options:   options,
		Content:   datatypes.JSON(content),
		Marks:     marks,
	}
	require.NoError(t, f.questions.Create(f.ctx, q))
	return q.ID
}

// standardTest is a live, test-timed exam: a choice and a numerical question
// in the first section and an essay in the second. Total 10 marks.
func (f *fixture) standardTest(t *testing.T, mutate func(*model.Test)) (*model.Test, []uint) {
	ids := []uint{
		f.question(t, grading.TypeSingleChoice, `{"correctOptionIndex":1}`, 2, 1, "3", "4", "5"),
		f.question(t, grading.TypeNumerical, `{"correctAnswer":10,"tolerance":0.5}`, 3, 1),
		f.question(t, grading.TypeEssay, `{"rubric":"clarity","modelAnswer":"a sample"}`, 5, 2),
	}
	test := &model.Test{
		TenantID:   1,
		CreatorID:  50,
		Title:      "Midterm",
		Status:     model.TestStatusLive,
		TimingMode: model.TimingModeTest,
		Sections: []model.TestSection{
			{Name: "Objective", QuestionIDs: ids[:2], CanGoBack: true},
			{Name: "Writing", QuestionIDs: ids[2:], CanGoBack: true},
		},
		Options: model.TestOptions{
			MaxAttempts:        1,
			PassingScore:       40,
			ShowResults:        true,
			ShowCorrectAnswers: true,
		},
		DurationMinutes: 60,
	}
	if mutate != nil {
		mutate(test)
	}
	require.NoError(t, f.tests.Create(f.ctx, test))
	return test, ids
}

// sectionTest is a live, section-timed exam with limits of 10 and 20 minutes.
func (f *fixture) sectionTest(t *testing.T) (*model.Test, []uint) {
	return f.standardTest(t, func(test *model.Test) {
		test.TimingMode = model.TimingModeSection
		test.Sections[0].TimeLimitMinutes = 10
		test.Sections[1].TimeLimitMinutes = 20
	})
}

func student(id uint) Viewer {
	return Viewer{UserID: id}
}

var staff = Viewer{UserID: 50, Staff: true}

func (f *fixture) start(t *testing.T, testID, studentID uint) *model.Attempt {
	view, err := f.attempts.StartAttempt(f.ctx, testID, studentID, ClientInfo{IP: "10.0.0.1", UserAgent: "go-test"})
	require.NoError(t, err)
	return view.Attempt
}

func (f *fixture) answer(t *testing.T, attemptID, studentID, questionID uint, raw string) {
	_, err := f.attempts.SubmitAnswer(f.ctx, attemptID, student(studentID), AnswerInput{
		QuestionID: questionID,
		Answer:     []byte(raw),
	})
	require.NoError(t, err)
}
