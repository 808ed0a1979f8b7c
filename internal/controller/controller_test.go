package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"assessment_backend/internal/grading"
	"assessment_backend/internal/model"
	"assessment_backend/internal/notify"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/scheduler"
	"assessment_backend/internal/service"
	"assessment_backend/internal/testdb"
	"assessment_backend/internal/util"
)

type nopScheduler struct{}

func (nopScheduler) Enqueue(context.Context, scheduler.Job) error { return nil }
func (nopScheduler) Close() error                                  { return nil }

type server struct {
	router    *gin.Engine
	tests     *repository.TestRepository
	questions *repository.QuestionRepository
}

// newServer wires the handlers the same way the app does, with the caller's
// identity taken from the X-User / X-Role headers instead of a signed token.
func newServer(t *testing.T) *server {
	gin.SetMode(gin.TestMode)
	db := testdb.Open(t)
	tests := repository.NewTestRepository(db)
	questions := repository.NewQuestionRepository(db)
	attempts := repository.NewAttemptRepository(db)

	var sched nopScheduler
	nop := notify.Nop{}
	attemptSvc := service.NewAttemptService(tests, questions, attempts, sched, nop, nop, 0)
	lifecycle := service.NewLifecycleService(tests, attemptSvc, sched, nop, 0)
	reports := service.NewReportService(tests, attempts, nil)

	ac := NewAttemptController(attemptSvc)
	gc := NewGradingController(service.NewGradingService(tests, attempts, nop, nop), attemptSvc)
	tc := NewTestController(lifecycle, reports)
	hc := NewHealthController(db, nil)

	r := gin.New()
	r.GET("/health", hc.HealthCheck)
	api := r.Group("/api", func(c *gin.Context) {
		if id := c.GetHeader("X-User"); id != "" {
			uid := util.MustParseUint(id)
			c.Set("user", &util.Claims{UserID: uid, Role: c.GetHeader("X-Role")})
			c.Set("userID", uid)
		}
		c.Next()
	})
	api.POST("/tests/:id/attempts", ac.StartAttempt)
	api.GET("/attempts/:id", ac.GetAttempt)
	api.PUT("/attempts/:id/answers", ac.SubmitAnswer)
	api.PUT("/attempts/:id/answers/:questionId/flag", ac.FlagQuestion)
	api.POST("/attempts/:id/submit", ac.Submit)
	api.GET("/attempts/:id/result", ac.GetResult)
	api.GET("/attempts/:id/sections/:index", ac.GetSectionStatus)
	api.GET("/staff/tests/:id/stats", tc.Stats)
	api.GET("/staff/tests/:id/export", tc.Export)
	api.POST("/staff/tests/:id/finalize", gc.Finalize)
	api.POST("/staff/tests/:id/archive", tc.Archive)

	return &server{router: r, tests: tests, questions: questions}
}

func (s *server) liveTest(t *testing.T, status string) (uint, uint) {
	ctx := context.Background()
	q := &model.Question{
		TenantID: 1,
		Type:     grading.TypeSingleChoice,
		Prompt:   "2 + 2",
		Options:  []string{"3", "4"},
		Content:  datatypes.JSON(`{"correctOptionIndex":1}`),
		Marks:    4,
	}
	require.NoError(t, s.questions.Create(ctx, q))
	test := &model.Test{
		TenantID:        1,
		Title:           "Quiz",
		Status:          status,
		TimingMode:      model.TimingModeTest,
		Sections:        []model.TestSection{{Name: "Only", QuestionIDs: []uint{q.ID}, CanGoBack: true}},
		Options:         model.TestOptions{MaxAttempts: 1, PassingScore: 50, ShowResults: true},
		DurationMinutes: 30,
	}
	require.NoError(t, s.tests.Create(ctx, test))
	return test.ID, q.ID
}

type response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (s *server) do(t *testing.T, method, path, user, role, body string) (*httptest.ResponseRecorder, response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
		req.Header.Set("X-Role", role)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var res response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w, res
}

func attemptID(t *testing.T, res response) uint {
	var view struct {
		Attempt struct {
			ID uint `json:"id"`
		} `json:"attempt"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &view))
	require.NotZero(t, view.Attempt.ID)
	return view.Attempt.ID
}

func TestStartAttemptStatusCodes(t *testing.T) {
	s := newServer(t)
	testID, _ := s.liveTest(t, model.TestStatusLive)
	draftID, _ := s.liveTest(t, model.TestStatusDraft)
	path := func(id any) string { return "/api/tests/" + jsonString(id) + "/attempts" }

	w, _ := s.do(t, http.MethodPost, path(testID), "", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, res := s.do(t, http.MethodPost, path(testID), "7", util.RoleStudent, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotZero(t, attemptID(t, res))

	w, res = s.do(t, http.MethodPost, path(testID), "7", util.RoleStudent, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(util.KindConflict), res.Error)

	w, res = s.do(t, http.MethodPost, path(draftID), "7", util.RoleStudent, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(util.KindSchedulingConflict), res.Error)

	w, res = s.do(t, http.MethodPost, path(9999), "7", util.RoleStudent, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(util.KindNotFound), res.Error)

	w, _ = s.do(t, http.MethodPost, path("abc"), "7", util.RoleStudent, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnswerSubmitAndResult(t *testing.T) {
	s := newServer(t)
	testID, qid := s.liveTest(t, model.TestStatusLive)

	_, res := s.do(t, http.MethodPost, "/api/tests/"+jsonString(testID)+"/attempts", "7", util.RoleStudent, "")
	base := "/api/attempts/" + jsonString(attemptID(t, res))

	w, _ := s.do(t, http.MethodPut, base+"/answers", "7", util.RoleStudent, `{"questionId":`+jsonString(qid)+`,"answer":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(t, http.MethodPut, base+"/answers/"+jsonString(qid)+"/flag", "7", util.RoleStudent, `{"flagged":true}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, base+"/sections/x", "7", util.RoleStudent, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// someone else's attempt
	w, res = s.do(t, http.MethodGet, base, "8", util.RoleStudent, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(util.KindForbidden), res.Error)

	w, _ = s.do(t, http.MethodPost, base+"/submit", "7", util.RoleStudent, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, res = s.do(t, http.MethodGet, base+"/result", "7", util.RoleStudent, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view struct {
		Status string `json:"status"`
		Result struct {
			MarksObtained float64 `json:"marksObtained"`
			IsPassing     bool    `json:"isPassing"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &view))
	assert.Equal(t, model.AttemptGraded, view.Status)
	assert.Equal(t, 4.0, view.Result.MarksObtained)
	assert.True(t, view.Result.IsPassing)

	w, _ = s.do(t, http.MethodPut, base+"/answers", "7", util.RoleStudent, `{"questionId":`+jsonString(qid)+`,"answer":0}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStaffExportAndFinalize(t *testing.T) {
	s := newServer(t)
	testID, _ := s.liveTest(t, model.TestStatusLive)
	_, res := s.do(t, http.MethodPost, "/api/tests/"+jsonString(testID)+"/attempts", "7", util.RoleStudent, "")
	s.do(t, http.MethodPost, "/api/attempts/"+jsonString(attemptID(t, res))+"/submit", "7", util.RoleStudent, "")

	staff := "/api/staff/tests/" + jsonString(testID)
	w, res := s.do(t, http.MethodPost, staff+"/finalize", "50", util.RoleTeacher, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(res.Data), `"ranked":1`)

	w, _ = s.do(t, http.MethodGet, staff+"/export", "50", util.RoleTeacher, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, util.MimeCSV, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(w.Body.String(), "student_id,"))

	w, _ = s.do(t, http.MethodGet, "/api/staff/tests/4242/export", "50", util.RoleTeacher, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, res = s.do(t, http.MethodPost, staff+"/archive", "50", util.RoleTeacher, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(util.KindConflict), res.Error)
}

func TestHealthWithoutRedis(t *testing.T) {
	s := newServer(t)
	w, res := s.do(t, http.MethodGet, "/health", "", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","components":{"database":"up"}}`, string(res.Data))
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return strings.Trim(string(b), `"`)
}
