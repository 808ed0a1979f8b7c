package repository

import (
	"context"
	"database/sql"
	"time"

	"assessment_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var terminalStatuses = []string{model.AttemptSubmitted, model.AttemptAutoSubmitted, model.AttemptGraded}
var submittedStatuses = []string{model.AttemptSubmitted, model.AttemptAutoSubmitted}

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// Transaction 在同一事务内执行 fn，fn 收到绑定事务的仓储
func (r *AttemptRepository) Transaction(ctx context.Context, fn func(tx *AttemptRepository) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&AttemptRepository{DB: tx})
	})
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id uint) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FindActive 某学生在某试卷下唯一的进行中作答
func (r *AttemptRepository) FindActive(ctx context.Context, testID, studentID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).
		Where("active_key = ?", model.ActiveKeyFor(testID, studentID)).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) CountByTestAndStudent(ctx context.Context, testID, studentID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) ListByTest(ctx context.Context, testID uint, statuses ...string) ([]model.Attempt, error) {
	var attempts []model.Attempt
	q := r.DB.WithContext(ctx).Where("test_id = ?", testID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("id").Find(&attempts).Error
	return attempts, err
}

// ListOverdue 截止时间早于 before 仍在作答中的记录，供补偿扫描使用
func (r *AttemptRepository) ListOverdue(ctx context.Context, before time.Time, limit int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("status = ? AND deadline_at IS NOT NULL AND deadline_at <= ?", model.AttemptInProgress, before).
		Order("deadline_at").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

// ClaimSubmit 将进行中的作答原子地置为已提交；并发提交只有一个能成功
func (r *AttemptRepository) ClaimSubmit(ctx context.Context, id uint, status, source string, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ? AND status = ?", id, model.AttemptInProgress).
		Select("status", "submit_source", "submitted_at", "active_key").
		Updates(&model.Attempt{
			Status:       status,
			SubmitSource: source,
			SubmittedAt:  &now,
			ActiveKey:    nil,
		})
	return res.RowsAffected > 0, res.Error
}

// SaveResult 写入成绩；status 非空时一并推进状态（仅允许从已提交状态推进）
func (r *AttemptRepository) SaveResult(ctx context.Context, id uint, result *model.Result, status string, gradedBy *uint, now time.Time) error {
	q := r.DB.WithContext(ctx).Model(&model.Attempt{}).Where("id = ?", id)
	if status == "" {
		return q.Select("result").Updates(&model.Attempt{Result: result}).Error
	}
	return q.Where("status IN ?", terminalStatuses).
		Select("result", "status", "graded_by", "graded_at").
		Updates(&model.Attempt{Result: result, Status: status, GradedBy: gradedBy, GradedAt: &now}).Error
}

// ---- answers ----

var answerWriteColumns = []string{"answer", "time_spent_seconds", "answered_at", "section_index", "question_type", "subject_id", "max_marks", "updated_at"}

// UpsertAnswer 按 (attempt_id, question_id) 覆盖写入答案，重复请求幂等
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, ans *model.AttemptAnswer) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns(answerWriteColumns),
	}).Create(ans).Error
}

// UpsertFlag 只更新标记，不触碰已写入的答案
func (r *AttemptRepository) UpsertFlag(ctx context.Context, ans *model.AttemptAnswer) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"flagged", "updated_at"}),
	}).Create(ans).Error
}

// EnsureAnswers 为未作答的题目补齐空答案行，已存在的行保持不变
func (r *AttemptRepository) EnsureAnswers(ctx context.Context, answers []model.AttemptAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoNothing: true,
	}).Create(&answers).Error
}

func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uint) ([]model.AttemptAnswer, error) {
	var answers []model.AttemptAnswer
	err := r.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("id").Find(&answers).Error
	return answers, err
}

// ListAnswersByAttempts 批量取多个作答的答案，按 attempt 分组
func (r *AttemptRepository) ListAnswersByAttempts(ctx context.Context, attemptIDs []uint) (map[uint][]model.AttemptAnswer, error) {
	out := make(map[uint][]model.AttemptAnswer, len(attemptIDs))
	if len(attemptIDs) == 0 {
		return out, nil
	}
	var answers []model.AttemptAnswer
	if err := r.DB.WithContext(ctx).Where("attempt_id IN ?", attemptIDs).Order("id").Find(&answers).Error; err != nil {
		return nil, err
	}
	for _, a := range answers {
		out[a.AttemptID] = append(out[a.AttemptID], a)
	}
	return out, nil
}

func (r *AttemptRepository) FindAnswer(ctx context.Context, attemptID, questionID uint) (*model.AttemptAnswer, error) {
	var a model.AttemptAnswer
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAutoGrade 写入自动判分结果
func (r *AttemptRepository) SetAutoGrade(ctx context.Context, answerID uint, marks float64, isCorrect bool) error {
	return r.DB.WithContext(ctx).Model(&model.AttemptAnswer{}).
		Where("id = ?", answerID).
		Select("marks_awarded", "is_correct").
		Updates(&model.AttemptAnswer{MarksAwarded: &marks, IsCorrect: &isCorrect}).Error
}

// SetManualGrade 人工评分；返回是否命中答案行
func (r *AttemptRepository) SetManualGrade(ctx context.Context, attemptID, questionID uint, marks float64, isCorrect bool, feedback string, gradedBy uint, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.AttemptAnswer{}).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		Select("marks_awarded", "is_correct", "feedback", "graded_by", "graded_at").
		Updates(&model.AttemptAnswer{
			MarksAwarded: &marks,
			IsCorrect:    &isCorrect,
			Feedback:     feedback,
			GradedBy:     &gradedBy,
			GradedAt:     &now,
		})
	return res.RowsAffected > 0, res.Error
}

// UngradedAnswer 待人工评分的答案及其作答信息
type UngradedAnswer struct {
	model.AttemptAnswer
	StudentID     uint   `json:"studentId"`
	AttemptNumber int    `json:"attemptNumber"`
	AttemptStatus string `json:"attemptStatus"`
}

// ListUngraded 已提交作答中 marks_awarded 为空的答案
func (r *AttemptRepository) ListUngraded(ctx context.Context, testID uint) ([]UngradedAnswer, error) {
	var out []UngradedAnswer
	err := r.DB.WithContext(ctx).Model(&model.AttemptAnswer{}).
		Select("attempt_answers.*, attempts.student_id, attempts.attempt_number, attempts.status AS attempt_status").
		Joins("JOIN attempts ON attempts.id = attempt_answers.attempt_id AND attempts.deleted_at IS NULL").
		Where("attempts.test_id = ? AND attempts.status IN ? AND attempt_answers.marks_awarded IS NULL", testID, submittedStatuses).
		Order("attempt_answers.question_id, attempt_answers.attempt_id").
		Scan(&out).Error
	return out, err
}

func (r *AttemptRepository) CountUngraded(ctx context.Context, testID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.AttemptAnswer{}).
		Joins("JOIN attempts ON attempts.id = attempt_answers.attempt_id AND attempts.deleted_at IS NULL").
		Where("attempts.test_id = ? AND attempts.status IN ? AND attempt_answers.marks_awarded IS NULL", testID, submittedStatuses).
		Count(&count).Error
	return count, err
}

// ---- sections ----

func (r *AttemptRepository) ListSections(ctx context.Context, attemptID uint) ([]model.AttemptSection, error) {
	var sections []model.AttemptSection
	err := r.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("section_index").Find(&sections).Error
	return sections, err
}

func (r *AttemptRepository) FindSection(ctx context.Context, attemptID uint, index int) (*model.AttemptSection, error) {
	var s model.AttemptSection
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ? AND section_index = ?", attemptID, index).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// StartSection 首次进入分区时写入开始时间；重复调用保留最初的开始时间
func (r *AttemptRepository) StartSection(ctx context.Context, sec *model.AttemptSection) (*model.AttemptSection, error) {
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "section_index"}},
		DoNothing: true,
	}).Create(sec).Error
	if err != nil {
		return nil, err
	}
	return r.FindSection(ctx, sec.AttemptID, sec.SectionIndex)
}

// LockSection 锁定分区并禁止回看；已锁定时返回 false
func (r *AttemptRepository) LockSection(ctx context.Context, attemptID uint, index int, now time.Time) (bool, error) {
	sec, err := r.FindSection(ctx, attemptID, index)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if sec.IsLocked {
		return false, nil
	}
	spent := 0
	if sec.StartedAt != nil {
		spent = int(now.Sub(*sec.StartedAt).Seconds())
	}
	res := r.DB.WithContext(ctx).Model(&model.AttemptSection{}).
		Where("id = ? AND is_locked = ?", sec.ID, false).
		Updates(map[string]interface{}{
			"is_locked":          true,
			"can_go_back":        false,
			"completed_at":       now,
			"time_spent_seconds": spent,
		})
	return res.RowsAffected > 0, res.Error
}

// CompleteOtherSections 分区计时模式下进入新分区时，其余已开始的分区全部结束
func (r *AttemptRepository) CompleteOtherSections(ctx context.Context, attemptID uint, index int, now time.Time) error {
	return r.lockOpenSections(ctx, now, "attempt_id = ? AND section_index <> ? AND is_locked = ?", attemptID, index, false)
}

// LatestStartedSection 已开始的最大分区序号；尚未开始任何分区时返回 -1
func (r *AttemptRepository) LatestStartedSection(ctx context.Context, attemptID uint) (int, error) {
	var latest sql.NullInt64
	err := r.DB.WithContext(ctx).Model(&model.AttemptSection{}).
		Where("attempt_id = ?", attemptID).
		Select("MAX(section_index)").
		Row().Scan(&latest)
	if err != nil || !latest.Valid {
		return -1, err
	}
	return int(latest.Int64), nil
}

// LockAllSections 作答结束时关闭所有分区
func (r *AttemptRepository) LockAllSections(ctx context.Context, attemptID uint, now time.Time) error {
	return r.lockOpenSections(ctx, now, "attempt_id = ? AND is_locked = ?", attemptID, false)
}

func (r *AttemptRepository) lockOpenSections(ctx context.Context, now time.Time, query string, args ...interface{}) error {
	var open []model.AttemptSection
	if err := r.DB.WithContext(ctx).Where(query, args...).Find(&open).Error; err != nil {
		return err
	}
	for _, s := range open {
		if _, err := r.LockSection(ctx, s.AttemptID, s.SectionIndex, now); err != nil {
			return err
		}
	}
	return nil
}
