package repository

import (
	"context"
	"time"

	"assessment_backend/internal/model"

	"gorm.io/gorm"
)

type TestRepository struct {
	DB *gorm.DB
}

func NewTestRepository(db *gorm.DB) *TestRepository {
	return &TestRepository{DB: db}
}

func (r *TestRepository) Create(ctx context.Context, test *model.Test) error {
	return r.DB.WithContext(ctx).Create(test).Error
}

func (r *TestRepository) FindByID(ctx context.Context, id uint) (*model.Test, error) {
	var t model.Test
	if err := r.DB.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// TransitionStatus 条件更新状态，仅当当前状态属于 from 时生效；返回是否发生迁移
func (r *TestRepository) TransitionStatus(ctx context.Context, id uint, from []string, to string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Test{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

// UpdateSchedule 写入排期并置为 scheduled，仅允许草稿或已排期的试卷
func (r *TestRepository) UpdateSchedule(ctx context.Context, id uint, start, end, availableFrom *time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Test{}).
		Where("id = ? AND status IN ?", id, []string{model.TestStatusDraft, model.TestStatusScheduled}).
		Select("start_time", "end_time", "available_from", "status").
		Updates(&model.Test{
			StartTime:     start,
			EndTime:       end,
			AvailableFrom: availableFrom,
			Status:        model.TestStatusScheduled,
		})
	return res.RowsAffected > 0, res.Error
}

// FindDueForLive 已到开始时间但仍为 scheduled 的试卷
func (r *TestRepository) FindDueForLive(ctx context.Context, now time.Time) ([]model.Test, error) {
	var tests []model.Test
	err := r.DB.WithContext(ctx).
		Where("status = ? AND start_time IS NOT NULL AND start_time <= ?", model.TestStatusScheduled, now).
		Find(&tests).Error
	return tests, err
}

// FindDueForComplete 已过结束时间但未完成的试卷
func (r *TestRepository) FindDueForComplete(ctx context.Context, now time.Time) ([]model.Test, error) {
	var tests []model.Test
	err := r.DB.WithContext(ctx).
		Where("status IN ? AND end_time IS NOT NULL AND end_time <= ?",
			[]string{model.TestStatusScheduled, model.TestStatusLive}, now).
		Find(&tests).Error
	return tests, err
}
