package repository

import (
	"context"

	"assessment_backend/internal/model"

	"gorm.io/gorm"
)

// QuestionRepository 题库只读访问
type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

func (r *QuestionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	if err := r.DB.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// FindByIDs 返回 id -> 题目
func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]*model.Question, error) {
	out := make(map[uint]*model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var qs []model.Question
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&qs).Error; err != nil {
		return nil, err
	}
	for i := range qs {
		out[qs[i].ID] = &qs[i]
	}
	return out, nil
}
