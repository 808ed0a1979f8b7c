package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicate 唯一索引冲突（mysql 1062 / sqlite UNIQUE constraint）
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
