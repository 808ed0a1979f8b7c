package database

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"assessment_backend/internal/config"
	"assessment_backend/internal/model"
)

func TestMigrateCreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, m := range []interface{}{&model.Test{}, &model.Question{}, &model.Attempt{}, &model.AttemptSection{}, &model.AttemptAnswer{}} {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.True(t, db.Migrator().HasIndex(&model.Attempt{}, "idx_attempt_key"))
	assert.True(t, db.Migrator().HasIndex(&model.AttemptAnswer{}, "idx_attempt_question"))
}

func TestRedisOptions(t *testing.T) {
	opt := RedisOptions(&config.RedisConfig{Host: "cache", Port: 6380, DB: 2, Password: "pw"})
	assert.Equal(t, "cache:6380", opt.Addr)
	assert.Equal(t, 2, opt.DB)
	assert.Equal(t, "pw", opt.Password)
}
