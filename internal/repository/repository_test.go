package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studyhive/studyhive/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Group{}, &model.Membership{}, &model.Message{},
	))
	return db
}

func seedGroup(t *testing.T, db *gorm.DB, mutate func(*model.Group)) *model.Group {
	t.Helper()
	group := &model.Group{
		ID:                 uuid.New().String(),
		Title:              "test group",
		Category:           model.CategoryOther,
		Visibility:         model.VisibilityPublic,
		Capacity:           10,
		CurrentMemberCount: 1,
		LeaderID:           uuid.New().String(),
		IsActive:           true,
	}
	if mutate != nil {
		mutate(group)
	}
	require.NoError(t, db.Create(group).Error)
	return group
}
