package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studyhive/studyhive/internal/model"
	"github.com/studyhive/studyhive/internal/pkg/redis"
	"github.com/studyhive/studyhive/internal/repository"
	"github.com/studyhive/studyhive/middleware/log"
	"github.com/studyhive/studyhive/utils/snowflake"
)

// env wires the full service stack against an in-memory database and a
// miniredis instance.
type env struct {
	db             *gorm.DB
	mr             *miniredis.Miniredis
	cache          redis.RedisClient
	groupRepo      repository.IGroupRepository
	membershipRepo repository.IMembershipRepository
	userRepo       repository.IUserRepository
	messageRepo    repository.IMessageRepository
	guard          *AccessGuard

	groups      IGroupService
	memberships IMembershipService
	messages    IMessageService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every goroutine on the same in-memory
	// database and serializes its transactions.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Group{}, &model.Membership{}, &model.Message{},
	))

	mr := miniredis.RunT(t)
	cache := redis.NewClientFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	log := &logger.Logger{Logger: zap.NewNop()}
	idGen, err := snowflake.NewGenerator(1)
	require.NoError(t, err)

	e := &env{
		db:             db,
		mr:             mr,
		cache:          cache,
		groupRepo:      repository.NewGroupRepository(db),
		membershipRepo: repository.NewMembershipRepository(db),
		userRepo:       repository.NewUserRepository(db),
		messageRepo:    repository.NewMessageRepository(db),
	}
	e.guard = NewAccessGuard(e.groupRepo, e.membershipRepo)
	e.groups = NewGroupService(e.groupRepo, e.membershipRepo, e.guard, nil, log)
	e.memberships = NewMembershipService(e.groupRepo, e.membershipRepo, e.userRepo, e.guard, cache, nil, log)
	e.messages = NewMessageService(e.messageRepo, e.membershipRepo, e.userRepo, e.guard, idGen, nil, log)
	return e
}

func (e *env) seedUser(t *testing.T, username string) *model.User {
	t.Helper()
	user := &model.User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

// seedGroup creates a group with its leader already seated, the same shape
// CreateGroup produces.
func (e *env) seedGroup(t *testing.T, leaderID string, visibility model.Visibility, capacity int) *model.Group {
	t.Helper()
	group := &model.Group{
		ID:                 uuid.New().String(),
		Title:              "evening revision",
		Category:           model.CategoryJEE,
		Visibility:         visibility,
		Capacity:           capacity,
		CurrentMemberCount: 1,
		LeaderID:           leaderID,
		IsActive:           true,
	}
	if visibility == model.VisibilityPrivate {
		group.JoinCode = "AAAA1111"
	}
	require.NoError(t, e.db.Create(group).Error)
	require.NoError(t, e.db.Create(&model.Membership{
		ID:         uuid.New().String(),
		GroupID:    group.ID,
		UserID:     leaderID,
		Role:       model.RoleLeader,
		Status:     model.StatusActive,
		JoinedAt:   time.Now(),
		LastActive: time.Now(),
	}).Error)
	return group
}

func (e *env) seedMember(t *testing.T, groupID, userID string, role model.Role) *model.Membership {
	t.Helper()
	membership := &model.Membership{
		ID:         uuid.New().String(),
		GroupID:    groupID,
		UserID:     userID,
		Role:       role,
		Status:     model.StatusActive,
		JoinedAt:   time.Now(),
		LastActive: time.Now(),
	}
	require.NoError(t, e.db.Create(membership).Error)
	require.NoError(t, e.db.Model(&model.Group{}).Where("id = ?", groupID).
		Update("current_member_count", gorm.Expr("current_member_count + 1")).Error)
	return membership
}

func (e *env) activeMemberCount(t *testing.T, groupID string) int64 {
	t.Helper()
	count, err := e.membershipRepo.CountActiveByGroup(t.Context(), groupID)
	require.NoError(t, err)
	return count
}

func (e *env) storedCount(t *testing.T, groupID string) int {
	t.Helper()
	var group model.Group
	require.NoError(t, e.db.First(&group, "id = ?", groupID).Error)
	return group.CurrentMemberCount
}

// setClock pins the service clock for the duration of the test.
func setClock(t *testing.T, now time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = prev })
}
