package repos

import (
	"gorm.io/gorm"

	"github.com/tkoivu/threadline-backend/internal/data/repos/chat"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type UserRepo = chat.UserRepo
type ThreadRepo = chat.ThreadRepo
type StepRepo = chat.StepRepo
type ElementRepo = chat.ElementRepo
type FeedbackRepo = chat.FeedbackRepo

type ThreadListQuery = chat.ThreadListQuery

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return chat.NewUserRepo(db, baseLog)
}
func NewThreadRepo(db *gorm.DB, baseLog *logger.Logger) ThreadRepo {
	return chat.NewThreadRepo(db, baseLog)
}
func NewStepRepo(db *gorm.DB, baseLog *logger.Logger) StepRepo {
	return chat.NewStepRepo(db, baseLog)
}
func NewElementRepo(db *gorm.DB, baseLog *logger.Logger) ElementRepo {
	return chat.NewElementRepo(db, baseLog)
}
func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	return chat.NewFeedbackRepo(db, baseLog)
}
