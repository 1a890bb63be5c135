package app

import (
	"gorm.io/gorm"

	"github.com/tkoivu/threadline-backend/internal/data/repos"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type Repos struct {
	User     repos.UserRepo
	Thread   repos.ThreadRepo
	Step     repos.StepRepo
	Element  repos.ElementRepo
	Feedback repos.FeedbackRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:     repos.NewUserRepo(db, log),
		Thread:   repos.NewThreadRepo(db, log),
		Step:     repos.NewStepRepo(db, log),
		Element:  repos.NewElementRepo(db, log),
		Feedback: repos.NewFeedbackRepo(db, log),
	}
}
