package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"bixquest/internal/datastore"
	"bixquest/internal/models"
	"bixquest/internal/pkg/caching"
	"bixquest/internal/pkg/codegen"

	"github.com/samber/do"
	"github.com/uptrace/bun"
)

type ServiceUser struct {
	container          *do.Injector
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache

	serviceFraud *ServiceFraud
}

func NewServiceUser(container *do.Injector) (*ServiceUser, error) {
	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	readonlyCache, err := do.Invoke[caching.ReadOnlyCache](container)
	if err != nil {
		return nil, err
	}

	serviceFraud, err := do.Invoke[*ServiceFraud](container)
	if err != nil {
		return nil, err
	}

	return &ServiceUser{container, postgresDB, readonlyPostgresDB, cache, readonlyCache, serviceFraud}, nil
}

func (service *ServiceUser) FindOrCreateUser(ctx context.Context, userAuth *models.UserFromAuth) (*models.User, error) {
	if userAuth == nil {
		return nil, errors.New("userAuth is nil")
	}

	user, _ := service.FindUserByID(ctx, userAuth.ID)
	if user != nil {
		if user.Username != strings.ToLower(userAuth.Username) {
			user.Username = strings.ToLower(userAuth.Username)
			if err := datastore.UpdateUserProfile(ctx, service.postgresDB, user); err != nil {
				log.Println("UpdateUserProfile error:", err, "user:", user.ID)
			}
			_ = service.cache.Delete(ctx, DBKeyUser(user.ID))
		}
		return user, nil
	}

	refCode, err := codegen.NewRefCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	newUser := &models.User{
		ID:          userAuth.ID,
		Username:    strings.ToLower(userAuth.Username),
		RefCode:     refCode,
		Role:        models.RoleUser,
		DailyStreak: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	log.Println("Create new user:", "user:", newUser.ID, "username:", newUser.Username)
	user, err = datastore.CreateUser(ctx, service.postgresDB, newUser)
	if err != nil {
		return nil, err
	}

	user.IsNewUser = true
	return user, nil
}

func (service *ServiceUser) FindUserByID(ctx context.Context, userID int64) (*models.User, error) {
	callback := func() (*models.User, error) {
		return datastore.FindUserByID(ctx, service.readonlyPostgresDB, userID)
	}
	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyUser(userID), CACHE_TTL_5_MINS, callback)
}

func (service *ServiceUser) FindUserByIDNoCache(ctx context.Context, userID int64) (*models.User, error) {
	return datastore.FindUserByID(ctx, service.readonlyPostgresDB, userID)
}

type Profile struct {
	*models.User
	Level           int `json:"level"`
	UnresolvedFlags int `json:"unresolved_flags"`
}

func (service *ServiceUser) Me(ctx context.Context, user *models.User) (*Profile, error) {
	// balance comes fresh; only the flag count tolerates staleness
	fresh, err := service.FindUserByIDNoCache(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	flags, err := service.serviceFraud.UnresolvedFlagCount(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Profile{
		User:            fresh,
		Level:           fresh.Level(),
		UnresolvedFlags: flags,
	}, nil
}
