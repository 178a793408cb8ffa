package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rankboard/leaderboard-backend/internal/broadcast"
	"github.com/rankboard/leaderboard-backend/internal/claims"
	"github.com/rankboard/leaderboard-backend/internal/handlers"
	"github.com/rankboard/leaderboard-backend/internal/models"
	"github.com/rankboard/leaderboard-backend/internal/ranking"
	"github.com/rankboard/leaderboard-backend/internal/store"
	"github.com/rankboard/leaderboard-backend/internal/util"
)

// seeded on first start so the board is never empty
var defaultUsers = []string{
	"Rahul", "Kamal", "Sanak", "Priya", "Amit",
	"Sneha", "Ravi", "Pooja", "Vikash", "Anita",
}

func mustEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func Run() error {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(mustEnv("TZ", "UTC"))
	if err != nil {
		return err
	}
	util.SetLocation(loc)

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		mustEnv("DB_HOST", "localhost"),
		mustEnv("DB_USER", "postgres"),
		mustEnv("DB_PASSWORD", "postgres"),
		mustEnv("DB_NAME", "leaderboard"),
		mustEnv("DB_PORT", "5432"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&models.User{}, &models.PointsAward{}); err != nil {
		return err
	}

	ledger := store.New(db)
	engine := ranking.NewEngine(ledger)

	if err := seedUsers(context.Background(), ledger, engine); err != nil {
		return err
	}

	hub := broadcast.NewHub()
	processor := claims.NewProcessor(ledger, engine, nil)

	r := gin.Default()
	h := handlers.New(ledger, engine, processor, hub)
	h.RegisterRoutes(r)

	port := mustEnv("APP_PORT", "5000")
	logrus.Infof("listening on :%s", port)
	return r.Run(":" + port)
}

func seedUsers(ctx context.Context, ledger *store.Ledger, engine *ranking.Engine) error {
	count, err := ledger.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, name := range defaultUsers {
		if _, err := ledger.CreateUser(ctx, name); err != nil {
			return fmt.Errorf("seed user %s: %w", name, err)
		}
	}
	if _, err := engine.RecomputeRanks(ctx); err != nil {
		return err
	}
	logrus.Infof("seeded %d default users", len(defaultUsers))
	return nil
}
