package main

import (
	"flag"

	"github.com/joho/godotenv"
	"github.com/kinship-app/backend/internal/config"
	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/seed"
	"go.uber.org/zap"
)

func main() {
	users := flag.Int("users", 25, "number of demo accounts")
	postsPerUser := flag.Int("posts", 4, "posts per account")
	follows := flag.Int("follows", 5, "follow edges per account")
	password := flag.String("password", "password123", "shared demo password")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	if err := logger.Initialize(cfg.LogLevel, "seed.log"); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Close()

	if err := database.Initialize(cfg.DatabaseURL); err != nil {
		logger.Log.Fatal("database initialization failed", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("database migration failed", zap.Error(err))
	}

	err := seed.Run(database.DB, seed.Options{
		Users:         *users,
		PostsPerUser:  *postsPerUser,
		FollowsPerUsr: *follows,
		Password:      *password,
	})
	if err != nil {
		logger.Log.Fatal("seeding failed", zap.Error(err))
	}
}
