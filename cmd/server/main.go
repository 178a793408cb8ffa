package main

import (
	"log"

	"github.com/rankboard/leaderboard-backend/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
