package config

import (
	"log"
	"os"
	"time"
)

type Config struct {
	BotToken    string
	DatabaseURL string // пусто — хранение в JSON-файлах
	DataDir     string
	// Период проверки напоминаний о сроках возврата.
	ReminderCheckInterval time.Duration
}

func MustLoad() Config {
	bt := os.Getenv("BOT_TOKEN")
	if bt == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		dir = "./data"
	}

	interval := time.Hour
	if v := os.Getenv("REMINDER_CHECK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("REMINDER_CHECK_INTERVAL: bad duration %q", v)
		}
		interval = d
	}

	return Config{
		BotToken:              bt,
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DataDir:               dir,
		ReminderCheckInterval: interval,
	}
}
