package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourname/dolgi-bot/internal/bot"
	"github.com/yourname/dolgi-bot/internal/config"
	"github.com/yourname/dolgi-bot/internal/db"
	"github.com/yourname/dolgi-bot/internal/debt"
	"github.com/yourname/dolgi-bot/internal/notify"
	"github.com/yourname/dolgi-bot/internal/store"
)

func main() {
	cfg := config.MustLoad()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("bot init: %v", err)
	}
	botAPI.Debug = false

	var st store.Store
	if cfg.DatabaseURL != "" {
		pool := db.MustConnect(ctx, cfg.DatabaseURL)
		defer pool.Close()
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		st = store.NewPostgres(pool)
	} else {
		st = store.NewFile(cfg.DataDir)
	}

	engine := debt.New(st, notify.NewTelegram(botAPI))
	h := bot.NewHandler(botAPI, cfg, st, engine)

	// Graceful shutdown
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	go h.RunReminderWorker(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botAPI.GetUpdatesChan(u)

	log.Printf("DolgiBot started as @%s", botAPI.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			log.Println("shutdown")
			return
		case upd := <-updates:
			h.HandleUpdate(ctx, upd)
		}
	}
}
