package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"StayDesk/bot"
	"StayDesk/internal/chat"
	"StayDesk/internal/config"
	repository "StayDesk/internal/database"
	"StayDesk/internal/http-server/api"
	"StayDesk/internal/lib/logger"
	"StayDesk/internal/lib/sl"
	"StayDesk/internal/service/auth"
	"StayDesk/internal/service/rooms"
	"StayDesk/internal/service/support"
	"StayDesk/internal/store"
	"StayDesk/internal/ws"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.BotName, conf.Telegram.ApiKey, conf.Telegram.AdminId, lg)
		if err != nil {
			lg.Error("failed to initialize telegram bot", sl.Err(err))
		} else {
			lg = logger.SetupTelegramHandler(lg, tgBot, slog.LevelError)
			lg.With(
				slog.String("bot_name", conf.Telegram.BotName),
			).Info("telegram bot initialized")
		}
	}

	lg.Info("starting staydesk", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	db, err := repository.NewMongoClient(conf, lg)
	if err != nil {
		lg.Error("mongo client", sl.Err(err))
		return
	}
	lg.With(
		slog.String("host", conf.Mongo.Host),
		slog.String("port", conf.Mongo.Port),
		slog.String("database", conf.Mongo.Database),
	).Info("mongo client initialized")

	st, err := store.Connect(conf, conf.Support.AssignmentTTL, lg)
	if err != nil {
		lg.Error("shared store", sl.Err(err))
		return
	}
	defer st.Close()

	authService := auth.NewAuthService(conf.Auth.Secret, lg)
	authService.SetRepository(db)

	hub := ws.NewHub(lg)
	bridge, err := ws.NewBridge(st.Conn(), hub, lg)
	if err != nil {
		lg.Error("fan-out bridge", sl.Err(err))
		return
	}
	hub.SetRelay(bridge)

	roomsService := rooms.NewService(db, st, lg)

	supportService := support.NewService(db, st, st, lg)
	if tgBot != nil {
		supportService.SetAlerter(tgBot)
	}

	chatService := chat.NewService(hub, roomsService, supportService, st, db, lg)
	hub.SetHandler(chatService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	go supportService.Run(ctx, conf.Support.ReconcileInterval, conf.Support.DrainInterval, chatService.NotifyAssignments)

	// *** blocking start with http server ***
	errCh := make(chan error, 1)
	go func() {
		errCh <- api.New(conf, lg, authService, hub, roomsService)
	}()

	select {
	case err = <-errCh:
		if err != nil {
			lg.Error("server start", sl.Err(err))
			return
		}
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	}
	lg.Error("service stopped")
}
