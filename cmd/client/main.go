// Package main is a reference client: it negotiates a gateway session,
// maintains it through disconnects, and prints refresh signals as they
// arrive. Useful for exercising the realtime pipeline end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/studysync/coordination-platform/internal/config"
	"github.com/studysync/coordination-platform/internal/realtime"
	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	apiToken := os.Getenv("API_TOKEN")
	userID := os.Getenv("USER_ID")
	if apiToken == "" || userID == "" {
		fmt.Fprintln(os.Stderr, "API_TOKEN and USER_ID are required")
		os.Exit(1)
	}

	endpoint := os.Getenv("NEGOTIATE_URL")
	if endpoint == "" {
		endpoint = "http://localhost:" + cfg.ServerPort + "/api/v1/realtime/negotiate"
	}

	negotiator := realtime.NewHTTPNegotiator(endpoint, apiToken)
	dialer := realtime.NewNATSDialer(log)
	manager := realtime.NewManager(negotiator, dialer, realtime.ManagerConfig{
		BackoffBase: cfg.ReconnectBase,
		BackoffCap:  cfg.ReconnectCap,
		MaxAttempts: cfg.MaxReconnectAttempts,
	}, log)

	dispatcher := realtime.NewRefreshDispatcher(log)
	manager.OnMessage(dispatcher.OnWireMessage)

	for _, domain := range []string{
		realtime.DomainChat,
		realtime.DomainNotifications,
		realtime.DomainGroups,
		realtime.DomainBuddyList,
	} {
		domain := domain
		dispatcher.RegisterRefresh(func() {
			log.Info("refresh", zap.String("domain", domain))
		}, domain)
	}

	manager.OnStateChange(func(s realtime.State, err error) {
		if err != nil {
			log.Warn("connection state", zap.String("state", string(s)), zap.Error(err))
			return
		}
		log.Info("connection state", zap.String("state", string(s)))
	})

	if err := manager.JoinGroup(wire.UserGroup(userID)); err != nil {
		log.Error("failed to join user channel", zap.Error(err))
		os.Exit(1)
	}

	manager.Start(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	manager.Stop()
}
