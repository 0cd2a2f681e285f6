package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"BranchChat/pkg/app"
	"BranchChat/pkg/config"
	"BranchChat/pkg/logger"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	log, err := logger.New(config.AppEnv)
	if err != nil {
		panic(err)
	}

	a, err := app.New(log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer a.Close()
	a.Start()

	if config.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	a.Router(r)

	srv := &http.Server{Addr: ":" + config.Port, Handler: r}
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", config.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
