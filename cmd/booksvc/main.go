// Command booksvc serves the book catalog API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"booklib/api"
	"booklib/auth"
	"booklib/catalog/mysql"
	prom "booklib/metrics/prometheus"
	"booklib/recommend"
)

type config struct {
	ListenAddr    string        `envconfig:"LISTEN_ADDR" default:":8000"`
	MySQLDSN      string        `envconfig:"MYSQL_DSN" default:"booklib:booklib@tcp(localhost:3306)/booklib?parseTime=true"`
	RedisURL      string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL      time.Duration `envconfig:"TOKEN_TTL" default:"30m"`
	AdminUser     string        `envconfig:"ADMIN_USER" default:"admin"`
	AdminPassword string        `envconfig:"ADMIN_PASSWORD" required:"true"`
}

func main() {
	var cfg config
	envconfig.MustProcess("", &cfg)

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("open mysql: %v", err)
	}
	defer db.Close()

	redisOpts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()

	adminHash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("hash admin password: %v", err)
	}
	users := auth.NewStaticUserStore(auth.User{
		Username:     cfg.AdminUser,
		PasswordHash: adminHash,
		Role:         auth.RoleAdmin,
	})

	store := mysql.New(db)
	collector := prom.New(prom.DefaultConfig())
	recs := recommend.New(store, redisClient, recommend.WithMetrics(collector))
	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), auth.WithTokenTTL(cfg.TokenTTL))

	mux := http.NewServeMux()
	mux.Handle("/", api.New(store, recs, issuer, users).Handler())
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("booksvc listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
