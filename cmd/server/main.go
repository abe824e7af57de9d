package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/go-redis/redis"
	"github.com/jrsteele09/go-cas-server/cas"
	"github.com/jrsteele09/go-cas-server/internal/config"
	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/jrsteele09/go-cas-server/principals/repofake"
	"github.com/jrsteele09/go-cas-server/server"
	"github.com/jrsteele09/go-cas-server/session"
	"github.com/jrsteele09/go-cas-server/ticket"
)

const adminUsername = "admin"

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	stop := make(chan struct{})
	defer close(stop)

	casService, err := buildCASService(c, stop)
	if err != nil {
		return fmt.Errorf("buildCASService: %w", err)
	}

	if password, err := casService.BootstrapAdmin(adminUsername); err != nil {
		return fmt.Errorf("casService.BootstrapAdmin: %w", err)
	} else if password != "" {
		log.Printf("Generated %q password: %s\n", adminUsername, password)
	}

	srv, err := server.New(c, casService)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	go cleanupSessions(casService, stop)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildCASService wires the protocol core against whichever backends are
// configured: Postgres and Redis when their URLs are set, in-process
// stores otherwise.
func buildCASService(c config.Config, stop <-chan struct{}) (*cas.Service, error) {
	principalRepo, sessionRepo, err := buildRepos(c)
	if err != nil {
		return nil, err
	}

	ticketStore, err := buildTicketStore(c, stop)
	if err != nil {
		return nil, err
	}

	return cas.NewService(
		cas.Repos{Principals: principalRepo, Sessions: sessionRepo},
		principals.NewRepoVerifier(principalRepo),
		ticketStore,
		cas.WithSessionTTL(c.GetSessionTTL()),
		cas.WithMaxLoginFailCount(c.GetMaxLoginFailCount()),
	)
}

func buildRepos(c config.Config) (principals.Repo, session.Repo, error) {
	databaseURL := c.GetDatabaseURL()
	if databaseURL == "" {
		log.Printf("No database configured, using in-memory repositories\n")
		return repofake.NewFakePrincipalRepo(), session.NewInMemoryRepo(), nil
	}

	principalRepo, err := principals.NewPostgresRepo(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("principals.NewPostgresRepo: %w", err)
	}
	sessionRepo, err := session.NewPostgresRepo(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("session.NewPostgresRepo: %w", err)
	}
	return principalRepo, sessionRepo, nil
}

func buildTicketStore(c config.Config, stop <-chan struct{}) (ticket.Store, error) {
	redisURL := c.GetRedisURL()
	if redisURL == "" {
		log.Printf("No redis configured, using in-memory ticket store\n")
		store := ticket.NewMemoryStore(c.GetTicketTTL())
		store.StartSweeper(c.GetTicketSweepPeriod(), stop)
		return store, nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return ticket.NewRedisStore(client, c.GetTicketTTL())
}

func cleanupSessions(casService *cas.Service, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := casService.CleanupExpiredSessions(); err != nil {
				log.Printf("Cleanup expired sessions: %v\n", err)
			}
		case <-stop:
			return
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
