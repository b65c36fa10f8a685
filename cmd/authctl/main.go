// Command authctl is a diagnostic client for the Rundeklar authority:
// it wires the full session stack, logs in (or probes the stored
// credentials), prints the principal, and then keeps the session warm so
// the refresh scheduler can be observed live.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rundeklar/go-auth-client/internal/config"
	"github.com/rundeklar/go-auth-client/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authctl failed")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	client, err := session.Bootstrap(c, config.GetEnv("PAGE_URL", c.GetBaseURL()), log.Logger)
	if err != nil {
		return fmt.Errorf("session.Bootstrap: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Str("tenant", client.Binding.TenantID()).Str("authority", c.GetBaseURL()).Msg("session starting")

	if email := os.Getenv("AUTH_EMAIL"); email != "" {
		if err := login(ctx, client, email); err != nil {
			return err
		}
	} else if _, err := client.Service.WhoAmI(ctx); err != nil {
		log.Warn().Err(err).Msg("identity probe failed")
	}

	printPrincipal(client.Service)

	if client.Service.State() != session.StateAuthenticated {
		return nil
	}

	log.Info().Msg("holding session open, interrupt to log out")
	waitForStopSignal()

	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer logoutCancel()
	client.Service.Logout(logoutCtx)
	return nil
}

func login(ctx context.Context, client *session.Client, email string) error {
	_, err := client.Service.LoginWithPassword(ctx, email, os.Getenv("AUTH_PASSWORD"), os.Getenv("AUTH_TOTP"))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

func printPrincipal(svc *session.Service) {
	p := svc.Current()
	if p == nil {
		fmt.Println("anonymous")
		return
	}
	fmt.Printf("id:       %s\n", p.ID)
	fmt.Printf("email:    %s\n", p.Email)
	fmt.Printf("role:     %s\n", p.Role)
	fmt.Printf("tenant:   %s\n", p.TenantID)
	fmt.Printf("verified: %t\n", p.EmailVerified)
	fmt.Printf("2fa:      %t\n", p.TwoFactor)
}

func setupLogging(c config.Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.IsDevelopmentMode() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
