package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/config"
	"github.com/RamonvdW/nhb-apps-sub010/internal/db"
	internalhttp "github.com/RamonvdW/nhb-apps-sub010/internal/http"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/services"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/wake"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "api",
		Usage: "serve the shop API, payment webhook and order status stream",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "config file", EnvVars: []string{"CONFIG_PATH"}},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("api failed")
	}
}

func run(c *cli.Context) error {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	ctx := c.Context
	pool, err := db.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := store.New(pool)
	muts := &mutations.Log{
		Store:      st,
		Wake:       wake.Notifier{Pool: pool},
		Log:        log,
		WaitStart:  cfg.Worker.WaitStart,
		WaitBudget: cfg.Worker.WaitBudget,
	}
	orderSvc := services.OrderService{
		Store:     st,
		Mutations: muts,
		ReturnURL: cfg.Payments.ReturnURL,
		Epsilon:   cfg.Payments.Epsilon,
		Log:       log,
	}
	cartSvc := services.CartService{Store: st, Mutations: muts}

	h := internalhttp.NewHandler(orderSvc, cartSvc, log)
	srv := internalhttp.NewServer(h, cfg.Server.AdminToken)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errc:
		return errors.Wrap(err, "server error")
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctxShutdown)
}
