package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/alert"
	"github.com/RamonvdW/nhb-apps-sub010/internal/config"
	"github.com/RamonvdW/nhb-apps-sub010/internal/cpsp"
	"github.com/RamonvdW/nhb-apps-sub010/internal/cpsp/midtrans"
	"github.com/RamonvdW/nhb-apps-sub010/internal/cpsp/mollie"
	"github.com/RamonvdW/nhb-apps-sub010/internal/db"
	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/orders"
	"github.com/RamonvdW/nhb-apps-sub010/internal/payments"
	"github.com/RamonvdW/nhb-apps-sub010/internal/products"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/wake"
	"github.com/RamonvdW/nhb-apps-sub010/internal/worker"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "worker",
		Usage: "apply order and payment mutations for a bounded time",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "config file", EnvVars: []string{"CONFIG_PATH"}},
			&cli.DurationFlag{Name: "duration", Usage: "how long to run (default worker.duration)"},
			&cli.IntFlag{Name: "stop-at-minute", Usage: "stop at this minute of the hour so scheduled runs do not overlap, -1 disables"},
			&cli.BoolFlag{Name: "quick", Usage: "shrink all timings, for tests"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("worker failed")
	}
}

func run(c *cli.Context) error {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	wc := cfg.Worker
	if c.IsSet("duration") {
		wc.Duration = c.Duration("duration")
	}
	if c.IsSet("stop-at-minute") {
		wc.StopAtMinute = c.Int("stop-at-minute")
	}
	if c.Bool("quick") {
		wc = wc.Quick()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	st := store.New(pool)

	client, err := newCPSP(cfg.Payments)
	if err != nil {
		return err
	}

	processors := map[models.Queue]worker.Processor{
		models.QueueOrders: &orders.Processor{
			Products: products.NewRegistry(),
			Combo:    cfg.Pricing.Combo(),
			Pricing:  cfg.Pricing.Service(),
			Epsilon:  cfg.Payments.Epsilon,
			Log:      log,
		},
		models.QueuePayments: &payments.Processor{
			CPSP:       client,
			Resolver:   &cpsp.Resolver{Umbrella: cpsp.Credentials{APIKey: cfg.Payments.UmbrellaKey}},
			WebhookURL: cfg.Payments.WebhookURL,
			Log:        log,
		},
	}
	alerts := &alert.Reporter{Store: st, Recipient: wc.AlertRecipient, Log: log}
	until := worker.Deadline(time.Now(), wc.Duration, wc.StopAtMinute)

	log.WithFields(logrus.Fields{
		"until":    until.Format(time.RFC3339),
		"provider": cfg.Payments.Provider,
		"quick":    c.Bool("quick"),
	}).Info("workers starting")

	g, gctx := errgroup.WithContext(ctx)
	for q, proc := range processors {
		q, proc := q, proc
		g.Go(func() error {
			l, err := wake.Listen(gctx, pool, q)
			if err != nil {
				return err
			}
			defer l.Close()

			w := &worker.Worker{
				Name:        string(q),
				Queue:       q,
				Store:       st,
				Processor:   proc,
				Wake:        l,
				Pinger:      wake.Notifier{Pool: pool},
				Alerts:      alerts,
				Log:         log,
				WakeTimeout: wc.WakeTimeout,
				MaxAttempts: wc.MaxAttempts,
				Retention:   wc.Retention(),
			}
			return w.Run(gctx, until)
		})
	}
	return g.Wait()
}

func newCPSP(p config.Payments) (cpsp.Client, error) {
	switch p.Provider {
	case config.ProviderMidtrans:
		return midtrans.New(p.Production), nil
	case config.ProviderMollie:
		return mollie.New(p.BaseURL), nil
	}
	return nil, config.ErrInvalid
}
