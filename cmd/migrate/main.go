package main

import (
	"os"

	"github.com/RamonvdW/nhb-apps-sub010/internal/config"
	"github.com/RamonvdW/nhb-apps-sub010/internal/db"

	"github.com/golang-migrate/migrate/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "migrate",
		Usage: "apply the embedded schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "config file", EnvVars: []string{"CONFIG_PATH"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: withMigrator(func(m *migrate.Migrate) error {
					return m.Up()
				}),
			},
			{
				Name:  "down",
				Usage: "roll back the last migration",
				Action: withMigrator(func(m *migrate.Migrate) error {
					return m.Steps(-1)
				}),
			},
			{
				Name:  "version",
				Usage: "print the current schema version",
				Action: withMigrator(func(m *migrate.Migrate) error {
					v, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						logrus.Info("no migrations applied")
						return nil
					}
					if err != nil {
						return err
					}
					logrus.WithFields(logrus.Fields{"version": v, "dirty": dirty}).Info("schema version")
					return nil
				}),
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("migrate failed")
	}
}

func withMigrator(fn func(m *migrate.Migrate) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		m, err := db.NewMigrator(cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return errors.Wrapf(err, "migrate %s", c.Command.Name)
		}
		logrus.WithField("command", c.Command.Name).Info("done")
		return nil
	}
}
