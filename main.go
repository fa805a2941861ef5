package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ChatCore/data/database/mgo/mongoutil"
	"ChatCore/global"
	"ChatCore/global/config"
	"ChatCore/logger"
	"ChatCore/tools/security"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyConfigFile
)

func getConfig(ctx *cli.Context) *config.AppConfig {
	return ctx.Context.Value(contextKeyConfig).(*config.AppConfig)
}

func getConfigFile(ctx *cli.Context) []byte {
	raw, _ := ctx.Context.Value(contextKeyConfigFile).([]byte)
	return raw
}

func prepareApp(ctx *cli.Context) error {
	cfg, raw, err := config.Load(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	newCtx := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	ctx.Context = context.WithValue(newCtx, contextKeyConfigFile, raw)
	return nil
}

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Run a chat node",
	Before: prepareApp,
	Action: serve,
}

var checkCommand = &cli.Command{
	Name:   "check",
	Usage:  "Validate the configuration and exit",
	Before: prepareApp,
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "ping", Usage: "Also ping the configured Mongo database"},
	},
	Action: func(ctx *cli.Context) error {
		cfg := getConfig(ctx)
		if ctx.Bool("ping") && cfg.NeedsMongo() {
			mc := cfg.Mongo
			if err := mongoutil.Check(ctx.Context, &mc); err != nil {
				return err
			}
		}
		fmt.Printf("config ok: node=%s conversation=%s projection=%s directory=%s fanout=%s\n",
			cfg.Node.ID, cfg.Store.Conversation, cfg.Store.Projection, cfg.Store.Directory, cfg.Fanout.Mode)
		return nil
	},
}

var tokenCommand = &cli.Command{
	Name:   "token",
	Usage:  "Sign an access token for a user",
	Before: prepareApp,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true},
	},
	Action: func(ctx *cli.Context) error {
		cfg := getConfig(ctx)
		token, exp, err := security.Generate(security.Options{
			Secret: []byte(cfg.JWT.Secret),
			Alg:    cfg.JWT.Alg,
			TTL:    cfg.JWT.TTL,
			Issuer: cfg.JWT.Issuer,
		}, ctx.String("user"))
		if err != nil {
			return err
		}
		fmt.Printf("%s\nexpires %s\n", token, exp.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func serve(ctx *cli.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, remote, err := global.LoadRemote(getConfig(ctx), getConfigFile(ctx))
	if err != nil {
		return err
	}
	defer remote.Close()

	app, err := global.Boot(sigCtx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	defer logger.Sync()

	if remote != nil {
		if err := remote.Watch(); err != nil {
			logger.Warn("remote config watch disabled", zap.Error(err))
		}
		if err := remote.Register(cfg); err != nil {
			return err
		}
	}
	return app.Run(sigCtx)
}

func main() {
	app := &cli.App{
		Name:  "chatcore",
		Usage: "Conversation store with per-user projections and live notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				EnvVars: []string{"CHAT_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			checkCommand,
			tokenCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
