// Package global assembles a chat node from its configuration.
package global

import (
	"context"
	"time"

	"ChatCore/data/database"
	"ChatCore/global/config"
	"ChatCore/logger"
	midsec "ChatCore/middleware/security"
	chatsvc "ChatCore/module/chat/service"
	"ChatCore/module/conversation/delivery"
	convstore "ChatCore/module/conversation/store"
	"ChatCore/module/fanout"
	"ChatCore/module/membership"
	"ChatCore/module/notify"
	projstore "ChatCore/module/projection/store"
	usersvc "ChatCore/module/user/service"
	"ChatCore/service/gateway"
	"ChatCore/service/kafka"
	mgoSrv "ChatCore/service/mgo"
	"ChatCore/service/natsx"
	"ChatCore/service/pg"
	"ChatCore/service/storage"
	redisSrv "ChatCore/service/storage/redis"
	"ChatCore/tools/errs"
	"ChatCore/tools/ids"
	"ChatCore/tools/safe"
	"ChatCore/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const mongoReadyTimeout = 15 * time.Second

// App is one assembled chat node.
type App struct {
	Cfg    *config.AppConfig
	Chat   *chatsvc.Service
	Status *usersvc.Status
	Auth   *usersvc.Auth
	Bus    *notify.Bus
	Server *gateway.Server

	log     *zap.Logger
	closers []func()
}

// Close releases resources in reverse start order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(f func()) { a.closers = append(a.closers, f) }

// Run serves the gateway until ctx ends.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx, a.Cfg.HTTP.Addr)
}

// Boot connects the configured backends and builds the services. Background
// workers stop when ctx ends.
func Boot(ctx context.Context, cfg *config.AppConfig) (_ *App, err error) {
	ConfigLog(cfg)
	ConfigIds(cfg)
	app := &App{Cfg: cfg, log: logger.Named("boot")}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	var (
		db  *mongo.Database
		rdb *redis.Client
	)
	if cfg.NeedsMongo() {
		if db, err = ConfigMgo(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.NeedsRedis() {
		if rdb, err = ConfigRedis(cfg); err != nil {
			return nil, err
		}
		app.onClose(func() { _ = redisSrv.CloseRedis() })
	}

	convs, projs, err := app.stores(ctx, db, rdb)
	if err != nil {
		return nil, err
	}
	dir, err := app.directory(ctx)
	if err != nil {
		return nil, err
	}

	var presence storage.Presence = storage.NewMemPresence()
	if cfg.Store.Presence == config.BackendRedis {
		presence = storage.NewRedisPresence(rdb)
	}

	app.Bus = notify.NewBus(cfg.Node.ID, cfg.Bus.Buffer, logger.Named("bus"))
	if cfg.Nats.Enabled {
		if err := app.relay(ctx, rdb); err != nil {
			return nil, err
		}
	}

	dispatcher, err := app.dispatcher(ctx, projs)
	if err != nil {
		return nil, err
	}

	app.Auth = usersvc.NewAuth(security.Options{
		Secret: []byte(cfg.JWT.Secret),
		Alg:    cfg.JWT.Alg,
		TTL:    cfg.JWT.TTL,
		Issuer: cfg.JWT.Issuer,
	}, dir)
	app.Status = usersvc.NewStatus(presence, dir, app.Bus, cfg.Node.ID, cfg.Store.PresenceTTL)
	app.Chat = chatsvc.New(chatsvc.Deps{
		Auth:        app.Auth,
		Members:     membership.NewManager(convs, app.Auth),
		Store:       convs,
		Tracker:     delivery.NewTracker(convs),
		Sync:        fanout.NewCoordinator(dispatcher),
		Projections: projs,
		Bus:         app.Bus,
		Log:         logger.Named("chat"),
	})

	gin.SetMode(cfg.HTTP.Mode)
	app.Server = gateway.NewServer(app.Chat, app.Status, app.Auth, logger.Named("gateway"), gateway.Options{
		Token: &midsec.Options{
			HeaderToken:               cfg.HTTP.HeaderToken,
			QueryToken:                cfg.HTTP.QueryToken,
			EnableAuthorizationBearer: true,
		},
		DevTokens:      cfg.HTTP.DevTokens,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		PingInterval:   cfg.HTTP.PingInterval,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
	})
	app.log.Info("node assembled",
		zap.String("node", cfg.Node.ID),
		zap.String("conversationStore", cfg.Store.Conversation),
		zap.String("projectionStore", cfg.Store.Projection),
		zap.String("directory", cfg.Store.Directory),
		zap.String("fanout", cfg.Fanout.Mode),
		zap.Bool("relay", cfg.Nats.Enabled),
	)
	return app, nil
}

func ConfigLog(cfg *config.AppConfig) {
	logger.Init(cfg.Log.Level, cfg.Log.Color)
}

func ConfigIds(cfg *config.AppConfig) {
	ids.SetNodeID(cfg.Node.Snowflake)
}

func ConfigRedis(cfg *config.AppConfig) (*redis.Client, error) {
	if err := redisSrv.InitRedis(cfg.Redis); err != nil {
		return nil, errs.WrapMsg(err, "redis: connect", "addr", cfg.Redis.Addr)
	}
	return redisSrv.GetRedis(), nil
}

// ConfigMgo starts the Mongo manager and waits for the first connection.
func ConfigMgo(ctx context.Context, cfg *config.AppConfig) (*mongo.Database, error) {
	mgoSrv.StartAsync(ctx, &cfg.Mongo)
	waitCtx, cancel := context.WithTimeout(ctx, mongoReadyTimeout)
	defer cancel()
	if err := mgoSrv.WaitReady(waitCtx, mgoSrv.Manager()); err != nil {
		return nil, errs.WrapMsg(err, "mongo: not ready")
	}
	db, ok := mgoSrv.TryGetDB()
	if !ok {
		return nil, errs.New("mongo: no database after ready")
	}
	return db, nil
}

func (a *App) stores(ctx context.Context, db *mongo.Database, rdb *redis.Client) (convstore.Store, projstore.Store, error) {
	var indexed []database.Indexed

	var convs convstore.Store = convstore.NewMemStore()
	if a.Cfg.Store.Conversation == config.BackendMongo {
		ms := convstore.NewMongoStore(db)
		indexed = append(indexed, ms)
		convs = ms
	}

	var projs projstore.Store
	switch a.Cfg.Store.Projection {
	case config.BackendMongo:
		ms := projstore.NewMongoStore(db)
		indexed = append(indexed, ms)
		projs = ms
	case config.BackendRedis:
		projs = projstore.NewRedisStore(rdb)
	default:
		projs = projstore.NewMemStore()
	}

	if len(indexed) > 0 {
		if err := database.EnsureIndexes(ctx, indexed...); err != nil {
			return nil, nil, errs.WrapMsg(err, "mongo: ensure indexes")
		}
	}
	return convs, projs, nil
}

func (a *App) directory(ctx context.Context) (usersvc.Directory, error) {
	if a.Cfg.Store.Directory == config.BackendPostgres {
		pool, err := pg.Connect(ctx, a.Cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.onClose(pool.Close)
		return usersvc.NewPgDirectory(pool), nil
	}
	dir := usersvc.NewMemDirectory()
	for user, contacts := range a.Cfg.Store.Users {
		dir.AddUser(user, contacts...)
	}
	return dir, nil
}

// relay joins the bus to the other nodes over NATS. Dedup keys are scoped to
// this node.
func (a *App) relay(ctx context.Context, rdb *redis.Client) error {
	n := a.Cfg.Nats
	var idem natsx.IdemStore
	if rdb != nil {
		idem = natsx.NewRedisIdem(rdb, "im:idem:"+a.Cfg.Node.ID+":", n.DedupTTL)
	} else {
		idem = natsx.NewMemIdem(ctx, n.DedupTTL)
	}
	client, err := natsx.NewNatsxClient(n.Client(a.Cfg.Node.ID), natsx.NatsxIdemMiddleware(idem, n.DedupTTL))
	if err != nil {
		return errs.WrapMsg(err, "nats: connect", "servers", n.Servers)
	}
	a.onClose(func() { _ = client.Close() })

	relay := notify.NewRelay(a.Bus, client, logger.Named("relay"))
	if err := relay.Start(); err != nil {
		return err
	}
	a.onClose(relay.Stop)
	return nil
}

func (a *App) dispatcher(ctx context.Context, projs projstore.Store) (fanout.Dispatcher, error) {
	if a.Cfg.Fanout.Mode != config.FanoutKafka {
		return fanout.NewDirectDispatcher(projs, logger.Named("fanout")), nil
	}
	kc := a.Cfg.Kafka
	if kc.AutoCreateTopic {
		if err := kafka.EnsureTopics(kc, kc.Topic); err != nil {
			return nil, errs.WrapMsg(err, "kafka: ensure topic", "topic", kc.Topic)
		}
	}
	producer, err := kafka.NewProducer(kc)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka: producer", "brokers", kc.Brokers)
	}
	a.onClose(func() { _ = producer.Close() })

	if a.Cfg.Fanout.Worker {
		router := kafka.NewRouter()
		fanout.NewWorker(projs, logger.Named("fanout-worker")).Register(router, kc.Topic)
		safe.Go("projection-worker", func() {
			if err := kafka.StartConsumerGroup(ctx, kc, router); err != nil {
				a.log.Error("projection worker stopped", zap.Error(err))
			}
		})
	}
	return fanout.NewKafkaDispatcher(producer, kc.Topic), nil
}
