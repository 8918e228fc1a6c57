/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/oceancam/internal/api"
	"github.com/friendsincode/oceancam/internal/capture"
	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/config"
	"github.com/friendsincode/oceancam/internal/db"
	"github.com/friendsincode/oceancam/internal/eventbus"
	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/logbuffer"
	"github.com/friendsincode/oceancam/internal/media"
	"github.com/friendsincode/oceancam/internal/schedule"
	"github.com/friendsincode/oceancam/internal/scheduler"
	"github.com/friendsincode/oceancam/internal/scheduler/state"
	"github.com/friendsincode/oceancam/internal/sensorlog"
	"github.com/friendsincode/oceancam/internal/sensors"
	"github.com/friendsincode/oceancam/internal/server"
	"github.com/friendsincode/oceancam/internal/storage"
	"github.com/friendsincode/oceancam/internal/telemetry"
	"github.com/friendsincode/oceancam/internal/upload"
)

const defaultSQLiteFile = "oceancam.db"

// runtime holds every long-lived component of a camera process.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	clock  clock.Clock
	bus    *events.Bus

	hw        *hardware
	store     *schedule.Store
	root      *media.Root
	db        *gorm.DB
	history   *sensorlog.DBRecorder
	recorder  sensorlog.Recorder
	poller    *sensors.Poller
	capture   *capture.Orchestrator
	upload    *upload.Orchestrator
	scheduler *scheduler.Service
	server    *server.Server
	forwarder *eventbus.Forwarder

	closers []func() error
}

// buildRuntime wires the camera. Failures of optional services (database,
// event sinks) are logged and the service is left out.
func buildRuntime(ctx context.Context, c *config.Config, logs *logbuffer.Buffer, log zerolog.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:    c,
		logger: log,
		clock:  clock.Real{},
		bus:    events.NewBus(),
	}

	hw, err := buildHardware(c, rt.clock, log)
	if err != nil {
		return nil, err
	}
	rt.hw = hw

	rt.store = schedule.NewStore(c.Timezone())
	if err := rt.store.LoadFile(c.Paths.SchedulePath); err != nil {
		// A bad schedule on disk must not keep the API from coming up,
		// otherwise nobody can upload a good one.
		log.Error().Err(err).Str("path", c.Paths.SchedulePath).Msg("schedule rejected, starting empty")
	}
	telemetry.SchedulerSlots.Set(float64(rt.store.Len()))

	rt.root = media.NewRoot(c.Paths.MediaDir, c.Paths.RequireMount, c.Paths.MinFreeMB*1024*1024, log)

	recorders := sensorlog.Multi{}
	if c.Paths.SensorLogPath != "" {
		recorders = append(recorders, sensorlog.NewFileRecorder(c.Paths.SensorLogPath))
	}
	if c.Database.Backend != "none" {
		if err := rt.openDatabase(); err != nil {
			log.Warn().Err(err).Str("backend", c.Database.Backend).Msg("sensor database unavailable")
		} else {
			rt.history = sensorlog.NewDBRecorder(rt.db, c.Camera.UID)
			recorders = append(recorders, rt.history)
		}
	}
	rt.recorder = recorders

	rt.poller = sensors.NewPoller(hw.reader, rt.bus, c.Loop.SensorInterval, log)

	rt.capture = capture.New(capture.Config{
		CameraName:    c.Camera.Name,
		MediaDir:      c.Paths.MediaDir,
		FaultCooldown: c.Loop.FaultCooldown,
		WiperSweeps:   c.Loop.WiperSweeps,
	}, capture.Deps{
		Device:   hw.device,
		Light:    hw.light,
		Wiper:    hw.wiper,
		Sensors:  rt.poller,
		Recorder: rt.recorder,
		Power:    hw.power,
		Storage:  rt.root,
		Clock:    rt.clock,
		Bus:      rt.bus,
	}, log)

	uploader, err := storage.New(ctx, storageConfig(c), log)
	if err != nil {
		log.Warn().Err(err).Str("backend", c.Upload.Backend).Msg("upload backend unavailable, archiving locally only")
		uploader = storage.Disabled{}
	}
	rt.upload = upload.New(upload.Config{
		CameraName: c.Camera.Name,
		MediaDir:   c.Paths.MediaDir,
		ArchiveDir: c.ArchiveDir(),
	}, rt.root, uploader, rt.clock, rt.bus, log)

	rt.scheduler = scheduler.New(scheduler.Config{
		PollInterval:      c.Loop.PollInterval,
		ShutdownThreshold: c.Loop.ShutdownThreshold,
		WakeLead:          c.Loop.WakeLead,
		ShutdownDelay:     c.Loop.ShutdownDelay,
		DisablePowerDown:  c.Loop.DisablePowerDown,
	}, rt.store, rt.capture, rt.upload, hw.power, rt.clock, rt.bus, state.NewStore(state.DefaultCapacity), log)

	deps := api.Deps{
		Store:   rt.store,
		Loop:    rt.scheduler,
		Sensors: rt.poller,
		Storage: rt.root,
		Camera:  rt.capture,
		Power:   hw.power,
		Bus:     rt.bus,
		Logs:    logs,
		Clock:   rt.clock,
	}
	if rt.history != nil {
		deps.History = rt.history
	}
	handlers := api.New(api.Config{
		CameraName:   c.Camera.Name,
		CameraUID:    c.Camera.UID,
		Location:     c.Timezone(),
		SchedulePath: c.Paths.SchedulePath,
		PreviewDir:   filepath.Join(os.TempDir(), "oceancam-preview"),
		JWTSecret:    []byte(c.HTTP.JWTSigningKey),
	}, deps, log)

	rt.server = server.New(server.Config{
		Addr:           c.HTTPAddr(),
		ServiceName:    "oceancam-api",
		MetricsEnabled: c.HTTP.MetricsEnabled,
	}, log, handlers)

	rt.forwarder = eventbus.NewForwarder(rt.bus, c.Camera.UID, rt.eventSinks(), nil, log)
	return rt, nil
}

func (rt *runtime) openDatabase() error {
	dsn := rt.cfg.Database.DSN
	if dsn == "" {
		dsn = defaultSQLiteFile
	}
	database, err := db.Connect(db.Backend(rt.cfg.Database.Backend), dsn, rt.logger)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return fmt.Errorf("migrate: %w", err)
	}
	rt.db = database
	rt.deferClose(func() error { return db.Close(database) })
	return nil
}

// eventSinks connects every configured forwarder target. A sink that
// cannot connect is skipped.
func (rt *runtime) eventSinks() []eventbus.Sink {
	c := rt.cfg
	var sinks []eventbus.Sink

	if c.Events.MQTT.Broker != "" {
		sink, err := eventbus.NewMQTTSink(eventbus.MQTTConfig{
			Broker:      c.Events.MQTT.Broker,
			ClientID:    "oceancam-" + c.Camera.UID,
			Username:    c.Events.MQTT.Username,
			Password:    c.Events.MQTT.Password,
			TopicPrefix: c.Events.MQTT.TopicPrefix,
			QoS:         1,
		}, rt.logger)
		if err != nil {
			rt.logger.Warn().Err(err).Msg("mqtt sink disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}

	if c.Events.NATS.URL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = c.Events.NATS.URL
		natsCfg.Token = c.Events.NATS.Token
		natsCfg.SubjectPrefix = c.Events.NATS.SubjectPrefix
		sink, err := eventbus.NewNATSSink(natsCfg, rt.logger)
		if err != nil {
			rt.logger.Warn().Err(err).Msg("nats sink disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}

	if c.Events.Redis.Addr != "" {
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = c.Events.Redis.Addr
		redisCfg.Password = c.Events.Redis.Password
		redisCfg.DB = c.Events.Redis.DB
		redisCfg.ChannelPrefix = c.Events.Redis.ChannelPrefix
		sinks = append(sinks, eventbus.NewRedisSink(redisCfg, rt.logger))
	}
	return sinks
}

func (rt *runtime) deferClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases owned resources in reverse order.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func storageConfig(c *config.Config) storage.Config {
	u := c.Upload
	prefix := u.Prefix
	if prefix == "" {
		prefix = c.Camera.UID
	}
	return storage.Config{
		Backend:        u.Backend,
		Prefix:         prefix,
		S3Bucket:       u.S3Bucket,
		S3Region:       u.S3Region,
		S3Endpoint:     u.S3Endpoint,
		S3AccessKeyID:  u.S3AccessKeyID,
		S3SecretKey:    u.S3SecretKey,
		S3UsePathStyle: u.S3UsePathStyle,
		MinIOEndpoint:  u.MinIOEndpoint,
		MinIOAccessKey: u.MinIOAccessKey,
		MinIOSecretKey: u.MinIOSecretKey,
		MinIOBucket:    u.MinIOBucket,
		MinIOUseSSL:    u.MinIOUseSSL,
		FSDir:          u.FSDir,
	}
}
