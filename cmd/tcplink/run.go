package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"go.uber.org/multierr"

	_ "github.com/nerrad567/tcplink/migrations"

	"github.com/nerrad567/tcplink/internal/api"
	"github.com/nerrad567/tcplink/internal/infrastructure/config"
	"github.com/nerrad567/tcplink/internal/infrastructure/database"
	"github.com/nerrad567/tcplink/internal/infrastructure/influxdb"
	"github.com/nerrad567/tcplink/internal/infrastructure/logging"
	"github.com/nerrad567/tcplink/internal/infrastructure/mqtt"
	"github.com/nerrad567/tcplink/internal/link"
	"github.com/nerrad567/tcplink/internal/liveness"
	"github.com/nerrad567/tcplink/internal/peer"
	"github.com/nerrad567/tcplink/internal/telemetry"
	"github.com/nerrad567/tcplink/internal/wire"
)

// statsInterval is how often counters are written to InfluxDB.
const statsInterval = 30 * time.Second

// resolveTimeout bounds host name resolution at startup.
const resolveTimeout = 10 * time.Second

// runOptions are the run command flags.
type runOptions struct {
	stdin     bool
	print     bool
	noConnect bool

	in  io.Reader // lines to send, when set
	out io.Writer // arriving messages, when set
}

// teardown closes components in reverse start order.
type teardown struct {
	log   *logging.Logger
	steps []teardownStep
}

type teardownStep struct {
	name string
	fn   func() error
}

func (t *teardown) add(name string, fn func() error) {
	t.steps = append(t.steps, teardownStep{name: name, fn: fn})
}

// run closes every step, newest first, and returns their combined errors.
func (t *teardown) run() error {
	var err error
	for i := len(t.steps) - 1; i >= 0; i-- {
		s := t.steps[i]
		t.log.Info("stopping " + s.name)
		if stepErr := s.fn(); stepErr != nil {
			t.log.Error("error stopping "+s.name, "error", stepErr)
			err = multierr.Append(err, fmt.Errorf("stopping %s: %w", s.name, stepErr))
		}
	}
	return err
}

// run starts the configured components and blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Loaded configuration
//   - opts: Run command options
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config, opts runOptions) (err error) {
	log := logging.New(cfg.Logging, version)
	log.Info("starting tcplink", "version", version, "commit", commit, "build_date", date)

	td := &teardown{log: log}
	checks := make(map[string]api.HealthChecker)
	defer func() {
		err = multierr.Append(err, td.run())
	}()

	// MQTT (optional)
	var (
		mqttClient *mqtt.Client
		events     *mqtt.EventPublisher
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.With("component", "mqtt"))
		td.add("MQTT", func() error {
			st := mqttClient.Stats()
			log.Info("MQTT session summary", "connects", st.Connects, "losses", st.Losses)
			return mqttClient.Close()
		})
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttClient.ClientID(),
		)

		events = mqtt.NewEventPublisher(mqttClient, mqttClient.Topics(), mqttClient.ClientID(), byte(cfg.MQTT.QoS), 0) //nolint:gosec // QoS validated 0-2
		events.SetLogger(log.With("component", "mqtt-events"))
		td.add("MQTT event publisher", func() error {
			events.Close()
			published, dropped, failed := events.Counts()
			log.Info("MQTT event publisher stopped", "published", published, "dropped", dropped, "failed", failed)
			return nil
		})
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		td.add("InfluxDB", func() error {
			err := influxClient.Close()
			st := influxClient.Stats()
			log.Info("InfluxDB writer stopped", "points", st.Points, "failed_batches", st.Failures)
			return err
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	linkCfg, err := linkConfig(ctx, cfg)
	if err != nil {
		return err
	}
	client, err := link.New(linkCfg)
	if err != nil {
		return fmt.Errorf("creating link client: %w", err)
	}
	client.SetLogger(log.With("component", "link"))
	client.Liveness().SetLogger(log.With("component", "liveness"))
	td.add("link client", client.Shutdown)
	linkName := linkCfg.Endpoints.String()
	log.Info("link client created", "endpoints", linkName, "retries", cfg.Client.Retries)

	metrics := telemetry.New(version)
	client.Observe(metrics.ObserveLinkEvent)
	if events != nil {
		client.Observe(events.HandleEvent)
	}
	if influxClient != nil {
		client.Observe(influxClient.WriteLinkEvent)
	}
	if mqttClient != nil {
		commands, err := mqtt.ListenCommands(mqttClient, mqttClient.Topics(), mqttClient.ClientID(), byte(cfg.MQTT.QoS), client) //nolint:gosec // QoS validated 0-2
		if err != nil {
			return err
		}
		td.add("MQTT command intake", func() error {
			handled, failed := commands.Counts()
			log.Info("MQTT command intake stopped", "handled", handled, "failed", failed)
			return nil
		})
		log.Info("listening for MQTT commands", "topics", mqttClient.Topics().ClientCommands(mqttClient.ClientID()))
	}
	if err := metrics.RegisterLink(client); err != nil {
		return fmt.Errorf("registering link metrics: %w", err)
	}

	// Peer server (optional)
	var peers *peer.Server
	var sessions api.SessionLookup
	if cfg.Server.Enabled {
		peers, sessions, err = startPeerServer(ctx, cfg, log, mqttClient, td, checks)
		if err != nil {
			return err
		}
		if err := metrics.RegisterPeers(peers); err != nil {
			return fmt.Errorf("registering peer metrics: %w", err)
		}
	}

	// Admin API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log.With("component", "api"),
			Link:     client,
			Sessions: sessions,
			Checks:   checks,
			Metrics:  metrics,
			Version:  version,
		}
		if peers != nil {
			deps.Peers = peers.Registry()
		}
		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		td.add("API server", srv.Close)
		if cfg.API.Auth.JWTSecret == "" {
			log.Warn("API running without authentication", "address", cfg.APIAddress())
		}
	}

	if influxClient != nil {
		go writeStatsLoop(ctx, influxClient, client, linkName, peers, cfg.ServerAddress())
	}

	if opts.out != nil {
		client.OnDataArrived(func(_ netip.AddrPort, message string) {
			fmt.Fprintln(opts.out, message)
		})
	}

	if !opts.noConnect {
		client.Connect()
	}

	if opts.in != nil {
		go sendLines(ctx, client, opts.in, log)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// linkConfig builds the link client configuration, resolving host names
// once.
func linkConfig(ctx context.Context, cfg *config.Config) (link.Config, error) {
	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	endpoints, err := link.ResolveEndpoints(rctx, net.DefaultResolver, cfg.Client.Hosts, cfg.Client.Port)
	if err != nil {
		return link.Config{}, fmt.Errorf("resolving endpoints: %w", err)
	}

	enc, err := link.LookupEncoding(cfg.Client.Encoding)
	if err != nil {
		return link.Config{}, fmt.Errorf("client.encoding: %w", err)
	}

	framing, err := wire.ParseFraming(cfg.Client.Framing)
	if err != nil {
		return link.Config{}, fmt.Errorf("client.framing: %w", err)
	}

	retries := cfg.Client.Retries
	if retries < 0 {
		retries = link.NoRetries
	}

	lc := link.Config{
		Endpoints:      endpoints,
		Retries:        retries,
		RetryInterval:  cfg.Client.RetryInterval,
		ConnectTimeout: cfg.Client.ConnectTimeout,
		KeepAlive:      cfg.Client.KeepAlive,
		Encoding:       enc,
		Framing:        framing,
		AutoReconnect:  cfg.Client.AutoReconnect,
		SendQueueSize:  cfg.Client.SendQueueSize,
		Liveness:       liveness.Config{Interval: cfg.Liveness.Interval},
	}

	if cfg.Client.LocalAddress != "" {
		lc.LocalAddr, err = net.ResolveTCPAddr("tcp", cfg.Client.LocalAddress)
		if err != nil {
			return link.Config{}, fmt.Errorf("client.local_address: %w", err)
		}
	}
	return lc, nil
}

// startPeerServer opens the session store, if enabled, and starts the peer
// server. Publishes go to MQTT when a client is given.
func startPeerServer(ctx context.Context, cfg *config.Config, log *logging.Logger, mqttClient *mqtt.Client, td *teardown, checks map[string]api.HealthChecker) (*peer.Server, api.SessionLookup, error) {
	framing, err := wire.ParseFraming(cfg.Server.Framing)
	if err != nil {
		return nil, nil, fmt.Errorf("server.framing: %w", err)
	}

	var (
		store    peer.Store
		sessions api.SessionLookup
	)
	if cfg.Database.Enabled {
		db, err := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		td.add("database", db.Close)
		checks["database"] = db
		log.Info("database connected", "path", db.Path())

		if err := db.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}

		sqlStore := peer.NewSQLiteStore(db.DB)
		n, err := sqlStore.EndDangling(ctx, time.Now())
		if err != nil {
			return nil, nil, fmt.Errorf("closing dangling sessions: %w", err)
		}
		if n > 0 {
			log.Warn("closed sessions left open by a previous run", "sessions", n)
		}
		store, sessions = sqlStore, sqlStore
	}

	var fwd peer.Forwarder
	if mqttClient != nil {
		fwd = mqtt.NewPeerForwarder(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS)) //nolint:gosec // QoS validated 0-2
	}

	srv := peer.NewServer(peer.Config{
		Address:        cfg.ServerAddress(),
		ReadBufferSize: cfg.Server.ReadBuffer,
		Framing:        framing,
	}, store, fwd)
	srv.SetLogger(log.With("component", "peer"))

	if err := srv.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting peer server: %w", err)
	}
	td.add("peer server", srv.Close)
	return srv, sessions, nil
}

// writeStatsLoop records link and peer counters until ctx is cancelled.
func writeStatsLoop(ctx context.Context, influx *influxdb.Client, client *link.Client, linkName string, peers *peer.Server, listen string) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			influx.WriteLinkStats(linkName, client.Stats())
			if peers != nil {
				influx.WritePeerStats(listen, peers.Stats())
			}
		}
	}
}

// sendLines sends every line of in until it ends or ctx is cancelled.
// Lines that cannot be sent are logged and skipped.
func sendLines(ctx context.Context, client *link.Client, in io.Reader, log *logging.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := client.SendString(sc.Text()); err != nil {
			log.Warn("line not sent", "error", err)
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("reading stdin failed", "error", err)
	}
}
