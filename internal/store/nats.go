package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"StayDesk/internal/config"
	"StayDesk/internal/lib/sl"
)

const (
	presenceBucket   = "PRESENCE"
	assignmentBucket = "SUPPORT_ASSIGN"

	connectAttempts = 30
	connectBackoff  = 2 * time.Second
)

// Store holds the NATS connection and the KV buckets shared by every
// service instance: presence entries and support assignment timers.
type Store struct {
	nc           *nats.Conn
	presenceKV   nats.KeyValue
	assignmentKV nats.KeyValue
	log          *slog.Logger
}

// Connect dials NATS with retry and ensures the shared KV buckets exist.
// The assignment bucket carries the TTL that implements the dead-man's
// switch: a key that has not been rewritten within assignmentTTL is gone,
// and its absence is what triggers reassignment.
func Connect(conf *config.Config, assignmentTTL time.Duration, logger *slog.Logger) (*Store, error) {
	log := logger.With(sl.Module("store"))

	opts := []nats.Option{
		nats.Name("staydesk"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(connectBackoff),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", sl.Err(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	if conf.Nats.User != "" {
		opts = append(opts, nats.UserInfo(conf.Nats.User, conf.Nats.Password))
	}

	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		nc, err = nats.Connect(conf.Nats.URL, opts...)
		if err == nil {
			break
		}
		log.Info("waiting for nats", slog.Int("attempt", attempt), sl.Err(err))
		time.Sleep(connectBackoff)
	}
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	presenceKV, err := ensureBucket(js, &nats.KeyValueConfig{
		Bucket:  presenceBucket,
		History: 1,
		Storage: nats.MemoryStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("presence bucket: %w", err)
	}

	assignmentKV, err := ensureBucket(js, &nats.KeyValueConfig{
		Bucket:  assignmentBucket,
		History: 1,
		TTL:     assignmentTTL,
		Storage: nats.MemoryStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("assignment bucket: %w", err)
	}

	log.Info("nats kv buckets ready",
		slog.String("url", nc.ConnectedUrl()),
		slog.Duration("assignment_ttl", assignmentTTL),
	)

	return &Store{
		nc:           nc,
		presenceKV:   presenceKV,
		assignmentKV: assignmentKV,
		log:          log,
	}, nil
}

func ensureBucket(js nats.JetStreamContext, conf *nats.KeyValueConfig) (nats.KeyValue, error) {
	kv, err := js.KeyValue(conf.Bucket)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(conf)
}

// Conn exposes the underlying connection for the fan-out bridge.
func (s *Store) Conn() *nats.Conn {
	return s.nc
}

// Close drains the connection, letting in-flight publishes finish.
func (s *Store) Close() {
	if err := s.nc.Drain(); err != nil {
		s.log.Warn("nats drain", sl.Err(err))
	}
}
