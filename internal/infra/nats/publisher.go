package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"promptquiz-service/internal/domain"
)

type Config struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // how long room events are kept
	DuplicateWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "QUIZ_ROOMS",
		SubjectPrefix:   "quiz.rooms",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Publisher ships room lifecycle events to a JetStream stream. Subjects are
// {prefix}.{roomId}.{eventType}; the event id doubles as the dedupe id.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

func NewPublisher(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("promptquiz-service"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js, config: cfg}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, streamConfig(p.config))
	if err != nil {
		return err
	}
	log.Info().Str("stream", p.config.StreamName).Msg("JetStream stream ready")
	return nil
}

func streamConfig(cfg Config) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Quiz room lifecycle events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  cfg.DuplicateWindow,
	}
}

func (p *Publisher) Publish(ctx context.Context, evt domain.LifecycleEvent) error {
	msg, err := buildMsg(p.config.SubjectPrefix, evt)
	if err != nil {
		return err
	}
	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(evt.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", evt.ID).
		Uint64("sequence", ack.Sequence).
		Msg("published room event")
	return nil
}

func buildMsg(prefix string, evt domain.LifecycleEvent) (*nats.Msg, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: fmt.Sprintf("%s.%s.%s", prefix, evt.RoomID, evt.Type),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{evt.Type},
			"Room-ID":    []string{evt.RoomID},
			"Event-ID":   []string{evt.ID},
		},
	}, nil
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}
