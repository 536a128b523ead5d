package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"tickvault/internal/domain"
)

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	Topics         []string
	GroupID        string
	ClientID       string
	MaxPollRecords int
	FetchMaxWait   time.Duration
}

func (c *KafkaConfig) withDefaults() {
	if c.MaxPollRecords <= 0 {
		c.MaxPollRecords = 500
	}
	if c.FetchMaxWait <= 0 {
		c.FetchMaxWait = time.Second
	}
}

func (c KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if len(c.Topics) == 0 {
		return errors.New("kafka.topics is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka.group_id is required")
	}
	return nil
}

// KafkaSource consumes trade events from Kafka topics as an alternative
// to the exchange WebSocket, for deployments where a relay already
// mirrors the feed into a broker. Offsets are committed only after the
// handler returns, preserving at-least-once delivery into the segment
// engine.
type KafkaSource struct {
	cfg KafkaConfig
	log *slog.Logger

	client       *kgo.Client
	markCommit   func(*kgo.Record)
	commitMarked func(context.Context) error
}

func NewKafkaSource(cfg KafkaConfig, log *slog.Logger, opts ...kgo.Opt) (*KafkaSource, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(cfg.FetchMaxWait),
	}
	if cfg.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(cfg.ClientID))
	}
	kopts = append(kopts, opts...)

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}

	s := &KafkaSource{cfg: cfg, log: log, client: cl}
	s.markCommit = func(r *kgo.Record) { cl.MarkCommitRecords(r) }
	s.commitMarked = func(ctx context.Context) error { return cl.CommitMarkedOffsets(ctx) }
	return s, nil
}

// Run polls records and hands each decoded event to h synchronously.
// Malformed records are logged, skipped, and still committed so they are
// not redelivered forever. Returns once ctx is cancelled.
func (s *KafkaSource) Run(ctx context.Context, h Handler) error {
	defer s.client.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches := s.client.PollRecords(ctx, s.cfg.MaxPollRecords)
		if fetches.IsClientClosed() {
			return ctx.Err()
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return ctx.Err()
			}
			s.log.Error("kafka fetch error", "topic", fe.Topic, "partition", fe.Partition, "err", fe.Err)
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			ev, err := decodeRecord(rec.Value)
			if err != nil {
				s.log.Warn("skipping malformed kafka record", "topic", rec.Topic, "offset", rec.Offset, "err", err)
			} else {
				h(ev)
			}
			s.markCommit(rec)
		})
		if err := s.commitMarked(ctx); err != nil {
			s.log.Error("kafka commit failed", "err", err)
		}
	}
}

// decodeRecord accepts either the combined-stream envelope
// {"stream":...,"data":{...}} or a bare event document.
func decodeRecord(value []byte) (domain.Event, error) {
	var fr frame
	if err := json.Unmarshal(value, &fr); err == nil && fr.Data != nil {
		return fr.Data, nil
	}
	var ev domain.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if len(ev) == 0 {
		return nil, errors.New("empty event document")
	}
	return ev, nil
}
