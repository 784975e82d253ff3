package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// Publisher delivers escalated recovery actions to an external bus.
type Publisher interface {
	Publish(ctx context.Context, action *domain.RecoveryAction) error
	Close() error
}

// Config selects and configures the escalation publisher.
type Config struct {
	Driver  string   `yaml:"driver"` // nats, kafka, "nats,kafka" or empty for none
	URL     string   `yaml:"url"`
	Subject string   `yaml:"subject"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// New builds the publishers named by the comma-separated cfg.Driver. An
// empty driver yields nil; several drivers yield a Multi.
func New(cfg Config) (Publisher, error) {
	var out Multi
	for _, driver := range strings.Split(cfg.Driver, ",") {
		driver = strings.TrimSpace(driver)
		if driver == "" {
			continue
		}
		p, err := newPublisher(driver, cfg)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		out = append(out, p)
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

func newPublisher(driver string, cfg Config) (Publisher, error) {
	switch strings.ToLower(driver) {
	case "nats":
		p, err := NewNATSPublisher(cfg.URL, cfg.Subject)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "kafka":
		return NewKafkaPublisher(cfg.Brokers, cfg.Topic), nil
	default:
		return nil, fmt.Errorf("unknown notify driver: %s", driver)
	}
}

// Multi fans an action out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, action *domain.RecoveryAction) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, action); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
