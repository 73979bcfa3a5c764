package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Settings параметры медиатора из TOML-файла
type Settings struct {
	Mediator  MediatorSettings  `toml:"mediator"`
	Lightning LightningSettings `toml:"lightning"`
	Scheduler SchedulerSettings `toml:"scheduler"`
}

type MediatorSettings struct {
	// комиссия в долях (0.006 = 0.6%), делится поровну между сторонами
	Fee               float64       `toml:"fee"`
	Pow               int           `toml:"pow"`
	MaxMessageAge     time.Duration `toml:"max_message_age"`
	ExpirationHours   int           `toml:"expiration_hours"`
	ExpirationSeconds int           `toml:"expiration_seconds"`
	MinPaymentAmount  int64         `toml:"min_payment_amount"`
	MaxOrderAmount    int64         `toml:"max_order_amount"`
	MaxFiatAmount     float64       `toml:"max_fiat_amount"`
}

type LightningSettings struct {
	PaymentAttempts        int           `toml:"payment_attempts"`
	PaymentRetriesInterval time.Duration `toml:"payment_retries_interval"`
	HoldInvoiceExpiry      time.Duration `toml:"hold_invoice_expiry"`
	InvoicePollInterval    time.Duration `toml:"invoice_poll_interval"`
}

type SchedulerSettings struct {
	Interval time.Duration `toml:"interval"`
}

// DefaultSettings значения по умолчанию.
func DefaultSettings() *Settings {
	return &Settings{
		Mediator: MediatorSettings{
			Fee:               0.006,
			Pow:               0,
			MaxMessageAge:     10 * time.Second,
			ExpirationHours:   24,
			ExpirationSeconds: 900,
			MinPaymentAmount:  100,
			MaxOrderAmount:    1_000_000,
			MaxFiatAmount:     1_000_000,
		},
		Lightning: LightningSettings{
			PaymentAttempts:        3,
			PaymentRetriesInterval: time.Minute,
			HoldInvoiceExpiry:      time.Hour,
			InvoicePollInterval:    5 * time.Second,
		},
		Scheduler: SchedulerSettings{Interval: time.Minute},
	}
}

// LoadSettings читает TOML поверх значений по умолчанию. Пустой путь или
// отсутствующий файл дают значения по умолчанию.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, s); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.Mediator.Fee < 0 || s.Mediator.Fee >= 1 {
		return fmt.Errorf("mediator.fee must be in [0, 1)")
	}
	if s.Mediator.Pow < 0 || s.Mediator.Pow > 64 {
		return fmt.Errorf("mediator.pow must be in [0, 64]")
	}
	if s.Mediator.MaxMessageAge <= 0 {
		return fmt.Errorf("mediator.max_message_age must be positive")
	}
	if s.Mediator.MinPaymentAmount > s.Mediator.MaxOrderAmount {
		return fmt.Errorf("mediator.min_payment_amount exceeds max_order_amount")
	}
	if s.Lightning.PaymentAttempts < 1 {
		return fmt.Errorf("lightning.payment_attempts must be at least 1")
	}
	return nil
}

// OrderExpiration срок жизни опубликованного ордера.
func (s *Settings) OrderExpiration() time.Duration {
	return time.Duration(s.Mediator.ExpirationHours) * time.Hour
}

// TakenExpiration время ожидания оплаты или инвойса после взятия ордера.
func (s *Settings) TakenExpiration() time.Duration {
	return time.Duration(s.Mediator.ExpirationSeconds) * time.Second
}
