package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// NotificationConfig tunes donor-facing email copy without a redeploy.
type NotificationConfig struct {
	ReceiptSubject      string `mapstructure:"receiptSubject"`
	PaymentIssueSubject string `mapstructure:"paymentIssueSubject"`
	OrganizationName    string `mapstructure:"organizationName"`
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		ReceiptSubject:      "Thank you for your gift",
		PaymentIssueSubject: "Your payment method needs attention",
		OrganizationName:    "Offertory",
	}
}

// NotificationConfigHolder serves the current config and hot-reloads it when
// the file changes on disk.
type NotificationConfigHolder struct {
	current atomic.Value // holds NotificationConfig
}

func NewNotificationConfigHolder() (*NotificationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("notifications")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/offertory/config")
	v.AddConfigPath("/etc/offertory")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OFFERTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultNotificationConfig()
		v.SetDefault("notifications.receiptSubject", defaults.ReceiptSubject)
		v.SetDefault("notifications.paymentIssueSubject", defaults.PaymentIssueSubject)
		v.SetDefault("notifications.organizationName", defaults.OrganizationName)
	}

	var cfg NotificationConfig
	if err := v.UnmarshalKey("notifications", &cfg); err != nil {
		return nil, err
	}
	if err := validateNotificationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated NotificationConfig
		if err := v.UnmarshalKey("notifications", &updated); err != nil {
			log.Printf("[notification-config] reload failed: %v", err)
			return
		}
		if err := validateNotificationConfig(updated); err != nil {
			log.Printf("[notification-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[notification-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *NotificationConfigHolder) Get() NotificationConfig {
	if h == nil {
		return DefaultNotificationConfig()
	}
	value := h.current.Load()
	if value == nil {
		return DefaultNotificationConfig()
	}
	return value.(NotificationConfig)
}

func validateNotificationConfig(cfg NotificationConfig) error {
	if strings.TrimSpace(cfg.ReceiptSubject) == "" {
		return errors.New("notifications.receiptSubject cannot be empty")
	}
	if strings.TrimSpace(cfg.PaymentIssueSubject) == "" {
		return errors.New("notifications.paymentIssueSubject cannot be empty")
	}
	return nil
}
