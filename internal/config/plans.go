package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PlanMonthlyPremium = "monthly_premium"
	PlanAnnualPremium  = "annual_premium"
)

// Plan is one purchasable offering. Amount is in minor currency units.
type Plan struct {
	Name         string `mapstructure:"name"`
	Description  string `mapstructure:"description"`
	Amount       int64  `mapstructure:"amount"`
	DurationDays int    `mapstructure:"durationDays"`
	Recurring    bool   `mapstructure:"recurring"`
}

type PlanCatalog struct {
	Currency             string          `mapstructure:"currency"`
	InvoiceDurationHours int             `mapstructure:"invoiceDurationHours"`
	Plans                map[string]Plan `mapstructure:"plans"`
}

// Lookup returns the plan registered under code.
func (c PlanCatalog) Lookup(code string) (Plan, bool) {
	plan, ok := c.Plans[strings.TrimSpace(code)]
	return plan, ok
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Currency:             "PHP",
		InvoiceDurationHours: 24,
		Plans: map[string]Plan{
			PlanMonthlyPremium: {
				Name:         "Monthly Premium",
				Description:  "NCLEX Prep Premium - monthly access",
				Amount:       20000,
				DurationDays: 30,
				Recurring:    true,
			},
			PlanAnnualPremium: {
				Name:         "Annual Premium",
				Description:  "NCLEX Prep Premium - 12 months access",
				Amount:       192000,
				DurationDays: 365,
				Recurring:    false,
			},
		},
	}
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewStaticPlanCatalogHolder wraps a fixed catalog without file watching.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) (*PlanCatalogHolder, error) {
	if err := ValidatePlanCatalog(catalog); err != nil {
		return nil, err
	}
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder, nil
}

func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.plans")

	v := viper.New()
	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/nclexprep")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NCLEXPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlanCatalog()
	v.SetDefault("catalog.currency", defaults.Currency)
	v.SetDefault("catalog.invoiceDurationHours", defaults.InvoiceDurationHours)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
		v.SetDefault("catalog.plans", defaults.Plans)
	}

	catalog, err := decodePlanCatalog(v)
	if err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePlanCatalog(v)
			if err != nil {
				log.Warn("plan catalog reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("plan catalog reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func decodePlanCatalog(v *viper.Viper) (PlanCatalog, error) {
	var catalog PlanCatalog
	if err := v.UnmarshalKey("catalog", &catalog); err != nil {
		return PlanCatalog{}, err
	}
	catalog.Currency = strings.ToUpper(strings.TrimSpace(catalog.Currency))
	if err := ValidatePlanCatalog(catalog); err != nil {
		return PlanCatalog{}, err
	}
	return catalog, nil
}

func ValidatePlanCatalog(catalog PlanCatalog) error {
	if strings.TrimSpace(catalog.Currency) == "" {
		return errors.New("catalog.currency cannot be empty")
	}
	if catalog.InvoiceDurationHours <= 0 {
		return errors.New("catalog.invoiceDurationHours must be positive")
	}
	for _, code := range []string{PlanMonthlyPremium, PlanAnnualPremium} {
		plan, ok := catalog.Plans[code]
		if !ok {
			return fmt.Errorf("catalog.plans.%s is required", code)
		}
		if plan.Amount <= 0 {
			return fmt.Errorf("catalog.plans.%s.amount must be positive", code)
		}
		// amounts are sent to the gateway in major units
		if plan.Amount%100 != 0 {
			return fmt.Errorf("catalog.plans.%s.amount must be a whole major unit", code)
		}
		if plan.DurationDays <= 0 {
			return fmt.Errorf("catalog.plans.%s.durationDays must be positive", code)
		}
	}
	if catalog.Plans[PlanAnnualPremium].Recurring {
		return errors.New("catalog.plans.annual_premium cannot be recurring")
	}
	return nil
}
