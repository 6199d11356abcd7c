package statistics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/clock"
)

const (
	CacheKeyDashboard = "statistics:billing:%s" // Format with date YYYY-MM-DD
	CacheExpiration   = 5 * time.Minute
)

// Cache stores the rendered dashboard between requests.
type Cache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
}

// Dashboard holds the billing figures shown to admins
type Dashboard struct {
	Date              string           `json:"date"`
	TotalAccounts     int64            `json:"total_accounts"`
	AccountsByStatus  map[string]int64 `json:"accounts_by_status"`
	FreeAccess        int64            `json:"free_access"`
	ActivePlans       int64            `json:"active_plans"`
	UsageRecordsToday int64            `json:"usage_records_today"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// Service computes the dashboard, serving it from the cache while it is fresh.
type Service struct {
	db    *gorm.DB
	cache Cache
	clock clock.Clock
}

// NewService creates a statistics service. A nil cache computes on every call.
func NewService(db *gorm.DB, cache Cache, c clock.Clock) *Service {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{db: db, cache: cache, clock: c}
}

// Dashboard returns today's figures. Cached reports whether they came from the cache.
func (s *Service) Dashboard() (d Dashboard, cached bool, err error) {
	today := s.clock.Now().UTC().Format("2006-01-02")
	key := fmt.Sprintf(CacheKeyDashboard, today)

	if s.cache != nil {
		if val, err := s.cache.Get(key); err == nil && val != "" {
			if err := json.Unmarshal([]byte(val), &d); err == nil {
				return d, true, nil
			}
		}
	}

	d, err = s.compute(today)
	if err != nil {
		return Dashboard{}, false, err
	}
	if s.cache != nil {
		if b, err := json.Marshal(d); err == nil {
			if err := s.cache.Set(key, string(b), CacheExpiration); err != nil {
				log.Debugf("[Statistics] Dashboard not cached: %v", err)
			}
		}
	}
	return d, false, nil
}

func (s *Service) compute(today string) (Dashboard, error) {
	d := Dashboard{Date: today, AccountsByStatus: map[string]int64{}, GeneratedAt: s.clock.Now().UTC()}

	var rows []struct {
		SubscriptionStatus string
		N                  int64
	}
	if err := s.db.Model(&models.BillingAccount{}).
		Select("subscription_status, COUNT(*) AS n").
		Group("subscription_status").
		Scan(&rows).Error; err != nil {
		return d, fmt.Errorf("count accounts: %w", err)
	}
	for _, r := range rows {
		d.AccountsByStatus[r.SubscriptionStatus] = r.N
		d.TotalAccounts += r.N
	}

	if err := s.db.Model(&models.BillingAccount{}).Where("free_access_granted = ?", true).Count(&d.FreeAccess).Error; err != nil {
		return d, fmt.Errorf("count free access: %w", err)
	}
	if err := s.db.Model(&models.MembershipPlan{}).Where("active = ?", true).Count(&d.ActivePlans).Error; err != nil {
		return d, fmt.Errorf("count plans: %w", err)
	}

	dayStart, _ := time.Parse("2006-01-02", today)
	dayEnd := dayStart.Add(24 * time.Hour)
	if err := s.db.Model(&models.UsageRecord{}).
		Where("timestamp >= ? AND timestamp < ?", dayStart, dayEnd).
		Count(&d.UsageRecordsToday).Error; err != nil {
		return d, fmt.Errorf("count usage records: %w", err)
	}
	return d, nil
}
