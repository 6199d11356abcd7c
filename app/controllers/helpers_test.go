package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/clock"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

const (
	testAdminID = 1
	testUserID  = 42
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *gorm.DB
	clock    *clock.Manual
	settings *models.SettingsStore
	repos    *repository.Repositories
	svc      *billing.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&models.MembershipPlan{},
		&models.BillingAccount{},
		&models.UsageRecord{},
		&models.AuditEntry{},
		&models.APIKey{},
		&models.Setting{},
	))

	e := &testEnv{
		db:       db,
		clock:    clock.NewManual(jan1),
		settings: models.NewSettingsStore(db),
	}
	e.repos = repository.NewRepositories(db, e.settings)
	e.svc = billing.NewServiceFromDB(db, billing.WithClock(e.clock), billing.WithSettings(e.settings), billing.WithNotifier(nil))
	return e
}

// newApp returns a fiber app whose requests are authenticated as uid.
func newApp(uid uint, admin bool, register func(app *fiber.App)) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		usercontext.SetUserContext(c, usercontext.UserContext{UserID: uid, IsAuthenticated: true, IsAdmin: admin})
		return c.Next()
	})
	register(app)
	return app
}

func (e *testEnv) monthlyPlan(t *testing.T, name string, mutate func(p *models.MembershipPlan)) *models.MembershipPlan {
	t.Helper()
	p := &models.MembershipPlan{
		Name:            name,
		PlanType:        models.PlanTypeTimeBased,
		BillingInterval: models.BillingIntervalMonthly,
		AutoRenew:       true,
		GracePeriodDays: 7,
		Active:          true,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, e.svc.CreatePlan(t.Context(), p))
	return p
}

type response struct {
	status int
	header http.Header
	body   map[string]interface{}
	raw    []byte
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, header: resp.Header, raw: raw}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func (r response) data() []interface{} {
	d, _ := r.body["data"].([]interface{})
	return d
}

func (r response) field(name string) interface{} {
	return r.body[name]
}

func (r response) object(name string) map[string]interface{} {
	m, _ := r.body[name].(map[string]interface{})
	return m
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
