package grants

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	grantsvc "captable-backend/internal/application/grants"
	ledgersvc "captable-backend/internal/application/ledger"
	"captable-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupGrantsHandlersTest(t *testing.T) (*Handlers, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.OptionPool{}, &domain.CompanyInvestor{}, &domain.CompanyInvestorEntity{},
		&domain.EquityGrant{}, &domain.VestingEvent{}, &domain.EquityGrantTransaction{},
		&domain.Invoice{},
	))
	h := &Handlers{
		Grants:     &grantsvc.Service{DB: db},
		Ledger:     &ledgersvc.Service{DB: db},
		Reconciler: &grantsvc.Reconciler{DB: db},
	}
	return h, db
}

func TestIssueHandler_CreatesGrant(t *testing.T) {
	h, db := setupGrantsHandlersTest(t)
	app := fiber.New()
	app.Post("/grants", h.Issue)

	pool := domain.OptionPool{Name: "Pool", AuthorizedShares: 10_000}
	require.NoError(t, db.Create(&pool).Error)
	inv := domain.CompanyInvestor{UserExternalID: "usr", CountryCode: "US"}
	require.NoError(t, db.Create(&inv).Error)

	body, _ := json.Marshal(map[string]interface{}{
		"option_pool_id":      pool.PoolID,
		"company_investor_id": inv.InvestorID,
		"number_of_shares":    1000,
		"share_price_usd":     "12.50",
		"exercise_price_usd":  "2.75",
		"vesting_trigger":     "scheduled",
		"schedule": map[string]interface{}{
			"total_vesting_duration_months": 48,
			"cliff_duration_months":         12,
			"vesting_frequency_months":      1,
			"vesting_commencement_date":     "2026-02-01T00:00:00Z",
		},
	})
	req := httptest.NewRequest("POST", "/grants", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "success", result["status"])
	data, _ := result["data"].(map[string]interface{})
	assert.Equal(t, float64(1000), data["unvested_shares"])

	var count int64
	require.NoError(t, db.Model(&domain.VestingEvent{}).Count(&count).Error)
	assert.Equal(t, int64(37), count)
}

func TestIssueHandler_PoolCapacityConflict(t *testing.T) {
	h, db := setupGrantsHandlersTest(t)
	app := fiber.New()
	app.Post("/grants", h.Issue)

	pool := domain.OptionPool{Name: "Pool", AuthorizedShares: 100}
	require.NoError(t, db.Create(&pool).Error)
	inv := domain.CompanyInvestor{UserExternalID: "usr", CountryCode: "US"}
	require.NoError(t, db.Create(&inv).Error)

	body, _ := json.Marshal(map[string]interface{}{
		"option_pool_id":      pool.PoolID,
		"company_investor_id": inv.InvestorID,
		"number_of_shares":    1000,
		"share_price_usd":     "12.50",
		"exercise_price_usd":  "2.75",
		"vesting_trigger":     "invoice_paid",
	})
	req := httptest.NewRequest("POST", "/grants", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestCancelHandler_RequiresReason(t *testing.T) {
	h, _ := setupGrantsHandlersTest(t)
	app := fiber.New()
	app.Post("/grants/:id/cancel", h.Cancel)

	body, _ := json.Marshal(map[string]interface{}{})
	req := httptest.NewRequest("POST", "/grants/"+uuid.NewString()+"/cancel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestCancelHandler_UnknownGrant(t *testing.T) {
	h, _ := setupGrantsHandlersTest(t)
	app := fiber.New()
	app.Post("/grants/:id/cancel", h.Cancel)

	body, _ := json.Marshal(map[string]interface{}{"reason": "terminated"})
	req := httptest.NewRequest("POST", "/grants/"+uuid.NewString()+"/cancel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestExerciseHandler_InvalidGrantID(t *testing.T) {
	h, _ := setupGrantsHandlersTest(t)
	app := fiber.New()
	app.Post("/grants/:id/exercise", h.Exercise)

	body, _ := json.Marshal(map[string]interface{}{
		"reference_id":      uuid.NewString(),
		"number_of_options": 10,
	})
	req := httptest.NewRequest("POST", "/grants/not-a-uuid/exercise", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestReconcileHandler_ReturnsReport(t *testing.T) {
	h, _ := setupGrantsHandlersTest(t)
	app := fiber.New()
	app.Get("/reconciliation", h.Reconcile)

	req := httptest.NewRequest("GET", "/reconciliation", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	data, _ := result["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["grants_checked"])
}
