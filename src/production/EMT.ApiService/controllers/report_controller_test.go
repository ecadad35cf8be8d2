package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emtaggregator "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Aggregator"
	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

type fakeReadingRepo struct {
	readings []emtmodels.Reading
	rangeErr error
	lastQ    interfaces.RangeQuery
}

func (r *fakeReadingRepo) Append(ctx context.Context, rd emtmodels.Reading) error { return nil }

func (r *fakeReadingRepo) FindLatest(ctx context.Context, chipId string) (*emtmodels.Reading, error) {
	return nil, nil
}

func (r *fakeReadingRepo) FindRange(ctx context.Context, q interfaces.RangeQuery) ([]emtmodels.Reading, error) {
	r.lastQ = q
	return r.readings, r.rangeErr
}

func (r *fakeReadingRepo) ListUnprocessedMaxDemand(ctx context.Context, limit int) ([]emtmodels.Reading, error) {
	return nil, nil
}

func (r *fakeReadingRepo) MarkMaxDemandProcessed(ctx context.Context, ids []interface{}) error {
	return nil
}

type fakeDemandRepo struct {
	records []emtmodels.MaximumDemand
	highest *emtmodels.MaximumDemand
}

func (r *fakeDemandRepo) Insert(ctx context.Context, record emtmodels.MaximumDemand) error {
	return nil
}

func (r *fakeDemandRepo) ListByDevice(ctx context.Context, deviceId int) ([]emtmodels.MaximumDemand, error) {
	return r.records, nil
}

func (r *fakeDemandRepo) FindHighest(ctx context.Context, deviceId int) (*emtmodels.MaximumDemand, error) {
	return r.highest, nil
}

type fakeReloader struct {
	calls int
	err   error
}

func (r *fakeReloader) Reload(ctx context.Context) error {
	r.calls++
	return r.err
}

type controllerFixture struct {
	readings *fakeReadingRepo
	demand   *fakeDemandRepo
	reloader *fakeReloader
	router   *gin.Engine
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	readings := &fakeReadingRepo{}
	demand := &fakeDemandRepo{}
	reloader := &fakeReloader{}
	agg := emtaggregator.New(readings, logger.Nop())

	router := gin.New()
	NewReportController(agg, readings, demand, reloader, 330, logger.Nop()).RegisterRoutes(router)

	return &controllerFixture{readings: readings, demand: demand, reloader: reloader, router: router}
}

func (f *controllerFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetReadings_RequiresIdentity(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/energy-meter-data-json?startDate=2024-03-01&endDate=2024-03-02")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "chipId or deviceId is required")
}

func TestGetReadings_InvalidDateRejected(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/energy-meter-data-json?chipId=42&startDate=not-a-date&endDate=2024-03-02")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid date format")
}

func TestGetReadings_EmptyResultIsBadRequest(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/energy-meter-data-json?chipId=42&startDate=2024-03-01&endDate=2024-03-02")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No Data Found for the given criteria")
}

func TestGetReadings_AppliesLocalOffsetToWindow(t *testing.T) {
	f := newControllerFixture(t)
	f.readings.readings = []emtmodels.Reading{{ChipId: "42", Kwh: 100}}

	rec := f.get("/api/data/energy-meter-data-json?chipId=42&startDate=2024-03-01T00:00:00&endDate=2024-03-02T00:00:00&top=5")

	require.Equal(t, http.StatusOK, rec.Code)

	q := f.readings.lastQ
	want := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC).Add(330 * time.Minute)
	assert.Equal(t, want, q.Start)
	assert.Equal(t, "42", q.ChipId)
	assert.Equal(t, 5, q.Top)

	var body []emtmodels.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "42", body[0].ChipId)
}

func TestGetReadings_StoreErrorIsInternal(t *testing.T) {
	f := newControllerFixture(t)
	f.readings.rangeErr = errors.New("store unavailable")

	rec := f.get("/api/data/energy-meter-data-json?chipId=42&startDate=2024-03-01&endDate=2024-03-02")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetConsumedKwh(t *testing.T) {
	f := newControllerFixture(t)
	f.readings.readings = []emtmodels.Reading{
		{ChipId: "42", Kwh: 100},
		{ChipId: "42", Kwh: 104.5},
	}

	rec := f.get("/api/data/energy-meter-consumed-kwh-api?chipId=42&startDate=2024-03-01&endDate=2024-03-02")

	require.Equal(t, http.StatusOK, rec.Code)
	var result emtaggregator.ConsumedKwh
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 4.5, result.TotalConsumedKwh, 1e-9)
}

func TestGetGroupedByFrequency_UnknownFrequency(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/energy-meter-data-group-frequency-json?deviceId=7&frequency=quarterly&startDate=2024-03-01&endDate=2024-03-02")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown granularity")
}

func TestGetGroupedByFrequency_RequiresFrequency(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/energy-meter-data-group-frequency-json?deviceId=7&startDate=2024-03-01&endDate=2024-03-02")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "frequency is required")
}

func TestGetHourlyTimeline_RequiresDeviceId(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/energy-meter-data-group-hourly-timeline-api?startDate=2024-03-01&endDate=2024-03-02")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "deviceId is required")
}

func TestReloadDevices(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/reload-devices")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Reloaded successfully.")
	assert.Equal(t, 1, f.reloader.calls)
}

func TestReloadDevices_Failure(t *testing.T) {
	f := newControllerFixture(t)
	f.reloader.err = errors.New("registry down")

	rec := f.get("/api/data/reload-devices")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetMaximumDemandHistory(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/view-maximum-demand?deviceId=7")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.demand.records = []emtmodels.MaximumDemand{{DeviceId: 7, MaxDemand: 1.5}}
	rec = f.get("/api/data/view-maximum-demand?deviceId=7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Maximum demand data retrieved successfully")
}

func TestGetMaximumDemandValue(t *testing.T) {
	f := newControllerFixture(t)

	rec := f.get("/api/data/view-max-demand-value?deviceId=7")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.demand.highest = &emtmodels.MaximumDemand{DeviceId: 7, MaxDemand: 2.25}
	rec = f.get("/api/data/view-max-demand-value?deviceId=7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2.25")
}
