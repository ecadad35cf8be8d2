package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	emtaggregator "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Aggregator"
	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

// Reloader triggers a subscription pool refresh; the receiver implements it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReportController serves the reporting and administrative endpoints over the
// persisted reading stream.
type ReportController struct {
	aggregator    *emtaggregator.Aggregator
	readingRepo   interfaces.ReadingRepository
	demandRepo    interfaces.MaximumDemandRepository
	reloader      Reloader
	offsetMinutes int
	logger        *logger.Logger
}

func NewReportController(
	aggregator *emtaggregator.Aggregator,
	readingRepo interfaces.ReadingRepository,
	demandRepo interfaces.MaximumDemandRepository,
	reloader Reloader,
	offsetMinutes int,
	log *logger.Logger,
) *ReportController {
	return &ReportController{
		aggregator:    aggregator,
		readingRepo:   readingRepo,
		demandRepo:    demandRepo,
		reloader:      reloader,
		offsetMinutes: offsetMinutes,
		logger:        log.WithComponent("report-controller"),
	}
}

// RegisterRoutes registers the report routes with Gin
func (c *ReportController) RegisterRoutes(router *gin.Engine) {
	data := router.Group("/api/data")
	{
		data.GET("/energy-meter-data-json", c.GetReadings)
		data.GET("/energy-meter-consumed-kwh-api", c.GetConsumedKwh)
		data.GET("/energy-meter-data-group-frequency-json", c.GetGroupedByFrequency)
		data.GET("/energy-meter-data-group-hourly-timeline-api", c.GetHourlyTimeline)
		data.GET("/reload-devices", c.ReloadDevices)
		data.GET("/view-maximum-demand", c.GetMaximumDemandHistory)
		data.GET("/view-max-demand-value", c.GetMaximumDemandValue)
	}
}

func (c *ReportController) GetReadings(ctx *gin.Context) {
	chipId := ctx.Query("chipId")
	deviceId, hasDeviceId, ok := c.optionalDeviceId(ctx)
	if !ok {
		return
	}
	if chipId == "" && !hasDeviceId {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "chipId or deviceId is required"})
		return
	}

	start, end, ok := c.parseRange(ctx)
	if !ok {
		return
	}

	q := interfaces.RangeQuery{
		ChipId:    chipId,
		Start:     c.toLocal(start),
		End:       c.toLocal(end),
		SortOrder: ctx.DefaultQuery("sortOrder", "asc"),
	}
	if hasDeviceId {
		q.DeviceId = &deviceId
	}
	if top := ctx.Query("top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid top parameter"})
			return
		}
		q.Top = n
	}

	readings, err := c.readingRepo.FindRange(ctx, q)
	if err != nil {
		c.logger.ErrorWithError(err, "Failed to query readings")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error retrieving data"})
		return
	}
	if len(readings) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "No Data Found for the given criteria"})
		return
	}

	ctx.JSON(http.StatusOK, readings)
}

func (c *ReportController) GetConsumedKwh(ctx *gin.Context) {
	chipId := ctx.Query("chipId")
	deviceId, hasDeviceId, ok := c.optionalDeviceId(ctx)
	if !ok {
		return
	}
	if chipId == "" && !hasDeviceId {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "chipId or deviceId is required"})
		return
	}

	start, end, ok := c.parseRange(ctx)
	if !ok {
		return
	}

	var devicePtr *int
	if hasDeviceId {
		devicePtr = &deviceId
	}
	result, err := c.aggregator.TotalConsumedKwh(ctx, chipId, devicePtr, c.toLocal(start), c.toLocal(end))
	if err != nil {
		c.logger.ErrorWithError(err, "Failed to compute consumed kwh")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error retrieving data"})
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *ReportController) GetGroupedByFrequency(ctx *gin.Context) {
	deviceId, ok := c.requiredDeviceId(ctx)
	if !ok {
		return
	}
	start, end, ok := c.parseRange(ctx)
	if !ok {
		return
	}
	frequency := ctx.Query("frequency")
	if frequency == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "frequency is required"})
		return
	}

	buckets, err := c.aggregator.Group(ctx, deviceId, start, end, frequency)
	if err != nil {
		if errors.Is(err, emtaggregator.ErrUnknownGranularity) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.logger.ErrorWithError(err, "Failed to group readings")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error retrieving data"})
		return
	}

	ctx.JSON(http.StatusOK, buckets)
}

func (c *ReportController) GetHourlyTimeline(ctx *gin.Context) {
	deviceId, ok := c.requiredDeviceId(ctx)
	if !ok {
		return
	}
	start, end, ok := c.parseRange(ctx)
	if !ok {
		return
	}

	timeline, err := c.aggregator.HourlyTimeline(ctx, deviceId, start, end)
	if err != nil {
		c.logger.ErrorWithError(err, "Failed to build hourly timeline")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error retrieving data"})
		return
	}

	ctx.JSON(http.StatusOK, timeline)
}

func (c *ReportController) ReloadDevices(ctx *gin.Context) {
	if err := c.reloader.Reload(ctx); err != nil {
		c.logger.ErrorWithError(err, "Device reload failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload devices"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Reloaded successfully."})
}

func (c *ReportController) GetMaximumDemandHistory(ctx *gin.Context) {
	deviceId, ok := c.requiredDeviceId(ctx)
	if !ok {
		return
	}

	records, err := c.demandRepo.ListByDevice(ctx, deviceId)
	if err != nil {
		c.logger.ErrorWithError(err, "Failed to query maximum demand history")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve maximum demand data"})
		return
	}
	if len(records) == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "No maximum demand data found for this device"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":  "Success",
		"message": "Maximum demand data retrieved successfully",
		"data":    records,
	})
}

func (c *ReportController) GetMaximumDemandValue(ctx *gin.Context) {
	deviceId, ok := c.requiredDeviceId(ctx)
	if !ok {
		return
	}

	record, err := c.demandRepo.FindHighest(ctx, deviceId)
	if err != nil {
		c.logger.ErrorWithError(err, "Failed to query maximum demand value")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve maximum demand data"})
		return
	}
	if record == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "No maximum demand data found for this device"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":  "Success",
		"message": "Maximum demand data retrieved successfully",
		"data":    record,
	})
}

func (c *ReportController) requiredDeviceId(ctx *gin.Context) (int, bool) {
	raw := ctx.Query("deviceId")
	if raw == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return 0, false
	}
	deviceId, err := strconv.Atoi(raw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid deviceId"})
		return 0, false
	}
	return deviceId, true
}

func (c *ReportController) optionalDeviceId(ctx *gin.Context) (int, bool, bool) {
	raw := ctx.Query("deviceId")
	if raw == "" {
		return 0, false, true
	}
	deviceId, err := strconv.Atoi(raw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid deviceId"})
		return 0, false, false
	}
	return deviceId, true, true
}

func (c *ReportController) parseRange(ctx *gin.Context) (time.Time, time.Time, bool) {
	start, err := parseDateTime(ctx.Query("startDate"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format. Please use a valid date and time format (e.g., YYYY-MM-DDTHH:mm:ss)."})
		return time.Time{}, time.Time{}, false
	}
	end, err := parseDateTime(ctx.Query("endDate"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format. Please use a valid date and time format (e.g., YYYY-MM-DDTHH:mm:ss)."})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (c *ReportController) toLocal(t time.Time) time.Time {
	return t.Add(time.Duration(c.offsetMinutes) * time.Minute)
}

func parseDateTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing date")
	}
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
