package emtaggregator

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

// stubRepo serves FindRange from an in-memory slice, filtering on the local
// timestamp window the way the store does.
type stubRepo struct {
	readings []emtmodels.Reading
	rangeErr error
}

func (r *stubRepo) Append(ctx context.Context, rd emtmodels.Reading) error { return nil }

func (r *stubRepo) FindLatest(ctx context.Context, chipId string) (*emtmodels.Reading, error) {
	return nil, nil
}

func (r *stubRepo) FindRange(ctx context.Context, q interfaces.RangeQuery) ([]emtmodels.Reading, error) {
	if r.rangeErr != nil {
		return nil, r.rangeErr
	}
	var out []emtmodels.Reading
	for _, rd := range r.readings {
		if q.ChipId != "" && rd.ChipId != q.ChipId {
			continue
		}
		if q.DeviceId != nil && rd.DeviceId != *q.DeviceId {
			continue
		}
		local := rd.DeviceTimeStampDateLocal
		if local.Before(q.Start) || local.After(q.End) {
			continue
		}
		out = append(out, rd)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DeviceTimeStamp, out[j].DeviceTimeStamp
		if q.SortOrder == "desc" {
			return a > b
		}
		return a < b
	})
	if q.Top > 0 && len(out) > q.Top {
		out = out[:q.Top]
	}
	return out, nil
}

func (r *stubRepo) ListUnprocessedMaxDemand(ctx context.Context, limit int) ([]emtmodels.Reading, error) {
	var out []emtmodels.Reading
	for _, rd := range r.readings {
		if rd.IsMaximumDemandProcessed {
			continue
		}
		out = append(out, rd)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *stubRepo) MarkMaxDemandProcessed(ctx context.Context, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	for i := range r.readings {
		r.readings[i].IsMaximumDemandProcessed = true
	}
	return nil
}

func readingAt(deviceId int, local time.Time, kwh, rate float64) emtmodels.Reading {
	return emtmodels.Reading{
		ChipId:                   "42",
		DeviceId:                 deviceId,
		Kwh:                      kwh,
		KwhPerN:                  rate,
		KwhPerN2:                 rate / 2,
		DeviceTimeStamp:          local.Unix(),
		DeviceTimeStampDateUTC:   local.Add(-330 * time.Minute),
		DeviceTimeStampDateLocal: local,
	}
}

func TestGroup_UnknownGranularity(t *testing.T) {
	a := New(&stubRepo{}, logger.Nop())

	_, err := a.Group(context.Background(), 7, time.Now().Add(-time.Hour), time.Now(), "quarterly")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownGranularity)
}

func TestGroup_StartAfterEndIsEmpty(t *testing.T) {
	a := New(&stubRepo{}, logger.Nop())

	buckets, err := a.Group(context.Background(), 7, time.Now(), time.Now().Add(-time.Hour), Hourly)

	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestGroup_HourlySumsAndFirstDatetime(t *testing.T) {
	day := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{readings: []emtmodels.Reading{
		readingAt(7, day.Add(10*time.Hour+5*time.Minute), 100, 0.2),
		readingAt(7, day.Add(10*time.Hour+30*time.Minute), 101, 0.4),
		readingAt(7, day.Add(12*time.Hour+15*time.Minute), 103, 0.6),
	}}
	a := New(repo, logger.Nop())

	buckets, err := a.Group(context.Background(), 7, day, day.Add(24*time.Hour), Hourly)

	require.NoError(t, err)
	require.Len(t, buckets, 2)

	first := buckets[0]
	require.NotNil(t, first.Key.Hour)
	assert.Equal(t, 10, *first.Key.Hour)
	assert.Equal(t, 2024, first.Key.Year)
	assert.Equal(t, 2, first.Count)
	require.NotNil(t, first.TotalKwhPerN)
	assert.InDelta(t, 0.6, *first.TotalKwhPerN, 1e-9)
	assert.InDelta(t, 0.3, *first.TotalKwhPerN2, 1e-9)
	assert.Equal(t, day.Add(10*time.Hour+5*time.Minute), first.FirstDatetime)

	second := buckets[1]
	require.NotNil(t, second.Key.Hour)
	assert.Equal(t, 12, *second.Key.Hour)
	assert.Equal(t, 1, second.Count)
}

func TestGroup_DailyAndMonthlyKeys(t *testing.T) {
	repo := &stubRepo{readings: []emtmodels.Reading{
		readingAt(7, time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC), 100, 0.1),
		readingAt(7, time.Date(2024, time.March, 16, 9, 0, 0, 0, time.UTC), 101, 0.1),
		readingAt(7, time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC), 102, 0.1),
	}}
	a := New(repo, logger.Nop())
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC)

	daily, err := a.Group(context.Background(), 7, start, end, Daily)
	require.NoError(t, err)
	require.Len(t, daily, 3)
	require.NotNil(t, daily[0].Key.Day)
	assert.Equal(t, 15, *daily[0].Key.Day)
	assert.Nil(t, daily[0].Key.Hour)
	assert.Nil(t, daily[0].Key.Week)

	monthly, err := a.Group(context.Background(), 7, start, end, Monthly)
	require.NoError(t, err)
	require.Len(t, monthly, 2)
	require.NotNil(t, monthly[0].Key.Month)
	assert.Equal(t, int(time.March), *monthly[0].Key.Month)
	assert.Equal(t, 2, monthly[0].Count)
	assert.Nil(t, monthly[0].Key.Day)
	require.NotNil(t, monthly[1].Key.Month)
	assert.Equal(t, int(time.April), *monthly[1].Key.Month)
}

func TestGroup_WeeklyUsesISOWeek(t *testing.T) {
	// Monday and the following Sunday fall in the same ISO week; the next
	// Monday starts a new one.
	monday := time.Date(2024, time.March, 11, 12, 0, 0, 0, time.UTC)
	repo := &stubRepo{readings: []emtmodels.Reading{
		readingAt(7, monday, 100, 0.1),
		readingAt(7, monday.AddDate(0, 0, 6), 101, 0.1),
		readingAt(7, monday.AddDate(0, 0, 7), 102, 0.1),
	}}
	a := New(repo, logger.Nop())

	buckets, err := a.Group(context.Background(), 7, monday.AddDate(0, 0, -1), monday.AddDate(0, 0, 8), Weekly)

	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, 2, buckets[0].Count)
	assert.Equal(t, 1, buckets[1].Count)

	_, wantWeek := monday.ISOWeek()
	require.NotNil(t, buckets[0].Key.Week)
	assert.Equal(t, wantWeek, *buckets[0].Key.Week)
	assert.Nil(t, buckets[0].Key.Month)
}

func TestGroup_WeeklyYearBoundaryUsesISOYear(t *testing.T) {
	// 2024-12-30 is a Monday in ISO week 1 of 2025; the week before is
	// week 52 of 2024 and must sort first.
	week52 := time.Date(2024, time.December, 23, 12, 0, 0, 0, time.UTC)
	week1 := time.Date(2024, time.December, 30, 12, 0, 0, 0, time.UTC)
	repo := &stubRepo{readings: []emtmodels.Reading{
		readingAt(7, week1, 101, 0.1),
		readingAt(7, week52, 100, 0.1),
	}}
	a := New(repo, logger.Nop())

	buckets, err := a.Group(context.Background(), 7, week52.AddDate(0, 0, -1), week1.AddDate(0, 0, 1), Weekly)

	require.NoError(t, err)
	require.Len(t, buckets, 2)

	require.NotNil(t, buckets[0].Key.Week)
	assert.Equal(t, 2024, buckets[0].Key.Year)
	assert.Equal(t, 52, *buckets[0].Key.Week)

	require.NotNil(t, buckets[1].Key.Week)
	assert.Equal(t, 2025, buckets[1].Key.Year)
	assert.Equal(t, 1, *buckets[1].Key.Week)
}

func TestGroup_RepoErrorPropagates(t *testing.T) {
	repo := &stubRepo{rangeErr: errors.New("store unavailable")}
	a := New(repo, logger.Nop())

	_, err := a.Group(context.Background(), 7, time.Now().Add(-time.Hour), time.Now(), Hourly)

	assert.Error(t, err)
}

func TestHourlyTimeline_GapFilled(t *testing.T) {
	start := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	repo := &stubRepo{readings: []emtmodels.Reading{
		readingAt(7, start.Add(20*time.Minute), 100, 0.5),
	}}
	a := New(repo, logger.Nop())

	timeline, err := a.HourlyTimeline(context.Background(), 7, start, end)

	require.NoError(t, err)
	require.Len(t, timeline, 3)

	require.NotNil(t, timeline[0].Key.Hour)
	assert.Equal(t, 10, *timeline[0].Key.Hour)
	assert.Equal(t, 1, timeline[0].Count)
	require.NotNil(t, timeline[0].TotalKwhPerN)
	assert.InDelta(t, 0.5, *timeline[0].TotalKwhPerN, 1e-9)

	for i, hour := range []int{11, 12} {
		slot := timeline[i+1]
		require.NotNil(t, slot.Key.Hour)
		assert.Equal(t, hour, *slot.Key.Hour)
		assert.Equal(t, 0, slot.Count)
		assert.Nil(t, slot.TotalKwhPerN)
		assert.Nil(t, slot.TotalKwhPerN2)
		assert.Nil(t, slot.TotalKwhPerN3)
		assert.Equal(t, start.Add(time.Duration(i+1)*time.Hour), slot.FirstDatetime)
	}
}

func TestHourlyTimeline_StartAfterEndIsEmpty(t *testing.T) {
	a := New(&stubRepo{}, logger.Nop())

	timeline, err := a.HourlyTimeline(context.Background(), 7, time.Now(), time.Now().Add(-time.Hour))

	require.NoError(t, err)
	assert.Empty(t, timeline)
}

func TestTotalConsumedKwh(t *testing.T) {
	day := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{readings: []emtmodels.Reading{
		readingAt(7, day.Add(1*time.Hour), 100.5, 0),
		readingAt(7, day.Add(2*time.Hour), 103.25, 0),
		readingAt(7, day.Add(3*time.Hour), 107.75, 0),
	}}
	a := New(repo, logger.Nop())

	consumed, err := a.TotalConsumedKwh(context.Background(), "42", nil, day, day.Add(24*time.Hour))

	require.NoError(t, err)
	assert.InDelta(t, 7.25, consumed.TotalConsumedKwh, 1e-9)
	require.NotNil(t, consumed.FirstRecord)
	assert.Equal(t, 100.5, *consumed.FirstRecord)
	require.NotNil(t, consumed.LastRecord)
	assert.Equal(t, 107.75, *consumed.LastRecord)
}

func TestTotalConsumedKwh_EmptyRange(t *testing.T) {
	a := New(&stubRepo{}, logger.Nop())

	consumed, err := a.TotalConsumedKwh(context.Background(), "42", nil, time.Now().Add(-time.Hour), time.Now())

	require.NoError(t, err)
	assert.Equal(t, 0.0, consumed.TotalConsumedKwh)
	assert.Nil(t, consumed.FirstRecord)
	assert.Nil(t, consumed.LastRecord)
}
