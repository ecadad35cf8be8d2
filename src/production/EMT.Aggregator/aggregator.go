package emtaggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

// ErrUnknownGranularity is returned for a granularity outside
// hourly/daily/weekly/monthly. Callers must surface it, not default.
var ErrUnknownGranularity = errors.New("unknown granularity")

const (
	Hourly  = "hourly"
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"
)

// BucketKey is the calendar tuple identifying a bucket. Only the components
// implied by the requested granularity are set.
type BucketKey struct {
	Year  int  `json:"year"`
	Month *int `json:"month,omitempty"`
	Week  *int `json:"week,omitempty"`
	Day   *int `json:"day,omitempty"`
	Hour  *int `json:"hour,omitempty"`
}

// Bucket is one calendar-aligned aggregation interval. Sums are nil only for
// gap-filled timeline slots with zero samples.
type Bucket struct {
	Key           BucketKey `json:"_id"`
	FirstDatetime time.Time `json:"firstDatetime"`
	TotalKwhPerN  *float64  `json:"totalKwhPerN"`
	TotalKwhPerN2 *float64  `json:"totalKwhPerN2"`
	TotalKwhPerN3 *float64  `json:"totalKwhPerN3"`
	Count         int       `json:"count"`
}

// slotKey is the comparable form of a bucket key; components not implied by
// the granularity are -1.
type slotKey struct {
	year, month, week, day, hour int
}

// Aggregator reconstructs calendar-aligned summaries from the persisted
// reading stream. It reads from the store only; nothing here mutates state.
type Aggregator struct {
	repo interfaces.ReadingRepository
	log  *logger.Logger
}

func New(repo interfaces.ReadingRepository, log *logger.Logger) *Aggregator {
	return &Aggregator{repo: repo, log: log.WithComponent("aggregator")}
}

// Group buckets a device's readings between start and end (local time) at the
// requested granularity. Buckets come back ascending and only for slots that
// have data. An empty interval (start after end) yields an empty result.
func (a *Aggregator) Group(ctx context.Context, deviceId int, start, end time.Time, granularity string) ([]Bucket, error) {
	switch granularity {
	case Hourly, Daily, Weekly, Monthly:
	default:
		return nil, fmt.Errorf("%w: %q (allowed: hourly, daily, weekly, monthly)", ErrUnknownGranularity, granularity)
	}

	if start.After(end) {
		return []Bucket{}, nil
	}

	readings, err := a.repo.FindRange(ctx, interfaces.RangeQuery{
		DeviceId:  &deviceId,
		Start:     start,
		End:       end,
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("query readings for grouping: %w", err)
	}

	groups := make(map[slotKey]*Bucket)
	keys := make([]slotKey, 0)
	for _, rd := range readings {
		// The stored local timestamp already carries the configured offset;
		// calendar parts come straight off it.
		local := rd.DeviceTimeStampDateLocal
		key := keyFor(local, granularity)

		b, ok := groups[key]
		if !ok {
			b = &Bucket{
				Key:           key.exported(),
				FirstDatetime: local,
				TotalKwhPerN:  newFloat(0),
				TotalKwhPerN2: newFloat(0),
				TotalKwhPerN3: newFloat(0),
			}
			groups[key] = b
			keys = append(keys, key)
		}
		if local.Before(b.FirstDatetime) {
			b.FirstDatetime = local
		}
		*b.TotalKwhPerN += rd.KwhPerN
		*b.TotalKwhPerN2 += rd.KwhPerN2
		*b.TotalKwhPerN3 += rd.KwhPerN3
		b.Count++
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	buckets := make([]Bucket, 0, len(keys))
	for _, key := range keys {
		buckets = append(buckets, *groups[key])
	}
	return buckets, nil
}

// HourlyTimeline returns one bucket for every hour slot between start and end
// inclusive, in ascending order, left-joining the grouped data onto the
// slots. Slots with no readings have count 0 and nil sums, so the sequence
// stays contiguous across data outages.
func (a *Aggregator) HourlyTimeline(ctx context.Context, deviceId int, start, end time.Time) ([]Bucket, error) {
	if start.After(end) {
		return []Bucket{}, nil
	}

	grouped, err := a.Group(ctx, deviceId, start, end, Hourly)
	if err != nil {
		return nil, err
	}

	byKey := make(map[slotKey]Bucket, len(grouped))
	for _, b := range grouped {
		byKey[b.Key.slot()] = b
	}

	var timeline []Bucket
	for slot := start; !slot.After(end); slot = slot.Add(time.Hour) {
		key := keyFor(slot, Hourly)
		if b, ok := byKey[key]; ok {
			timeline = append(timeline, b)
			continue
		}
		timeline = append(timeline, Bucket{
			Key:           key.exported(),
			FirstDatetime: slot,
			Count:         0,
		})
	}
	return timeline, nil
}

func keyFor(t time.Time, granularity string) slotKey {
	year, month, day := t.Date()
	switch granularity {
	case Hourly:
		return slotKey{year: year, month: int(month), week: -1, day: day, hour: t.Hour()}
	case Daily:
		return slotKey{year: year, month: int(month), week: -1, day: day, hour: -1}
	case Weekly:
		// ISO weeks straddle calendar years; the key must carry the ISO year
		// or late-December readings file under the wrong year and sort ahead
		// of the weeks they follow.
		isoYear, week := t.ISOWeek()
		return slotKey{year: isoYear, month: -1, week: week, day: -1, hour: -1}
	default: // monthly
		return slotKey{year: year, month: int(month), week: -1, day: -1, hour: -1}
	}
}

func (k slotKey) less(o slotKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	if k.month != o.month {
		return k.month < o.month
	}
	if k.week != o.week {
		return k.week < o.week
	}
	if k.day != o.day {
		return k.day < o.day
	}
	return k.hour < o.hour
}

func (k slotKey) exported() BucketKey {
	key := BucketKey{Year: k.year}
	if k.month >= 0 {
		key.Month = newInt(k.month)
	}
	if k.week >= 0 {
		key.Week = newInt(k.week)
	}
	if k.day >= 0 {
		key.Day = newInt(k.day)
	}
	if k.hour >= 0 {
		key.Hour = newInt(k.hour)
	}
	return key
}

func (k BucketKey) slot() slotKey {
	s := slotKey{year: k.Year, month: -1, week: -1, day: -1, hour: -1}
	if k.Month != nil {
		s.month = *k.Month
	}
	if k.Week != nil {
		s.week = *k.Week
	}
	if k.Day != nil {
		s.day = *k.Day
	}
	if k.Hour != nil {
		s.hour = *k.Hour
	}
	return s
}

func newInt(v int) *int           { return &v }
func newFloat(v float64) *float64 { return &v }
