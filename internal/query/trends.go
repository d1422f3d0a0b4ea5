package query

import (
	"context"
	"time"
)

// TrendPoint is one bucket of a daily/hourly trend series.
type TrendPoint struct {
	Bucket    int64 `json:"bucket"`
	Timestamp int64 `json:"timestamp"`
	Requests  int64 `json:"requests"`
	Quota     int64 `json:"quota"`
}

const (
	daySeconds  = int64(86400)
	hourSeconds = int64(3600)
)

// DailyTrends computes a zero-filled daily series over the last `days` days.
// When a quota_data table is present it is used as the fast path.
func (e *Engine) DailyTrends(ctx context.Context, days int, noCache bool) ([]TrendPoint, error) {
	key := cacheKey("daily_trends", days)
	return getCached(ctx, e, key, 5*time.Minute, noCache, func(ctx context.Context) ([]TrendPoint, error) {
		return e.bucketedTrend(ctx, int64(days)*daySeconds, daySeconds, e.hasQuotaData)
	})
}

// HourlyTrends computes a zero-filled hourly series over the last `hours` hours.
func (e *Engine) HourlyTrends(ctx context.Context, hours int, noCache bool) ([]TrendPoint, error) {
	key := cacheKey("hourly_trends", hours)
	return getCached(ctx, e, key, 2*time.Minute, noCache, func(ctx context.Context) ([]TrendPoint, error) {
		return e.bucketedTrend(ctx, int64(hours)*hourSeconds, hourSeconds, false)
	})
}

// bucketedTrend computes grouping buckets in local time using pure unix
// arithmetic so the SQL expression is identical across dialects, then
// fills any bucket the query didn't return with a zero row.
func (e *Engine) bucketedTrend(ctx context.Context, span, bucketSeconds int64, preferQuotaData bool) ([]TrendPoint, error) {
	now := time.Now().Unix()
	offset := e.tzOffsetSeconds()

	numBuckets := span / bucketSeconds
	endBucket := (now + offset) / bucketSeconds
	startBucket := endBucket - numBuckets + 1
	start := startBucket*bucketSeconds - offset

	table := "logs"
	quotaCol := "quota"
	timeCol := "created_at"
	extraWhere := " AND type = 2"
	if preferQuotaData {
		exists, err := e.db.TableExists(ctx, "quota_data")
		if err == nil && exists {
			table = "quota_data"
			extraWhere = ""
		}
	}

	query := `
		SELECT FLOOR((` + timeCol + ` + ?) / ?) AS bucket,
			COUNT(*) AS requests,
			COALESCE(SUM(` + quotaCol + `), 0) AS quota
		FROM ` + table + `
		WHERE ` + timeCol + ` >= ? AND ` + timeCol + ` <= ?` + extraWhere + `
		GROUP BY bucket
		ORDER BY bucket`

	rows, err := e.db.Query(ctx, query, offset, bucketSeconds, start, now)
	if err != nil {
		return nil, err
	}

	byBucket := make(map[int64]TrendPoint, len(rows))
	for _, row := range rows {
		b := row["bucket"].Int64()
		byBucket[b] = TrendPoint{
			Bucket:   b,
			Requests: row["requests"].Int64(),
			Quota:    row["quota"].Int64(),
		}
	}

	out := make([]TrendPoint, 0, numBuckets)
	for b := startBucket; b <= endBucket; b++ {
		if pt, ok := byBucket[b]; ok {
			pt.Timestamp = b*bucketSeconds - offset
			out = append(out, pt)
			continue
		}
		out = append(out, TrendPoint{Bucket: b, Timestamp: b*bucketSeconds - offset})
	}
	return out, nil
}
