package query

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/geoip"
)

// TopUser is one row of the top-users ranking (spec.md §4.3.5).
type TopUser struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	RequestCount int64  `json:"request_count"`
	QuotaUsed    int64  `json:"quota_used"`
}

// TopUsers aggregates requests/quota in a subquery first, then joins
// usernames outside the GROUP BY so the join never sees the full scan.
func (e *Engine) TopUsers(ctx context.Context, period string, limit int, noCache bool) ([]TopUser, error) {
	dur, err := ResolveWindow(period)
	if err != nil {
		return nil, err
	}
	key := cacheKey("top_users", period, limit)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) ([]TopUser, error) {
		start := time.Now().Add(-dur).Unix()
		rows, err := e.db.Query(ctx, `
			SELECT agg.user_id AS user_id, agg.request_count AS request_count, agg.quota_used AS quota_used,
				u.username AS username
			FROM (
				SELECT user_id, COUNT(*) AS request_count, COALESCE(SUM(quota), 0) AS quota_used
				FROM logs WHERE created_at >= ?
				GROUP BY user_id
				ORDER BY quota_used DESC
				LIMIT ?
			) agg
			LEFT JOIN users u ON u.id = agg.user_id
			ORDER BY agg.quota_used DESC`, start, limit)
		if err != nil {
			return nil, err
		}
		out := make([]TopUser, 0, len(rows))
		for _, row := range rows {
			username := row["username"].String()
			userID := row["user_id"].Int64()
			if username == "" {
				username = strconv.FormatInt(userID, 10)
			}
			out = append(out, TopUser{
				UserID:       userID,
				Username:     username,
				RequestCount: row["request_count"].Int64(),
				QuotaUsed:    row["quota_used"].Int64(),
			})
		}
		return out, nil
	})
}

// ChannelSummary is one row of the channel listing.
type ChannelSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status int64  `json:"status"`
}

// Channels lists all gateway channels.
func (e *Engine) Channels(ctx context.Context, noCache bool) ([]ChannelSummary, error) {
	key := cacheKey("channels")
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) ([]ChannelSummary, error) {
		rows, err := e.db.Query(ctx, `SELECT id, name, status FROM channels ORDER BY id`)
		if err != nil {
			return nil, err
		}
		out := make([]ChannelSummary, 0, len(rows))
		for _, row := range rows {
			out = append(out, ChannelSummary{
				ID:     row["id"].Int64(),
				Name:   row["name"].String(),
				Status: row["status"].Int64(),
			})
		}
		return out, nil
	})
}

// domesticCountryCodes is the hard-coded "domestic" set for the
// overseas/domestic split (spec.md §4.3.6).
var domesticCountryCodes = map[string]bool{"CN": true}

// IPCount is one entry of a by-dimension IP/requests breakdown.
type IPCount struct {
	Key      string `json:"key"`
	Requests int64  `json:"requests"`
}

// IPDistribution is the full output of spec.md §4.3.6.
type IPDistribution struct {
	ByCountry         []IPCount `json:"by_country"`
	ByProvince        []IPCount `json:"by_province"`
	ByCity            []IPCount `json:"by_city"`
	DomesticPercent   float64   `json:"domestic_percent"`
	OverseasPercent   float64   `json:"overseas_percent"`
	SnapshotTimestamp int64     `json:"snapshot_timestamp"`
}

const topIPsForDistribution = 3000

// IPDistribution aggregates request counts by IP (top N), resolves them in
// a batch GeoIP lookup, then re-aggregates by country/province/city.
func (e *Engine) IPDistribution(ctx context.Context, window string, noCache bool) (*IPDistribution, error) {
	dur, err := ResolveWindow(window)
	if err != nil {
		return nil, err
	}
	key := cacheKey("ip_distribution", window)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) (*IPDistribution, error) {
		start := time.Now().Add(-dur).Unix()
		rows, err := e.db.Query(ctx, `
			SELECT ip, COUNT(*) AS requests FROM logs
			WHERE created_at >= ? AND ip != ''
			GROUP BY ip
			ORDER BY requests DESC
			LIMIT ?`, start, topIPsForDistribution)
		if err != nil {
			return nil, err
		}

		ips := make([]string, 0, len(rows))
		reqByIP := make(map[string]int64, len(rows))
		for _, row := range rows {
			ip := row["ip"].String()
			ips = append(ips, ip)
			reqByIP[ip] = row["requests"].Int64()
		}

		records := e.geo.LookupBatch(ips)

		byCountry := make(map[string]int64)
		byProvince := make(map[string]int64)
		byCity := make(map[string]int64)
		var domestic, overseas int64

		for _, ip := range ips {
			n := reqByIP[ip]
			rec, ok := records[ip]
			country := "unknown"
			if ok {
				country = rec.CountryCode
				if rec.City != "" {
					byCity[rec.City] += n
				}
				if country == "CN" {
					byProvince[cityOrUnknown(rec)] += n
				}
			}
			byCountry[country] += n
			if domesticCountryCodes[country] {
				domestic += n
			} else {
				overseas += n
			}
		}

		total := domestic + overseas
		dist := &IPDistribution{
			ByCountry:         sortedCounts(byCountry),
			ByProvince:        sortedCounts(byProvince),
			ByCity:            sortedCounts(byCity),
			SnapshotTimestamp: time.Now().Unix(),
		}
		if total > 0 {
			dist.DomesticPercent = float64(domestic) / float64(total) * 100
			dist.OverseasPercent = float64(overseas) / float64(total) * 100
		}
		return dist, nil
	})
}

func cityOrUnknown(rec geoip.Record) string {
	if rec.City == "" {
		return "unknown"
	}
	return rec.City
}

func sortedCounts(m map[string]int64) []IPCount {
	out := make([]IPCount, 0, len(m))
	for k, v := range m {
		out = append(out, IPCount{Key: k, Requests: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Requests > out[j].Requests })
	return out
}
