package query

import (
	"context"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

// SharedIP is one IP address used by several distinct tokens.
type SharedIP struct {
	IP         string  `json:"ip"`
	TokenCount int64   `json:"token_count"`
	Tokens     []int64 `json:"tokens"`
}

// SharedIPs finds IPs used by at least minTokens distinct tokens in window,
// truncating the detail list to 20 tokens per IP (spec.md §4.3.11).
func (e *Engine) SharedIPs(ctx context.Context, window string, minTokens int, limit int, noCache bool) ([]SharedIP, error) {
	dur, err := ResolveWindow(window)
	if err != nil {
		return nil, err
	}
	key := cacheKey("shared_ips", window, minTokens, limit)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) ([]SharedIP, error) {
		start := time.Now().Add(-dur).Unix()
		candidates, err := e.db.Query(ctx, `
			SELECT ip, COUNT(DISTINCT token_id) AS token_count
			FROM logs WHERE created_at >= ? AND ip != ''
			GROUP BY ip
			HAVING COUNT(DISTINCT token_id) >= ?
			ORDER BY token_count DESC
			LIMIT ?`, start, minTokens, limit)
		if err != nil {
			return nil, err
		}

		ips := make([]string, 0, len(candidates))
		counts := make(map[string]int64, len(candidates))
		for _, row := range candidates {
			ip := row["ip"].String()
			ips = append(ips, ip)
			counts[ip] = row["token_count"].Int64()
		}
		if len(ips) == 0 {
			return nil, nil
		}

		args := make([]any, 0, len(ips)+1)
		args = append(args, start)
		for _, ip := range ips {
			args = append(args, ip)
		}
		placeholders := dbx.BuildPlaceholders(e.isPG(), len(ips), 2)
		detailRows, err := e.db.Query(ctx, `
			SELECT ip, token_id FROM logs
			WHERE created_at >= ? AND ip IN (`+placeholders+`)
			GROUP BY ip, token_id`, args...)
		if err != nil {
			return nil, err
		}

		tokensByIP := make(map[string][]int64)
		for _, row := range detailRows {
			ip := row["ip"].String()
			if len(tokensByIP[ip]) >= 20 {
				continue
			}
			tokensByIP[ip] = append(tokensByIP[ip], row["token_id"].Int64())
		}

		out := make([]SharedIP, 0, len(ips))
		for _, ip := range ips {
			out = append(out, SharedIP{IP: ip, TokenCount: counts[ip], Tokens: tokensByIP[ip]})
		}
		return out, nil
	})
}

// MultiIPToken is a token seen from several distinct IPs.
type MultiIPToken struct {
	TokenID int64    `json:"token_id"`
	IPCount int64    `json:"ip_count"`
	IPs     []string `json:"ips"`
}

// MultiIPTokens finds tokens seen from at least minIPs distinct IPs.
func (e *Engine) MultiIPTokens(ctx context.Context, window string, minIPs int, limit int, noCache bool) ([]MultiIPToken, error) {
	dur, err := ResolveWindow(window)
	if err != nil {
		return nil, err
	}
	key := cacheKey("multi_ip_tokens", window, minIPs, limit)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) ([]MultiIPToken, error) {
		start := time.Now().Add(-dur).Unix()
		candidates, err := e.db.Query(ctx, `
			SELECT token_id, COUNT(DISTINCT ip) AS ip_count
			FROM logs WHERE created_at >= ? AND token_id != 0
			GROUP BY token_id
			HAVING COUNT(DISTINCT ip) >= ?
			ORDER BY ip_count DESC
			LIMIT ?`, start, minIPs, limit)
		if err != nil {
			return nil, err
		}

		tokenIDs := make([]int64, 0, len(candidates))
		counts := make(map[int64]int64, len(candidates))
		for _, row := range candidates {
			id := row["token_id"].Int64()
			tokenIDs = append(tokenIDs, id)
			counts[id] = row["ip_count"].Int64()
		}
		if len(tokenIDs) == 0 {
			return nil, nil
		}

		args := make([]any, 0, len(tokenIDs)+1)
		args = append(args, start)
		for _, id := range tokenIDs {
			args = append(args, id)
		}
		placeholders := dbx.BuildPlaceholders(e.isPG(), len(tokenIDs), 2)
		detailRows, err := e.db.Query(ctx, `
			SELECT token_id, ip FROM logs
			WHERE created_at >= ? AND token_id IN (`+placeholders+`)
			GROUP BY token_id, ip`, args...)
		if err != nil {
			return nil, err
		}

		ipsByToken := make(map[int64][]string)
		for _, row := range detailRows {
			id := row["token_id"].Int64()
			if len(ipsByToken[id]) >= 20 {
				continue
			}
			ipsByToken[id] = append(ipsByToken[id], row["ip"].String())
		}

		out := make([]MultiIPToken, 0, len(tokenIDs))
		for _, id := range tokenIDs {
			out = append(out, MultiIPToken{TokenID: id, IPCount: counts[id], IPs: ipsByToken[id]})
		}
		return out, nil
	})
}

// MultiIPUser is a user seen from several distinct IPs.
type MultiIPUser struct {
	UserID  int64    `json:"user_id"`
	IPCount int64    `json:"ip_count"`
	IPs     []string `json:"ips"`
}

// MultiIPUsers finds users seen from at least minIPs distinct IPs.
func (e *Engine) MultiIPUsers(ctx context.Context, window string, minIPs int, limit int, noCache bool) ([]MultiIPUser, error) {
	dur, err := ResolveWindow(window)
	if err != nil {
		return nil, err
	}
	key := cacheKey("multi_ip_users", window, minIPs, limit)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) ([]MultiIPUser, error) {
		start := time.Now().Add(-dur).Unix()
		candidates, err := e.db.Query(ctx, `
			SELECT user_id, COUNT(DISTINCT ip) AS ip_count
			FROM logs WHERE created_at >= ?
			GROUP BY user_id
			HAVING COUNT(DISTINCT ip) >= ?
			ORDER BY ip_count DESC
			LIMIT ?`, start, minIPs, limit)
		if err != nil {
			return nil, err
		}

		userIDs := make([]int64, 0, len(candidates))
		counts := make(map[int64]int64, len(candidates))
		for _, row := range candidates {
			id := row["user_id"].Int64()
			userIDs = append(userIDs, id)
			counts[id] = row["ip_count"].Int64()
		}
		if len(userIDs) == 0 {
			return nil, nil
		}

		args := make([]any, 0, len(userIDs)+1)
		args = append(args, start)
		for _, id := range userIDs {
			args = append(args, id)
		}
		placeholders := dbx.BuildPlaceholders(e.isPG(), len(userIDs), 2)
		detailRows, err := e.db.Query(ctx, `
			SELECT user_id, ip FROM logs
			WHERE created_at >= ? AND user_id IN (`+placeholders+`)
			GROUP BY user_id, ip`, args...)
		if err != nil {
			return nil, err
		}

		ipsByUser := make(map[int64][]string)
		for _, row := range detailRows {
			id := row["user_id"].Int64()
			if len(ipsByUser[id]) >= 10 {
				continue
			}
			ipsByUser[id] = append(ipsByUser[id], row["ip"].String())
		}

		out := make([]MultiIPUser, 0, len(userIDs))
		for _, id := range userIDs {
			out = append(out, MultiIPUser{UserID: id, IPCount: counts[id], IPs: ipsByUser[id]})
		}
		return out, nil
	})
}

func (e *Engine) isPG() bool { return e.db.IsPG }
