package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/redemption"
)

// AdminHandler serves the top-up/redemption/token/user CRUD surfaces that
// sit directly over the gateway database (spec.md §6.4, last bullet).
type AdminHandler struct {
	db *dbx.Manager
}

// NewAdminHandler constructs the admin CRUD handler.
func NewAdminHandler(db *dbx.Manager) *AdminHandler {
	return &AdminHandler{db: db}
}

// --- Top-ups ---

// topUpSuccessStatuses are the gateway's various "paid" status spellings
// (spec.md §3 top_ups.status).
var topUpSuccessStatuses = []string{"success", "completed", "1"}

// TopUpsList serves GET /top-ups.
func (h *AdminHandler) TopUpsList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	offset := (queryInt(r, "page", 1, 1, 0) - 1) * limit
	status := queryString(r, "status", "")

	query := `SELECT id, user_id, amount, money, trade_no, payment_method, create_time, complete_time, status FROM top_ups`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY create_time DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := h.db.Query(r.Context(), query, args...)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, rows)
}

// TopUpsStatistics serves GET /top-ups/statistics.
func (h *AdminHandler) TopUpsStatistics(w http.ResponseWriter, r *http.Request) {
	successPlaceholders := dbx.BuildPlaceholders(h.db.IsPG, len(topUpSuccessStatuses), 1)
	successArgs := make([]any, len(topUpSuccessStatuses))
	for i, s := range topUpSuccessStatuses {
		successArgs[i] = s
	}

	row, err := h.db.QueryOne(r.Context(), `
		SELECT COUNT(*) AS total_count,
			SUM(CASE WHEN status = 'REFUNDED' THEN 1 ELSE 0 END) AS refunded_count
		FROM top_ups`)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}

	totals, err := h.db.QueryOne(r.Context(), `
		SELECT COALESCE(SUM(amount), 0) AS total_amount, COALESCE(SUM(money), 0) AS total_money
		FROM top_ups WHERE status IN (`+successPlaceholders+`)`, successArgs...)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"total_count":    row["total_count"].Int64(),
		"refunded_count": row["refunded_count"].Int64(),
		"total_amount":   totals["total_amount"].Int64(),
		"total_money":    totals["total_money"].Float64(),
	})
}

// TopUpsRefund serves POST /top-ups/:id/refund, implementing the
// double-refund-proof transaction of spec.md §5.
func (h *AdminHandler) TopUpsRefund(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "id must be numeric")
		return
	}

	row, err := h.db.QueryOne(r.Context(), `SELECT user_id, amount, status FROM top_ups WHERE id = ?`, id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	if row == nil {
		WriteError(w, http.StatusNotFound, "not_found", "top-up not found")
		return
	}
	if row["status"].String() == "REFUNDED" {
		WriteMessage(w, http.StatusOK, "already refunded")
		return
	}

	userID := row["user_id"].Int64()
	amount := row["amount"].Int64()

	successPlaceholders := dbx.BuildPlaceholders(h.db.IsPG, len(topUpSuccessStatuses), 2)
	refundArgs := make([]any, 0, len(topUpSuccessStatuses)+1)
	refundArgs = append(refundArgs, id)
	for _, s := range topUpSuccessStatuses {
		refundArgs = append(refundArgs, s)
	}

	var refunded bool
	err = h.db.WithTx(r.Context(), func(tx *sql.Tx) error {
		res, err := tx.ExecContext(r.Context(), h.db.RebindQuery(`
			UPDATE top_ups SET status = 'REFUNDED' WHERE id = ? AND status IN (`+successPlaceholders+`)`), refundArgs...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		refunded = true

		var quota int64
		if scanErr := tx.QueryRowContext(r.Context(), h.db.RebindQuery(`SELECT quota FROM users WHERE id = ?`), userID).Scan(&quota); scanErr != nil {
			return scanErr
		}
		newQuota := quota - amount
		if newQuota < 0 {
			newQuota = 0
		}
		_, err = tx.ExecContext(r.Context(), h.db.RebindQuery(`UPDATE users SET quota = ? WHERE id = ?`), newQuota, userID)
		return err
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	if !refunded {
		WriteMessage(w, http.StatusOK, "already refunded")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"refunded": true, "amount": amount})
}

// TopUpsDelete serves DELETE /top-ups/:id.
func (h *AdminHandler) TopUpsDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "id must be numeric")
		return
	}
	if _, err := h.db.Execute(r.Context(), `DELETE FROM top_ups WHERE id = ?`, id); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "deleted")
}

// --- Redemptions ---

// RedemptionsList serves GET /redemptions.
func (h *AdminHandler) RedemptionsList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	offset := (queryInt(r, "page", 1, 1, 0) - 1) * limit
	rows, err := h.db.Query(r.Context(), `
		SELECT id, name, quota, status, created_time, expired_time FROM redemptions
		WHERE deleted_at IS NULL
		ORDER BY created_time DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, rows)
}

type generateRedemptionsRequest struct {
	Count  int    `json:"count"`
	Prefix string `json:"prefix"`
	Quota  int64  `json:"quota"`
	Name   string `json:"name"`
}

// RedemptionsGenerate serves POST /redemptions/generate (spec.md §6.5, S6).
func (h *AdminHandler) RedemptionsGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRedemptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Count <= 0 || req.Count > 1000 {
		WriteError(w, http.StatusBadRequest, "invalid_param", "count must be between 1 and 1000")
		return
	}

	existingRows, err := h.db.Query(r.Context(), `SELECT key FROM redemptions`)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	existing := make(map[string]bool, len(existingRows))
	for _, row := range existingRows {
		existing[row["key"].String()] = true
	}

	keys, err := redemption.GenerateBatch(req.Prefix, req.Count, existing)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "generation_failed", err.Error())
		return
	}

	now := nowUnix()
	for _, key := range keys {
		if _, err := h.db.Execute(r.Context(), `
			INSERT INTO redemptions (key, name, quota, status, created_time) VALUES (?, ?, ?, 1, ?)`,
			key, req.Name, req.Quota, now); err != nil {
			WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
			return
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"count": len(keys), "keys": keys})
}

// RedemptionsDelete serves DELETE /redemptions/:id.
func (h *AdminHandler) RedemptionsDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "id must be numeric")
		return
	}
	if _, err := h.db.Execute(r.Context(), `UPDATE redemptions SET deleted_at = ? WHERE id = ?`, nowUnix(), id); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "deleted")
}

// --- Tokens ---

// TokensList serves GET /tokens.
func (h *AdminHandler) TokensList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	offset := (queryInt(r, "page", 1, 1, 0) - 1) * limit
	userID := queryInt64(r, "user_id", 0)

	query := `SELECT id, user_id, name, status, created_time, accessed_time FROM tokens`
	args := []any{}
	if userID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := h.db.Query(r.Context(), query, args...)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, rows)
}

// TokensDelete serves DELETE /tokens/:id.
func (h *AdminHandler) TokensDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "id must be numeric")
		return
	}
	if _, err := h.db.Execute(r.Context(), `DELETE FROM tokens WHERE id = ?`, id); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "deleted")
}

// --- Users ---

// UsersList serves GET /users.
func (h *AdminHandler) UsersList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	offset := (queryInt(r, "page", 1, 1, 0) - 1) * limit
	keyword := strings.TrimSpace(queryString(r, "keyword", ""))

	query := `SELECT id, username, display_name, status, quota, role FROM users`
	args := []any{}
	if keyword != "" {
		query += ` WHERE username LIKE ?`
		args = append(args, "%"+keyword+"%")
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := h.db.Query(r.Context(), query, args...)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, rows)
}

// UsersBan serves POST /users/:id/ban.
func (h *AdminHandler) UsersBan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "id must be numeric")
		return
	}
	if _, err := h.db.Execute(r.Context(), `UPDATE users SET status = 2 WHERE id = ? AND status != 2`, id); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "banned")
}

// UsersUnban serves POST /users/:id/unban.
func (h *AdminHandler) UsersUnban(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "id must be numeric")
		return
	}
	if _, err := h.db.Execute(r.Context(), `UPDATE users SET status = 1 WHERE id = ? AND status = 2`, id); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "unbanned")
}

// UsersDelete serves DELETE /users/:id.
func (h *AdminHandler) UsersDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "id must be numeric")
		return
	}
	if _, err := h.db.Execute(r.Context(), `DELETE FROM users WHERE id = ?`, id); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "deleted")
}
