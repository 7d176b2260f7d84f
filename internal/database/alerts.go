package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"telegram-stock-alert/internal/types"
)

const alertColumns = `id, user_id, alert_type, ticker, period, target_price, direction, date1, price1, date2, price2, threshold, created_at`

// InsertAlert saves an alert and returns its auto-assigned id.
func InsertAlert(a *types.Alert) (int64, error) {
	query := `
	INSERT INTO alerts (user_id, alert_type, ticker, period, target_price, direction, date1, price1, date2, price2, threshold)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	var (
		period      sql.NullInt64
		targetPrice sql.NullFloat64
		direction   sql.NullString
		date1       sql.NullString
		price1      sql.NullFloat64
		date2       sql.NullString
		price2      sql.NullFloat64
		threshold   sql.NullFloat64
	)

	switch spec := a.Spec.(type) {
	case types.PriceSpec:
		targetPrice = sql.NullFloat64{Float64: spec.Target, Valid: true}
		direction = sql.NullString{String: string(spec.Direction), Valid: true}
	case types.SMASpec:
		period = sql.NullInt64{Int64: int64(spec.Period), Valid: true}
		direction = sql.NullString{String: string(spec.Direction), Valid: true}
	case types.CustomLineSpec:
		date1 = sql.NullString{String: spec.Date1.Format("2006-01-02"), Valid: true}
		price1 = sql.NullFloat64{Float64: spec.Price1, Valid: true}
		date2 = sql.NullString{String: spec.Date2.Format("2006-01-02"), Valid: true}
		price2 = sql.NullFloat64{Float64: spec.Price2, Valid: true}
		threshold = sql.NullFloat64{Float64: spec.Threshold, Valid: true}
	default:
		return 0, fmt.Errorf("unknown alert spec %T", a.Spec)
	}

	res, err := DB.Exec(query, a.UserID, string(a.Spec.Kind()), a.Ticker,
		period, targetPrice, direction, date1, price1, date2, price2, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read alert id: %w", err)
	}

	log.Printf("Alert inserted successfully: ID: %d, UserID: %d, Ticker: %s, Type: %s", id, a.UserID, a.Ticker, a.Spec.Kind())
	return id, nil
}

// LoadAlerts fetches every alert, grouped by owning user. Used to hydrate the
// in-memory mirror at startup and on the scheduled reload.
func LoadAlerts() (map[int64][]types.Alert, error) {
	rows, err := DB.Query(`SELECT ` + alertColumns + ` FROM alerts;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make(map[int64][]types.Alert)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts[alert.UserID] = append(alerts[alert.UserID], alert)
	}

	return alerts, rows.Err()
}

// GetAlertsByUserID fetches all alerts owned by a single user.
func GetAlertsByUserID(userID int64) ([]types.Alert, error) {
	rows, err := DB.Query(`SELECT `+alertColumns+` FROM alerts WHERE user_id = ?;`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for user %d: %w", userID, err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// DeleteAlert removes an alert by id.
func DeleteAlert(alertID int64) error {
	_, err := DB.Exec(`DELETE FROM alerts WHERE id = ?;`, alertID)
	if err != nil {
		return fmt.Errorf("failed to delete alert %d: %w", alertID, err)
	}
	return nil
}

func scanAlert(rows *sql.Rows) (types.Alert, error) {
	var (
		alert       types.Alert
		alertType   string
		period      sql.NullInt64
		targetPrice sql.NullFloat64
		direction   sql.NullString
		date1       sql.NullString
		price1      sql.NullFloat64
		date2       sql.NullString
		price2      sql.NullFloat64
		threshold   sql.NullFloat64
		createdAt   sql.NullString
	)

	if err := rows.Scan(&alert.ID, &alert.UserID, &alertType, &alert.Ticker,
		&period, &targetPrice, &direction, &date1, &price1, &date2, &price2, &threshold, &createdAt); err != nil {
		return types.Alert{}, fmt.Errorf("failed to scan alert row: %w", err)
	}

	switch types.Kind(alertType) {
	case types.KindPrice:
		alert.Spec = types.PriceSpec{
			Target:    targetPrice.Float64,
			Direction: types.Direction(direction.String),
		}
	case types.KindSMA:
		alert.Spec = types.SMASpec{
			Period:    int(period.Int64),
			Direction: types.Direction(direction.String),
		}
	case types.KindCustomLine:
		spec := types.CustomLineSpec{
			Price1:    price1.Float64,
			Price2:    price2.Float64,
			Threshold: threshold.Float64,
		}
		spec.Date1, _ = time.Parse("2006-01-02", date1.String)
		spec.Date2, _ = time.Parse("2006-01-02", date2.String)
		alert.Spec = spec
	default:
		return types.Alert{}, fmt.Errorf("unknown alert type %q for alert %d", alertType, alert.ID)
	}

	if createdAt.Valid {
		if t, err := time.Parse("2006-01-02 15:04:05", createdAt.String); err == nil {
			alert.CreatedAt = t
		}
	}

	return alert, nil
}

// SQLStore adapts the package-level queries to the small store interfaces the
// evaluator and the authoring conversation accept.
type SQLStore struct{}

func (SQLStore) InsertAlert(a *types.Alert) (int64, error) { return InsertAlert(a) }

func (SQLStore) DeleteAlert(id int64) error { return DeleteAlert(id) }
