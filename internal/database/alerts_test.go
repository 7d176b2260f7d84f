package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"telegram-stock-alert/internal/types"
)

func newMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}

	old := DB
	DB = db
	t.Cleanup(func() {
		DB = old
		db.Close()
	})
	return mock
}

func alertRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "alert_type", "ticker", "period", "target_price",
		"direction", "date1", "price1", "date2", "price2", "threshold", "created_at",
	})
}

func TestInsertAlert_Price(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(int64(10), "price", "AAPL", nil, 150.0, "above", nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := InsertAlert(&types.Alert{
		UserID: 10,
		Ticker: "AAPL",
		Spec:   types.PriceSpec{Target: 150, Direction: types.Above},
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if id != 7 {
		t.Fatalf("id = %d, want 7", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertAlert_CustomLine(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(int64(10), "custom_line", "TSLA", nil, nil, nil,
			"2025-06-02", 100.0, "2025-06-09", 110.0, 0.5).
		WillReturnResult(sqlmock.NewResult(8, 1))

	_, err := InsertAlert(&types.Alert{
		UserID: 10,
		Ticker: "TSLA",
		Spec: types.CustomLineSpec{
			Date1:     time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
			Price1:    100,
			Date2:     time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
			Price2:    110,
			Threshold: 0.5,
		},
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAlerts_GroupsByUserAndRebuildsSpecs(t *testing.T) {
	mock := newMockDB(t)

	rows := alertRows().
		AddRow(1, 10, "price", "AAPL", nil, 150.0, "above", nil, nil, nil, nil, nil, "2025-06-01 10:00:00").
		AddRow(2, 10, "sma", "MSFT", 20, nil, "below", nil, nil, nil, nil, nil, "2025-06-01 11:00:00").
		AddRow(3, 20, "custom_line", "TSLA", nil, nil, nil, "2025-06-02", 100.0, "2025-06-09", 110.0, 0.5, "2025-06-02 09:00:00")

	mock.ExpectQuery("SELECT (.+) FROM alerts").WillReturnRows(rows)

	alerts, err := LoadAlerts()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(alerts[10]) != 2 || len(alerts[20]) != 1 {
		t.Fatalf("unexpected grouping: %v", alerts)
	}

	price, ok := alerts[10][0].Spec.(types.PriceSpec)
	if !ok || price.Target != 150 || price.Direction != types.Above {
		t.Fatalf("price spec not rebuilt: %+v", alerts[10][0].Spec)
	}

	sma, ok := alerts[10][1].Spec.(types.SMASpec)
	if !ok || sma.Period != 20 || sma.Direction != types.Below {
		t.Fatalf("sma spec not rebuilt: %+v", alerts[10][1].Spec)
	}

	line, ok := alerts[20][0].Spec.(types.CustomLineSpec)
	if !ok {
		t.Fatalf("custom line spec not rebuilt: %+v", alerts[20][0].Spec)
	}
	if line.Date1.Format("2006-01-02") != "2025-06-02" || line.Price2 != 110 || line.Threshold != 0.5 {
		t.Fatalf("custom line fields wrong: %+v", line)
	}

	if alerts[10][0].CreatedAt.IsZero() {
		t.Fatal("created_at was not parsed")
	}
}

func TestLoadAlerts_UnknownTypeFails(t *testing.T) {
	mock := newMockDB(t)

	rows := alertRows().
		AddRow(1, 10, "percent", "AAPL", nil, 150.0, "above", nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery("SELECT (.+) FROM alerts").WillReturnRows(rows)

	if _, err := LoadAlerts(); err == nil {
		t.Fatal("expected an error for an unknown alert type")
	}
}

func TestGetAlertsByUserID(t *testing.T) {
	mock := newMockDB(t)

	rows := alertRows().
		AddRow(1, 10, "price", "AAPL", nil, 150.0, "above", nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE user_id").
		WithArgs(int64(10)).
		WillReturnRows(rows)

	alerts, err := GetAlertsByUserID(10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Ticker != "AAPL" {
		t.Fatalf("unexpected alerts: %v", alerts)
	}
}

func TestDeleteAlert(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec("DELETE FROM alerts WHERE id").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := DeleteAlert(3); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
