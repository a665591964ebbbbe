package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

var sampleTime = time.Unix(1715003456, 0)

func sample() *domain.LocationSample {
	return &domain.LocationSample{
		ID:         "loc-1",
		EntityID:   "B1234XYZ",
		Latitude:   -6.2088,
		Longitude:  106.8456,
		Speed:      12.5,
		Heading:    270,
		Accuracy:   5,
		CapturedAt: sampleTime,
	}
}

func TestInsertSample_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO location_samples`).
		WithArgs("loc-1", "B1234XYZ", -6.2088, 106.8456, 12.5, 270.0, 5.0, sampleTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewLocationRepo(db)
	inserted, err := repo.InsertSample(context.Background(), sample())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Error("expected inserted=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertSample_DuplicateIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO location_samples`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewLocationRepo(db)
	inserted, err := repo.InsertSample(context.Background(), sample())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Error("expected inserted=false for duplicate id")
	}
}

func TestInsertSample_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO location_samples`).
		WillReturnError(sqlmock.ErrCancelled)

	repo := NewLocationRepo(db)
	if _, err := repo.InsertSample(context.Background(), sample()); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetLatest_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"id", "entity_id", "latitude", "longitude", "speed", "heading", "accuracy", "captured_at"}).
		AddRow("loc-1", "B1234XYZ", -6.2088, 106.8456, 12.5, 270.0, 5.0, sampleTime)
	mock.ExpectQuery(`SELECT .+ FROM location_samples WHERE entity_id`).
		WithArgs("B1234XYZ").
		WillReturnRows(rows)

	repo := NewLocationRepo(db)
	s, err := repo.GetLatest(context.Background(), "B1234XYZ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "loc-1" || s.Latitude != -6.2088 {
		t.Errorf("unexpected sample: %+v", s)
	}
}

func TestGetLatest_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT .+ FROM location_samples WHERE entity_id`).
		WithArgs("UNKNOWN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_id", "latitude", "longitude", "speed", "heading", "accuracy", "captured_at"}))

	repo := NewLocationRepo(db)
	_, err = repo.GetLatest(context.Background(), "UNKNOWN")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetHistory_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	start := time.Unix(1715000000, 0)
	end := time.Unix(1715009999, 0)
	rows := sqlmock.NewRows([]string{"id", "entity_id", "latitude", "longitude", "speed", "heading", "accuracy", "captured_at"}).
		AddRow("loc-1", "B1234XYZ", -6.2, 106.8, 10.0, 90.0, 4.0, start).
		AddRow("loc-2", "B1234XYZ", -6.3, 106.9, 11.0, 95.0, 6.0, end)
	mock.ExpectQuery(`SELECT .+ FROM location_samples WHERE entity_id .+ captured_at`).
		WithArgs("B1234XYZ", start, end).
		WillReturnRows(rows)

	repo := NewLocationRepo(db)
	results, err := repo.GetHistory(context.Background(), &domain.HistoryQuery{
		EntityID: "B1234XYZ",
		Start:    start,
		End:      end,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestGetAllVehicles_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"entity_id"}).AddRow("A0001AAA").AddRow("B1234XYZ")
	mock.ExpectQuery(`SELECT DISTINCT entity_id FROM location_samples`).
		WillReturnRows(rows)

	repo := NewLocationRepo(db)
	vehicles, err := repo.GetAllVehicles(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(vehicles))
	}
}
