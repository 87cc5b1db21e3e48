package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/hszk-dev/vidproxy/internal/domain/model"
)

func TestEventRepository_Insert(t *testing.T) {
	event := model.PlaybackEvent{
		ID:         uuid.New(),
		VideoID:    "abc123xyz",
		Kind:       model.EventSegmentServed,
		Itag:       137,
		ClientIP:   "192.0.2.1",
		UserAgent:  "curl/8",
		RetryCount: 0,
		OccurredAt: time.Now(),
	}

	tests := []struct {
		name    string
		mockFn  func(mock pgxmock.PgxPoolIface)
		wantErr bool
	}{
		{
			name: "successful insert",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO playback_events").
					WithArgs(
						event.ID, event.VideoID, event.Kind, event.Itag,
						event.ClientIP, event.UserAgent, event.RetryCount, event.OccurredAt,
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			wantErr: false,
		},
		{
			name: "database error",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO playback_events").
					WithArgs(
						event.ID, event.VideoID, event.Kind, event.Itag,
						event.ClientIP, event.UserAgent, event.RetryCount, event.OccurredAt,
					).
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create pgxmock pool: %v", err)
			}
			defer mock.Close()

			tt.mockFn(mock)

			repo := NewEventRepository(mock)
			err = repo.Insert(context.Background(), event)

			if (err != nil) != tt.wantErr {
				t.Errorf("Insert() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestEventRepository_CountByVideo(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"count"}).AddRow(int64(3))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM playback_events").
		WithArgs("abc123xyz", model.EventSegmentServed).
		WillReturnRows(rows)

	repo := NewEventRepository(mock)
	count, err := repo.CountByVideo(context.Background(), "abc123xyz", model.EventSegmentServed)
	if err != nil {
		t.Fatalf("CountByVideo: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
