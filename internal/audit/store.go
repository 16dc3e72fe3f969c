package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"sor/pkg/conn"
)

// eventRecord is the order_events row.
type eventRecord struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Timestamp      time.Time        `gorm:"index"`
	OrderID        uint64           `gorm:"index"`
	Instrument     string           `gorm:"size:64;index"`
	Type           string           `gorm:"size:16"`
	Quantity       decimal.Decimal  `gorm:"type:numeric"`
	Price          decimal.Decimal  `gorm:"type:numeric"`
	Status         string           `gorm:"size:32"`
	Reason         string           `gorm:"size:64"`
	Violation      bool
	FilledQuantity decimal.Decimal  `gorm:"type:numeric"`
	ExecutionPrice *decimal.Decimal `gorm:"type:numeric"`
	Venue          string           `gorm:"size:64"`
}

func (eventRecord) TableName() string {
	return "order_events"
}

func newEventRecord(e Event) eventRecord {
	return eventRecord{
		ID:             e.ID,
		Timestamp:      e.Timestamp,
		OrderID:        e.OrderID,
		Instrument:     e.Instrument,
		Type:           e.Type,
		Quantity:       e.Quantity,
		Price:          e.Price,
		Status:         e.Status,
		Reason:         e.Reason,
		Violation:      e.Violation,
		FilledQuantity: e.FilledQuantity,
		ExecutionPrice: e.ExecutionPrice,
		Venue:          e.Venue,
	}
}

func (r eventRecord) event() Event {
	return Event{
		ID:             r.ID,
		Timestamp:      r.Timestamp,
		OrderID:        r.OrderID,
		Instrument:     r.Instrument,
		Type:           r.Type,
		Quantity:       r.Quantity,
		Price:          r.Price,
		Status:         r.Status,
		Reason:         r.Reason,
		Violation:      r.Violation,
		FilledQuantity: r.FilledQuantity,
		ExecutionPrice: r.ExecutionPrice,
		Venue:          r.Venue,
	}
}

// Store persists events in postgres.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the order_events table on the client's database.
func NewStore(ctx context.Context, client *conn.Client) (*Store, error) {
	db := client.DB()
	if db == nil {
		return nil, errors.New("postgres client not initialized")
	}
	if err := db.WithContext(ctx).AutoMigrate(&eventRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate order_events")
	}
	return &Store{db: db}, nil
}

// Write implements Sink.
func (s *Store) Write(ctx context.Context, e Event) error {
	record := newEventRecord(e)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return errors.Wrap(err, "insert order event").With("order", e.OrderID)
	}
	return nil
}

// Events returns the stored events of one order, oldest first.
func (s *Store) Events(ctx context.Context, orderID uint64) ([]Event, error) {
	var records []eventRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("timestamp ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "query order events").With("order", orderID)
	}
	events := make([]Event, 0, len(records))
	for _, r := range records {
		events = append(events, r.event())
	}
	return events, nil
}

// Violations counts stored risk violations since the given time.
func (s *Store) Violations(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&eventRecord{}).
		Where("violation = ? AND timestamp >= ?", true, since).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count violations")
	}
	return count, nil
}
