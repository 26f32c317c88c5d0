// Package journal keeps a queryable history of engine events in a SQL
// database.
package journal

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/dex"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultLimit bounds queries that do not set a limit.
const DefaultLimit = 100

// Record is the stored form of an event.
type Record struct {
	Seq            uint64 `gorm:"primaryKey;autoIncrement"`
	EventID        string `gorm:"type:varchar(36);uniqueIndex;not null"`
	Type           string `gorm:"type:varchar(32);index;not null"`
	OrderID        uint64 `gorm:"index"`
	CounterOrderID uint64
	Account        string `gorm:"type:varchar(42);index"`
	Token          string `gorm:"type:varchar(42)"`
	CounterToken   string `gorm:"type:varchar(42)"`
	Amount         string
	Price          string
	Flag           bool
	CreatedAt      time.Time
}

func (Record) TableName() string {
	return "events"
}

// Journal is a dex.EventSink that stores every event.
type Journal struct {
	db *gorm.DB
}

// Open opens the sqlite journal at path, ":memory:" keeps it in
// memory.
func Open(path string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening journal: %w", err)
	}

	if path == ":memory:" {
		// every connection would see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New creates a journal on an open database, migrating its table.
func New(db *gorm.DB) (*Journal, error) {
	err := db.AutoMigrate(&Record{})
	if err != nil {
		return nil, fmt.Errorf("error migrating journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func intString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func parseInt(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

func toRecord(e dex.Event) Record {
	return Record{
		EventID:        e.ID,
		Type:           string(e.Type),
		OrderID:        e.OrderID,
		CounterOrderID: e.CounterOrderID,
		Account:        e.Account.Hex(),
		Token:          e.Token.Hex(),
		CounterToken:   e.CounterToken.Hex(),
		Amount:         intString(e.Amount),
		Price:          intString(e.Price),
		Flag:           e.Flag,
	}
}

func (r Record) Event() dex.Event {
	return dex.Event{
		ID:             r.EventID,
		Type:           dex.EventType(r.Type),
		OrderID:        r.OrderID,
		CounterOrderID: r.CounterOrderID,
		Account:        common.HexToAddress(r.Account),
		Token:          common.HexToAddress(r.Token),
		CounterToken:   common.HexToAddress(r.CounterToken),
		Amount:         parseInt(r.Amount),
		Price:          parseInt(r.Price),
		Flag:           r.Flag,
	}
}

func (j *Journal) Emit(ctx context.Context, e dex.Event) error {
	r := toRecord(e)
	err := j.db.WithContext(ctx).Create(&r).Error
	if err != nil {
		return fmt.Errorf("error journaling event %s: %w", e.ID, err)
	}
	return nil
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	Type    dex.EventType
	OrderID uint64
	Account *common.Address
	// After returns only events with a larger sequence number.
	After uint64
	Limit int
}

// Entry is a journaled event with its sequence number.
type Entry struct {
	Seq   uint64    `json:"seq"`
	Event dex.Event `json:"event"`
	Time  time.Time `json:"time"`
}

// Events returns the events matching f in the order they were
// emitted.
func (j *Journal) Events(ctx context.Context, f Filter) ([]Entry, error) {
	q := j.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", f.After)
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}

	if f.OrderID != 0 {
		q = q.Where("order_id = ? OR counter_order_id = ?", f.OrderID, f.OrderID)
	}

	if f.Account != nil {
		q = q.Where("account = ?", f.Account.Hex())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var records []Record
	err := q.Order("seq asc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("error querying journal: %w", err)
	}

	r := make([]Entry, len(records))
	for i, rec := range records {
		r[i] = Entry{Seq: rec.Seq, Event: rec.Event(), Time: rec.CreatedAt}
	}
	return r, nil
}
