package projections

import (
	"time"
)

// Read-model documents. Each carries the aggregate version of the last event
// folded in; repositories fence writes on it. Money fields stay decimal
// strings end to end so no float ever touches a price.

// BookReadModel is the books-service projection of a catalog entry.
type BookReadModel struct {
	ID          string     `bson:"_id" json:"id"`
	Title       string     `bson:"title" json:"title"`
	Author      string     `bson:"author" json:"author"`
	ISBN        string     `bson:"isbn" json:"isbn"`
	Description string     `bson:"description" json:"description"`
	RetailPrice string     `bson:"retailPrice" json:"retailPrice"`
	Version     int        `bson:"version" json:"version"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
	DeletedAt   *time.Time `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
}

// ProjectionID implements ports.Projection.
func (m BookReadModel) ProjectionID() string { return m.ID }

// ProjectionVersion implements ports.Projection.
func (m BookReadModel) ProjectionVersion() int { return m.Version }

// ReservationReadModel is the reservations-service projection of one
// reservation's lifecycle.
type ReservationReadModel struct {
	ID             string     `bson:"_id" json:"id"`
	BookID         string     `bson:"bookId" json:"bookId"`
	UserID         string     `bson:"userId" json:"userId"`
	Status         string     `bson:"status" json:"status"`
	RetailPrice    string     `bson:"retailPrice,omitempty" json:"retailPrice,omitempty"`
	Fee            string     `bson:"fee,omitempty" json:"fee,omitempty"`
	DaysLate       int        `bson:"daysLate,omitempty" json:"days_late,omitempty"`
	LateFeeApplied string     `bson:"lateFeeApplied,omitempty" json:"late_fee_applied,omitempty"`
	Message        string     `bson:"message,omitempty" json:"message,omitempty"`
	RejectedReason string     `bson:"rejectedReason,omitempty" json:"rejectedReason,omitempty"`
	DueDate        *time.Time `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	ReturnedAt     *time.Time `bson:"returnedAt,omitempty" json:"returnedAt,omitempty"`
	Version        int        `bson:"version" json:"version"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt" json:"updatedAt"`
	DeletedAt      *time.Time `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
}

// ProjectionID implements ports.Projection.
func (m ReservationReadModel) ProjectionID() string { return m.ID }

// ProjectionVersion implements ports.Projection.
func (m ReservationReadModel) ProjectionVersion() int { return m.Version }

// WalletReadModel is the wallets-service projection of a user balance.
type WalletReadModel struct {
	ID        string     `bson:"_id" json:"id"`
	UserID    string     `bson:"userId" json:"userId"`
	Balance   string     `bson:"balance" json:"balance"`
	Version   int        `bson:"version" json:"version"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
	DeletedAt *time.Time `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
}

// ProjectionID implements ports.Projection.
func (m WalletReadModel) ProjectionID() string { return m.ID }

// ProjectionVersion implements ports.Projection.
func (m WalletReadModel) ProjectionVersion() int { return m.Version }
