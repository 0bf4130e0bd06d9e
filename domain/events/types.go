package events

// Event types double as bus routing keys; the topic exchange routes on them.

// Book events
const (
	BookCreated            = "BOOK_CREATED"
	BookUpdated            = "BOOK_UPDATED"
	BookDeleted            = "BOOK_DELETED"
	BookRetailPriceUpdated = "BOOK_RETAIL_PRICE_UPDATED"
	BookValidationResult   = "BOOK_VALIDATION_RESULT"
)

// Reservation events
const (
	ReservationCreated            = "RESERVATION_CREATED"
	ReservationBookValidation     = "RESERVATION_BOOK_VALIDATION"
	ReservationRetailPriceUpdated = "RESERVATION_RETAIL_PRICE_UPDATED"
	ReservationPendingPayment     = "RESERVATION_PENDING_PAYMENT"
	ReservationConfirmed          = "RESERVATION_CONFIRMED"
	ReservationRejected           = "RESERVATION_REJECTED"
	ReservationCancelled          = "RESERVATION_CANCELLED"
	ReservationBorrowed           = "RESERVATION_BORROWED"
	ReservationLate               = "RESERVATION_LATE"
	ReservationReturned           = "RESERVATION_RETURNED"
	ReservationBookBrought        = "RESERVATION_BOOK_BROUGHT"
	ReservationPaymentCompleted   = "RESERVATION_PAYMENT_COMPLETED"
	ReservationPaymentDeclined    = "RESERVATION_PAYMENT_DECLINED"
)

// Wallet events
const (
	WalletCreated  = "WALLET_CREATED"
	WalletCredited = "WALLET_CREDITED"
	WalletDebited  = "WALLET_DEBITED"
)

// FailedSuffix marks the error event derived from a request event, e.g.
// RESERVATION_BOOK_VALIDATION_FAILED.
const FailedSuffix = "_FAILED"
