package constants

const (
	ROLE_ADMIN = "ADMIN"
	ROLE_STAFF = "STAFF"
)

const (
	ERROR_PARSE_DATA_TO_LOCALS = "Cannot read request data from context"
	DATA_INPUT_IS_NOT_NUMBER   = "Path parameter must be a positive number"
	ERROR_INPUT                = "Invalid input"
	ERROR_INTERNAL_ERROR       = "Internal server error"
	ERROR_SERVICE_UNAVAILABLE  = "Payment service is temporarily unavailable"
	NOT_STAFF                  = "Staff permission required"
	NOT_OWNER                  = "Booking belongs to another customer"
	MISSING_TOKEN              = "Missing token"
	INVALID_TOKEN              = "Invalid token"
)

const (
	SESSION_NOT_FOUND  = "Session not found"
	BOOKING_NOT_FOUND  = "Booking not found"
	TICKET_NOT_FOUND   = "Ticket not found"
	PRODUCT_NOT_FOUND  = "Product not found"
	CUSTOMER_NOT_FOUND = "Customer not found"

	SEATS_UNAVAILABLE      = "Some requested seats are unavailable"
	SESSION_NOT_BOOKABLE   = "Session is not open for booking"
	SESSION_ALREADY_START  = "Session has already started"
	BOOKING_NOT_PAID       = "Booking has not been paid"
	BOOKING_ALREADY_CLOSED = "Booking is already cancelled or completed"
	BOOKING_REFUNDED       = "Booking is already refunded"
	REFUND_WINDOW_CLOSED   = "Refunds close 30 minutes before the session starts"
	TICKET_NOT_REFUNDABLE  = "Ticket is already used, cancelled or refunded"
	REFUND_IN_PROGRESS     = "Another refund for this booking is in progress"
	TICKET_ALREADY_USED    = "Ticket has already been checked in"
	TICKET_NOT_VALID       = "Ticket is not valid for entry"
	AMOUNT_MISMATCH        = "Payment amount does not match booking total"
	PAYMENT_SESSION_OPEN   = "Booking already has an open payment session"
	BOOKING_NOT_REMOVABLE  = "Paid bookings cannot be removed"
	BOOKING_NOT_PENDING    = "Booking is no longer awaiting payment"
	PAYMENT_COMPLETED      = "Payment has already been completed"
	UNKNOWN_SEATS          = "Some requested seats do not exist in this session"
	DUPLICATE_SEATS        = "Seats must not repeat"
	INVALID_SESSION_TIME   = "Session must start in the future and end after it starts"
)

const (
	EVENT_BOOKING_CONFIRMED = "booking.confirmed"
	EVENT_BOOKING_REFUNDED  = "booking.refunded"
	EVENT_BOOKING_EXPIRED   = "booking.expired"
)
