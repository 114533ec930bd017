package enums

// PurchaseStatus maps to the purchase_status Postgres enum. A purchase moves
// pending -> completed -> refunded and never backwards.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

var purchaseStatuses = enum("purchase status", PurchaseStatusPending, PurchaseStatusCompleted, PurchaseStatusRefunded)

func (s PurchaseStatus) String() string { return string(s) }

func (s PurchaseStatus) IsValid() bool { return purchaseStatuses.has(s) }

// Refundable reports whether a refund may be started from s.
func (s PurchaseStatus) Refundable() bool {
	return s == PurchaseStatusCompleted
}

func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	return purchaseStatuses.parse(value)
}
