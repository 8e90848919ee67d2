package enums

// ItemReturnStatus summarises returns on a single order item.
type ItemReturnStatus string

const (
	ItemReturnStatusNone      ItemReturnStatus = "none"
	ItemReturnStatusRequested ItemReturnStatus = "requested"
	ItemReturnStatusReturned  ItemReturnStatus = "returned"
)

var validItemReturnStatuses = []ItemReturnStatus{
	ItemReturnStatusNone,
	ItemReturnStatusRequested,
	ItemReturnStatusReturned,
}

// IsValid reports whether the value is a known ItemReturnStatus.
func (i ItemReturnStatus) IsValid() bool {
	for _, candidate := range validItemReturnStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

