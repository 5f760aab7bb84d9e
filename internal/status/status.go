package status

type Status = int32

const (
	Pending Status = iota
	Active
	Paused
	Completed
	Failed
	Cancelled
	RangeUnsupported
)

// String returns the lower-case name of s as shown by the list command.
func String(s Status) string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case RangeUnsupported:
		return "range-unsupported"
	default:
		return "unknown"
	}
}
