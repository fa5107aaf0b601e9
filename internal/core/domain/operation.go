package domain

// Operation is the bulk action a sync run applies to every item in the
// enumerated set.
type Operation string

const (
	// OperationFetch downloads the full item payload to the output location.
	OperationFetch Operation = "fetch"
	// OperationTrash moves the item to the upstream trash. Reversible.
	OperationTrash Operation = "trash"
	// OperationDelete permanently deletes the item upstream. Irreversible.
	OperationDelete Operation = "delete"
)

// Valid reports whether the operation is one of the closed set.
func (o Operation) Valid() bool {
	switch o {
	case OperationFetch, OperationTrash, OperationDelete:
		return true
	default:
		return false
	}
}
