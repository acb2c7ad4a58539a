package services

// ToastKind tells a Notifier how to present a Toast.
type ToastKind int

const (
	ToastSuccess ToastKind = iota
	ToastError
)

func (k ToastKind) String() string {
	if k == ToastError {
		return "error"
	}
	return "success"
}

// Toast is a transient message for the user.
type Toast struct {
	Kind        ToastKind
	Title       string
	Description string
}

// Notifier shows toasts. Implementations must not block.
type Notifier interface {
	Notify(t Toast)
}

// SelectionClearer empties the caller's selected sections.
type SelectionClearer interface {
	Clear()
}
