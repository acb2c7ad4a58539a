package cli

import (
	"fmt"
	"io"

	"github.com/kz4killua/course-alerts/internal/client/services"
)

// printNotifier shows toasts as single lines.
type printNotifier struct {
	w io.Writer
}

func (n *printNotifier) Notify(t services.Toast) {
	if t.Description == "" {
		fmt.Fprintf(n.w, "[%s] %s\n", t.Kind, t.Title)
		return
	}
	fmt.Fprintf(n.w, "[%s] %s: %s\n", t.Kind, t.Title, t.Description)
}
