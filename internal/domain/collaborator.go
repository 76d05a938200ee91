package domain

import "time"

// MarkdownRenderer converts markdown to display markup. Implementations never
// fail; on error they return an escaped plain-text rendering.
type MarkdownRenderer interface {
	Render(markdown string) string
}

// WorkflowSink tracks nested long-running task structure.
type WorkflowSink interface {
	CreateNode(kind, title, icon string) string
	CompleteNode(id string)
}

// Localizer looks up user-visible strings. Params substitute {name}
// placeholders in the catalog entry.
type Localizer interface {
	T(key string, params ...map[string]any) string
}

// ToastLevel is the severity of a transient notification.
type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// Toaster shows transient notifications.
type Toaster interface {
	Toast(level ToastLevel, message string)
}

// Scheduler runs fn on the dispatch loop after d. Scheduled functions never
// run concurrently with event handling.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
