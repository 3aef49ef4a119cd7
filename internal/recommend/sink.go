package recommend

// Sink receives status, progress and result events as they happen. The wire
// shape is the sink's concern; the core only guarantees when each event
// fires and what payload it carries.
type Sink interface {
	Emit(event string, data any)
}

// Event names pushed to connected clients.
const (
	EventClear          = "clear"
	EventToast          = "new_toast_msg"
	EventBooksLoaded    = "more_books_loaded"
	EventRefreshBook    = "refresh_book"
	EventSidebarUpdate  = "readarr_sidebar_update"
	EventSettingsLoaded = "settings_loaded"
	EventOverview       = "overview"
)
