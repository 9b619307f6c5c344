package enquirywitch

// Story events. Hosts bind to these names.
const (
	EventPassageHidden    = "sm.passage.hidden"
	EventPassageShowing   = "sm.passage.showing"
	EventPassageShown     = "sm.passage.shown"
	EventStoryError       = "sm.story.error"
	EventCheckpointAdding = "sm.checkpoint.adding"
	EventCheckpointAdded  = "sm.checkpoint.added"
	EventCheckpointFailed = "sm.checkpoint.failed"
	EventStorySaved       = "sm.story.saved"
	EventRestoreSuccess   = "sm.restore.success"
	EventRestoreFailed    = "sm.restore.failed"
	EventSendingError     = "sm.sending.error"
)

// Listener receives story events. It is called after the session lock is
// released, so it may call back into the session.
type Listener interface {
	Event(name string, args ...any)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(name string, args ...any)

func (f ListenerFunc) Event(name string, args ...any) {
	f(name, args...)
}

type event struct {
	name string
	args []any
}
