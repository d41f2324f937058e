package watcher

// State is the watcher lifecycle: Idle -> Watching <-> Processing -> Stopped.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}
