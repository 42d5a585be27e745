package download

// Observer receives task lifecycle notifications. Callbacks run synchronously
// on the worker goroutine processing the task, so implementations must return
// quickly; anything slow (disk, network) should hand off internally.
//
// Register observers before Manager.Start; the observer list is not guarded
// against registration concurrent with notification.
type Observer interface {
	// OnProgressUpdate fires for each accepted progress callback.
	OnProgressUpdate(task *Task)
	// OnTaskComplete fires exactly once, after the task reaches Completed.
	OnTaskComplete(task *Task)
	// OnTaskError fires exactly once, after the task reaches Error.
	OnTaskError(task *Task)
}

// CancelObserver is an optional extension. Observers implementing it are told
// about tasks drained from the queue at shutdown before they ever started;
// such tasks fire neither OnTaskComplete nor OnTaskError.
type CancelObserver interface {
	OnTaskCancelled(task *Task)
}
