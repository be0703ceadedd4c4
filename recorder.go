package execution

// Recorder is called with a snapshot after every applied transition. It runs
// inside the notification path and must not block; implementations that write
// to storage should queue the snapshot.
type Recorder interface {
	Save(snapshot OrderSnapshot)
}

type discardRecorder struct{}

func (discardRecorder) Save(OrderSnapshot) {}
