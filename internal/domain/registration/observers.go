package registration

import (
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/ports"
)

// RecordStates keeps per-state counts on recorder in step with the tracker.
func RecordStates(recorder ports.Recorder) Observer {
	return func(prev, next *model.RegistrationRecord) {
		if prev != nil && next != nil && prev.State == next.State {
			return
		}
		if prev != nil {
			recorder.RegistrationState(prev.State, -1)
		}
		if next != nil {
			recorder.RegistrationState(next.State, 1)
		}
	}
}
