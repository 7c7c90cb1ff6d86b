package onboard

// Outcome is the terminal state of a single device's onboarding attempt.
type Outcome string

const (
	Pending Outcome = "pending"
	Success Outcome = "success"
	Failed  Outcome = "failed"
)

// DeviceStatus is one device's result. It starts Pending and transitions
// exactly once to Success or Failed; later transitions are ignored.
type DeviceStatus struct {
	Device  string
	Outcome Outcome
	Err     string
}

func (s *DeviceStatus) markSuccess() {
	if s.Outcome == Pending {
		s.Outcome = Success
	}
}

func (s *DeviceStatus) markFailed(err error) {
	if s.Outcome == Pending {
		s.Outcome = Failed
		s.Err = err.Error()
	}
}

// Report holds one DeviceStatus per inventory device, in inventory order.
type Report struct {
	RunID    string
	Statuses []DeviceStatus
}

// Succeeded returns the statuses of devices that onboarded cleanly.
func (r Report) Succeeded() []DeviceStatus {
	return r.filter(Success)
}

// Failed returns the statuses of devices that failed at any phase.
func (r Report) Failed() []DeviceStatus {
	return r.filter(Failed)
}

func (r Report) filter(outcome Outcome) []DeviceStatus {
	var out []DeviceStatus
	for _, s := range r.Statuses {
		if s.Outcome == outcome {
			out = append(out, s)
		}
	}
	return out
}

// Devices lists the device addresses in the given statuses.
func Devices(statuses []DeviceStatus) []string {
	addrs := make([]string, len(statuses))
	for i, s := range statuses {
		addrs[i] = s.Device
	}
	return addrs
}
