package gate

// State is a service's readiness as seen by one probe. It is recomputed on
// every poll and never stored.
type State int

const (
	Absent State = iota
	Starting
	Healthy
	Unhealthy
	NoHealthCheck
	Exited
	Dead
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Starting:
		return "starting"
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	case NoHealthCheck:
		return "no-healthcheck"
	case Exited:
		return "exited"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Terminal reports whether the container can no longer become healthy
// without being restarted.
func (s State) Terminal() bool { return s == Exited || s == Dead }

// Classify derives a State from the two engine queries. An empty id means
// no container exists yet.
func Classify(id, health, lifecycle string) State {
	if id == "" {
		return Absent
	}
	switch lifecycle {
	case "exited":
		return Exited
	case "dead":
		return Dead
	}
	switch health {
	case "healthy":
		return Healthy
	case "unhealthy":
		return Unhealthy
	case "":
		if lifecycle == "running" {
			return NoHealthCheck
		}
	}
	return Starting
}
