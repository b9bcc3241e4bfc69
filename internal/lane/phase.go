package lane

// Phase is the tri-state rendered on the signal head. Off models the
// brief all-dark blank the reference hardware inserts between phases.
type Phase int

const (
	Off Phase = iota
	Red
	Yellow
	Green
)

func (p Phase) String() string {
	switch p {
	case Off:
		return "off"
	case Red:
		return "red"
	case Yellow:
		return "yellow"
	case Green:
		return "green"
	default:
		return "unknown"
	}
}
