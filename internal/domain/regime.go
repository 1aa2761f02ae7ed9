package domain

// Regime is the lifecycle state inferred for a market.
type Regime int

const (
	RegimeUnknown Regime = iota
	RegimeOpen
	RegimeSuspended
	RegimeInPlay
	RegimeClosed
)

// String returns the string representation of Regime
func (r Regime) String() string {
	switch r {
	case RegimeOpen:
		return "OPEN"
	case RegimeSuspended:
		return "SUSPENDED"
	case RegimeInPlay:
		return "IN_PLAY"
	case RegimeClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets snapshots render the regime by name.
func (r Regime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a regime name; unknown names decode as RegimeUnknown.
func (r *Regime) UnmarshalText(b []byte) error {
	switch string(b) {
	case "OPEN":
		*r = RegimeOpen
	case "SUSPENDED":
		*r = RegimeSuspended
	case "IN_PLAY":
		*r = RegimeInPlay
	case "CLOSED":
		*r = RegimeClosed
	default:
		*r = RegimeUnknown
	}
	return nil
}

// IsTerminal reports whether no event may move the regime back to Open.
func (r Regime) IsTerminal() bool {
	return r == RegimeInPlay || r == RegimeClosed
}
