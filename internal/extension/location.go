package extension

// Location records how an extension came to be on disk.
type Location int

const (
	// Internal extensions were installed from a container into the store.
	Internal Location = iota
	// External extensions were placed in the store by another mechanism.
	External
	// Load extensions are unpacked directories loaded in place.
	Load
)

func (l Location) String() string {
	switch l {
	case Internal:
		return "internal"
	case External:
		return "external"
	case Load:
		return "load"
	default:
		return "unknown"
	}
}
