package session

// State is a milestone in the workflow. States are ordered; the session
// remembers the furthest one reached.
type State int

const (
	StateUnauthenticatedM5 State = iota
	StateM5Authenticated
	StateAssetFetched
	StateCommentStaged
	StateGeotabAuthenticated
	StateDeviceLocated
	StateCommentPrepared
	StateCommentCommitted
	StateJobSubmitted
)

// States lists every state in workflow order.
var States = []State{
	StateUnauthenticatedM5,
	StateM5Authenticated,
	StateAssetFetched,
	StateCommentStaged,
	StateGeotabAuthenticated,
	StateDeviceLocated,
	StateCommentPrepared,
	StateCommentCommitted,
	StateJobSubmitted,
}

func (s State) String() string {
	switch s {
	case StateUnauthenticatedM5:
		return "unauthenticated_m5"
	case StateM5Authenticated:
		return "m5_authenticated"
	case StateAssetFetched:
		return "asset_fetched"
	case StateCommentStaged:
		return "comment_staged"
	case StateGeotabAuthenticated:
		return "geotab_authenticated"
	case StateDeviceLocated:
		return "device_located"
	case StateCommentPrepared:
		return "comment_prepared"
	case StateCommentCommitted:
		return "comment_committed"
	case StateJobSubmitted:
		return "job_submitted"
	default:
		return "unknown"
	}
}

// FriendlyName returns the label shown in the UI.
func (s State) FriendlyName() string {
	switch s {
	case StateUnauthenticatedM5:
		return "Not signed in"
	case StateM5Authenticated:
		return "M5 authenticated"
	case StateAssetFetched:
		return "Asset fetched"
	case StateCommentStaged:
		return "Comment staged"
	case StateGeotabAuthenticated:
		return "Geotab authenticated"
	case StateDeviceLocated:
		return "Device located"
	case StateCommentPrepared:
		return "Comment prepared"
	case StateCommentCommitted:
		return "Comment committed"
	case StateJobSubmitted:
		return "Job submitted"
	default:
		return "Unknown"
	}
}

// AtLeast reports whether s is other or later.
func (s State) AtLeast(other State) bool {
	return s >= other
}
