package steps

import "github.com/kingrea/fleetnote/internal/session"

// Entry describes one step in the workflow list. Requires is the earliest
// session state from which the step can run; Done reports whether the
// session already holds the step's result.
type Entry struct {
	Title       string
	Description string
	Requires    session.State
	Done        func(session.Snapshot) bool
	New         func() Step
}

// Ready reports whether the entry may run from state.
func (e Entry) Ready(state session.State) bool {
	return state.AtLeast(e.Requires)
}

// Workflow returns the steps in the order an operator runs them.
func Workflow() []Entry {
	return []Entry{
		{
			Title:       "Sign in to M5",
			Description: "Exchange M5 credentials for a token",
			Requires:    session.StateUnauthenticatedM5,
			Done:        func(s session.Snapshot) bool { return s.M5Token != "" },
			New:         func() Step { return NewM5Auth() },
		},
		{
			Title:       "Fetch asset",
			Description: "Read the asset record and its comment",
			Requires:    session.StateM5Authenticated,
			Done:        func(s session.Snapshot) bool { return s.HasAsset },
			New:         func() Step { return NewAsset() },
		},
		{
			Title:       "Edit comment",
			Description: "Stage the comment to carry downstream",
			Requires:    session.StateAssetFetched,
			Done:        func(s session.Snapshot) bool { return s.CommentStaged },
			New:         func() Step { return NewStaging() },
		},
		{
			Title:       "Sign in to Geotab",
			Description: "Open a Geotab session",
			Requires:    session.StateCommentStaged,
			Done:        func(s session.Snapshot) bool { return s.GeotabCredentials.Valid() },
			New:         func() Step { return NewGeotabAuth() },
		},
		{
			Title:       "Locate device",
			Description: "Find the device matching the asset",
			Requires:    session.StateGeotabAuthenticated,
			Done:        func(s session.Snapshot) bool { return s.HasDevice },
			New:         func() Step { return NewDevice() },
		},
		{
			Title:       "Update Geotab comment",
			Description: "Merge, review and write the device comment",
			Requires:    session.StateDeviceLocated,
			Done:        func(s session.Snapshot) bool { return s.CommentCommitted },
			New:         func() Step { return NewCommit() },
		},
		{
			Title:       "Create Routeware job",
			Description: "Dispatch a job carrying the note",
			Requires:    session.StateCommentStaged,
			Done:        func(s session.Snapshot) bool { return s.JobSubmitted },
			New:         func() Step { return NewJob() },
		},
	}
}
