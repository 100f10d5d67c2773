// Package session holds the state of one operator's run through the
// M5 → Geotab → Routeware workflow. Each operation is a state-machine
// transition: it checks the state and fields earlier steps produced, talks
// to one remote service, and records the outcome. Nothing is persisted;
// End discards everything.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kingrea/fleetnote/internal/clock"
	"github.com/kingrea/fleetnote/internal/comment"
	"github.com/kingrea/fleetnote/internal/config"
	"github.com/kingrea/fleetnote/internal/fault"
	"github.com/kingrea/fleetnote/internal/geotab"
	"github.com/kingrea/fleetnote/internal/logbook"
	"github.com/kingrea/fleetnote/internal/m5"
	"github.com/kingrea/fleetnote/internal/routeware"
)

// Step names used in precondition errors and the logbook.
const (
	StepAuthenticateM5     = "authenticate M5"
	StepFetchAsset         = "fetch asset"
	StepStageComment       = "stage comment"
	StepAuthenticateGeotab = "authenticate Geotab"
	StepLocateDevice       = "locate device"
	StepPrepareComment     = "prepare comment"
	StepCommitComment      = "commit comment"
	StepSubmitJob          = "submit job"
)

// M5API is the part of the M5 client the session uses.
type M5API interface {
	Authenticate(ctx context.Context, username, password string) (m5.Token, error)
	GetAsset(ctx context.Context, token, id string) (m5.Asset, error)
}

// GeotabAPI is the part of the Geotab client the session uses.
type GeotabAPI interface {
	Authenticate(ctx context.Context, userName, password string) (geotab.Credentials, error)
	FindDevicesByName(ctx context.Context, creds geotab.Credentials, pattern string) ([]geotab.Device, error)
	GetDevice(ctx context.Context, creds geotab.Credentials, id string) (geotab.Device, error)
	SetDeviceComment(ctx context.Context, creds geotab.Credentials, id, comment string) error
}

// RoutewareAPI is the part of the Routeware client the session uses.
type RoutewareAPI interface {
	CreateJob(ctx context.Context, apiKey string, job routeware.Job) (routeware.Result, error)
}

// Options wires a Session to its collaborators. Clock defaults to the wall
// clock; Logbook may be nil.
type Options struct {
	M5        M5API
	Geotab    GeotabAPI
	Routeware RoutewareAPI
	Mapping   config.AssetMapping
	Clock     clock.Clock
	Logbook   *logbook.Logbook
}

// Snapshot is a copy of the session fields, safe to read while a request is
// in flight.
type Snapshot struct {
	ID    string
	State State

	AssetID      string
	DevicePrefix string

	M5User         string
	M5TagUser      string // username as typed, used in comment tags
	M5Token        string
	M5AuthStatus   int
	M5AuthResponse string

	Asset           m5.Asset
	HasAsset        bool
	OriginalComment string
	CommentFound    bool
	EditedComment   string
	CommentStaged   bool

	GeotabCredentials geotab.Credentials

	Device          geotab.Device
	HasDevice       bool
	ExistingComment string
	PreparedComment string

	DraftComment string
	DraftPending bool
	AppendMode   bool

	CommentCommitted bool
	CommittedComment string
	VerifiedComment  string
	Verified         bool

	RoutewareNote string
	Job           routeware.Job
	JobResult     routeware.Result
	JobSubmitted  bool
}

// Session is one operator's workflow state.
type Session struct {
	mu   sync.Mutex
	opts Options
	data Snapshot
}

// New creates an empty session in StateUnauthenticatedM5.
func New(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	s := &Session{opts: opts}
	s.reset()
	s.opts.Logbook.Info("Session opened · asset %s", s.data.AssetID)
	return s
}

func (s *Session) reset() {
	s.data = Snapshot{
		ID:           uuid.NewString(),
		State:        StateUnauthenticatedM5,
		AssetID:      s.opts.Mapping.M5AssetID,
		DevicePrefix: s.opts.Mapping.GeotabDevicePrefix,
	}
	s.opts.Logbook.SetTag(shortID(s.data.ID))
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ID
}

// State returns the furthest state reached.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.State
}

// Snapshot returns a copy of the current fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// End clears every field and starts a fresh session id.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Logbook.Info("Session ended at %s", s.data.State.FriendlyName())
	s.reset()
	s.opts.Logbook.Info("Session opened · asset %s", s.data.AssetID)
}

// AuthenticateM5 exchanges operator credentials for an M5 bearer token.
// Safe to repeat; a new token replaces the old one.
func (s *Session) AuthenticateM5(ctx context.Context, username, password string) error {
	user := m5.NormalizeUsername(username)
	if user == "" || password == "" {
		return s.blocked(fault.Precondition(StepAuthenticateM5, "username and password are required"))
	}
	token, err := s.opts.M5.Authenticate(ctx, user, password)
	if err != nil {
		return s.failed(StepAuthenticateM5, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.M5User = user
	s.data.M5TagUser = strings.TrimSpace(username)
	s.data.M5Token = token.Value
	s.data.M5AuthStatus = token.StatusCode
	s.data.M5AuthResponse = string(token.Raw)
	s.advance(StateM5Authenticated)
	s.opts.Logbook.Info("M5 · authenticated as %s (token %d chars)", user, len(token.Value))
	return nil
}

// FetchAsset reads the mapped asset using the M5 token.
func (s *Session) FetchAsset(ctx context.Context) (m5.Asset, error) {
	s.mu.Lock()
	token, assetID, state := s.data.M5Token, s.data.AssetID, s.data.State
	s.mu.Unlock()
	if !state.AtLeast(StateM5Authenticated) || token == "" {
		return m5.Asset{}, s.blocked(fault.Precondition(StepFetchAsset, "authenticate with M5 first"))
	}

	asset, err := s.opts.M5.GetAsset(ctx, token, assetID)
	if err != nil {
		return m5.Asset{}, s.failed(StepFetchAsset, err)
	}

	original, found := comment.FromAsset(asset.Items)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Asset = asset
	s.data.HasAsset = true
	s.data.OriginalComment = original
	s.data.CommentFound = found
	s.advance(StateAssetFetched)
	if found {
		s.opts.Logbook.Info("M5 · asset %s fetched", assetID)
	} else {
		s.opts.Logbook.Warn("M5 · asset %s has no comment; using placeholder", assetID)
	}
	return asset, nil
}

// OriginalComment returns the asset's comment, or the placeholder.
func (s *Session) OriginalComment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.data.HasAsset {
		return ""
	}
	return s.data.OriginalComment
}

// StageComment records the operator's edit of the asset comment as the text
// to carry downstream. No validation is applied.
func (s *Session) StageComment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.data.State.AtLeast(StateAssetFetched) || !s.data.HasAsset {
		return s.blocked(fault.Precondition(StepStageComment, "fetch the asset first"))
	}
	s.data.EditedComment = text
	s.data.CommentStaged = true
	s.advance(StateCommentStaged)
	s.opts.Logbook.Info("Comment staged (%d chars)", len(text))
	return nil
}

// AuthenticateGeotab signs in to Geotab and keeps the session credentials.
func (s *Session) AuthenticateGeotab(ctx context.Context, userName, password string) error {
	if !s.State().AtLeast(StateCommentStaged) {
		return s.blocked(fault.Precondition(StepAuthenticateGeotab, "stage the M5 comment first"))
	}
	if strings.TrimSpace(userName) == "" || strings.TrimSpace(password) == "" {
		return s.blocked(fault.Precondition(StepAuthenticateGeotab, "username and password are required"))
	}
	creds, err := s.opts.Geotab.Authenticate(ctx, userName, password)
	if err != nil {
		return s.failed(StepAuthenticateGeotab, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.GeotabCredentials = creds
	s.advance(StateGeotabAuthenticated)
	if creds.Server != "" {
		s.opts.Logbook.Info("Geotab · authenticated as %s (server %s)", creds.UserName, creds.Server)
	} else {
		s.opts.Logbook.Info("Geotab · authenticated as %s", creds.UserName)
	}
	return nil
}

// LocateDevice finds the device matching the asset's name pattern and reads
// its current comment. Only the first match is used.
func (s *Session) LocateDevice(ctx context.Context) (geotab.Device, error) {
	s.mu.Lock()
	creds, edited, prefix, state := s.data.GeotabCredentials, s.data.EditedComment, s.data.DevicePrefix, s.data.State
	s.mu.Unlock()
	if !state.AtLeast(StateGeotabAuthenticated) || !creds.Valid() {
		return geotab.Device{}, s.blocked(fault.Precondition(StepLocateDevice, "authenticate with Geotab first"))
	}
	if edited == "" {
		return geotab.Device{}, s.blocked(fault.Precondition(StepLocateDevice, "no M5 comment text to send"))
	}

	devices, err := s.opts.Geotab.FindDevicesByName(ctx, creds, prefix)
	if err != nil {
		return geotab.Device{}, s.failed(StepLocateDevice, err)
	}
	if len(devices) == 0 {
		return geotab.Device{}, s.failed(StepLocateDevice, &fault.ShapeError{
			Service: "geotab",
			Field:   "result[0]",
			Detail:  fmt.Sprintf("no device found with name matching %s", prefix),
		})
	}
	device := devices[0]

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Device = device
	s.data.HasDevice = true
	s.data.ExistingComment = device.Comment
	s.data.PreparedComment = edited
	s.advance(StateDeviceLocated)
	if len(devices) > 1 {
		s.opts.Logbook.Warn("Geotab · %d devices match %s; using %s", len(devices), prefix, device.Name)
	} else {
		s.opts.Logbook.Info("Geotab · device %s located (%s)", device.Name, device.ID)
	}
	return device, nil
}

// PrepareComment builds the merged comment from the device's existing text
// and a tagged entry dated now and attributed to the M5 user. The result is
// a draft the operator may still edit before committing.
func (s *Session) PrepareComment(appendMode bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.data.State.AtLeast(StateDeviceLocated) || !s.data.HasDevice {
		return "", s.blocked(fault.Precondition(StepPrepareComment, "locate the Geotab device first"))
	}
	entry := comment.Tag(s.opts.Clock.Now(), s.data.M5TagUser, s.data.PreparedComment)
	merged := comment.Merge(s.data.ExistingComment, entry, appendMode)
	s.data.DraftComment = merged
	s.data.DraftPending = true
	s.data.AppendMode = appendMode
	s.advance(StateCommentPrepared)
	return merged, nil
}

// CancelPrepared discards the pending draft and steps back to the located
// device.
func (s *Session) CancelPrepared() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.data.DraftPending {
		return s.blocked(fault.Precondition(StepPrepareComment, "no prepared comment to cancel"))
	}
	s.data.DraftComment = ""
	s.data.DraftPending = false
	if s.data.State == StateCommentPrepared {
		s.data.State = StateDeviceLocated
	}
	s.opts.Logbook.Info("Prepared comment discarded")
	return nil
}

// CommitResult describes a successful write and its optional read-back.
type CommitResult struct {
	Written     string
	Verified    bool
	ReadBack    string
	ReadBackErr error
}

// CommitComment overwrites the device comment with final. On success the
// device is read back; a failed read-back is reported in the result but does
// not fail the commit.
func (s *Session) CommitComment(ctx context.Context, final string) (CommitResult, error) {
	s.mu.Lock()
	creds, device, pending := s.data.GeotabCredentials, s.data.Device, s.data.DraftPending
	s.mu.Unlock()
	if !pending {
		return CommitResult{}, s.blocked(fault.Precondition(StepCommitComment, "prepare the comment first"))
	}
	if !creds.Valid() || device.ID == "" {
		return CommitResult{}, s.blocked(fault.Precondition(StepCommitComment, "locate the Geotab device first"))
	}

	if err := s.opts.Geotab.SetDeviceComment(ctx, creds, device.ID, final); err != nil {
		return CommitResult{}, s.failed(StepCommitComment, err)
	}
	result := CommitResult{Written: final}
	readBack, err := s.opts.Geotab.GetDevice(ctx, creds, device.ID)
	if err != nil {
		result.ReadBackErr = err
	} else {
		result.Verified = true
		result.ReadBack = readBack.Comment
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CommentCommitted = true
	s.data.CommittedComment = final
	s.data.DraftComment = ""
	s.data.DraftPending = false
	s.data.VerifiedComment = result.ReadBack
	s.data.Verified = result.Verified
	s.data.Device.Comment = final
	s.data.ExistingComment = final
	s.advance(StateCommentCommitted)
	s.opts.Logbook.Info("Geotab · comment written to %s (%d chars)", device.Name, len(final))
	switch {
	case result.ReadBackErr != nil:
		s.opts.Logbook.Warn("Geotab · read-back skipped: %v", result.ReadBackErr)
	case result.ReadBack != final:
		s.opts.Logbook.Warn("Geotab · read-back differs from written comment")
	}
	return result, nil
}

// DefaultJobNote returns the note a new job starts with: the last note sent
// to Routeware, else the staged comment.
func (s *Session) DefaultJobNote() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.RoutewareNote != "" {
		return s.data.RoutewareNote
	}
	return s.data.EditedComment
}

// JobRequest holds the operator's inputs for a new dispatch job.
type JobRequest struct {
	APIKey   string
	Priority routeware.Priority
	Reason   routeware.Reason
	Note     string
}

// JobOutcome is the job that was sent and, on success, the service reply.
type JobOutcome struct {
	Job    routeware.Job
	Result routeware.Result
}

// SubmitJob creates a dispatch job carrying the note. The returned outcome
// always holds the job that was built, even when submission fails.
func (s *Session) SubmitJob(ctx context.Context, req JobRequest) (JobOutcome, error) {
	if !s.State().AtLeast(StateCommentStaged) {
		return JobOutcome{}, s.blocked(fault.Precondition(StepSubmitJob, "stage the M5 comment first"))
	}
	apiKey := strings.TrimSpace(req.APIKey)
	switch {
	case apiKey == "":
		return JobOutcome{}, s.blocked(fault.Precondition(StepSubmitJob, "API key is required"))
	case !req.Priority.Valid():
		return JobOutcome{}, s.blocked(fault.Precondition(StepSubmitJob, fmt.Sprintf("unknown priority %d", int(req.Priority))))
	case !req.Reason.Valid():
		return JobOutcome{}, s.blocked(fault.Precondition(StepSubmitJob, fmt.Sprintf("unknown reason code %d", int(req.Reason))))
	case strings.TrimSpace(req.Note) == "":
		return JobOutcome{}, s.blocked(fault.Precondition(StepSubmitJob, "note is required"))
	}

	mapping := routeware.VehicleMapping{
		VehicleTypeID: s.opts.Mapping.VehicleTypeID,
		PickupTypeID:  s.opts.Mapping.PickupTypeID,
	}
	job := routeware.NewJob(s.opts.Clock.Now(), mapping, req.Priority, req.Reason, req.Note)
	result, err := s.opts.Routeware.CreateJob(ctx, apiKey, job)
	if err != nil {
		return JobOutcome{Job: job}, s.failed(StepSubmitJob, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.RoutewareNote = req.Note
	s.data.Job = job
	s.data.JobResult = result
	s.data.JobSubmitted = true
	s.advance(StateJobSubmitted)
	s.opts.Logbook.Info("Routeware · job %s created (%s, %s)", job.WorkOrderNumber, req.Priority, req.Reason)
	return JobOutcome{Job: job, Result: result}, nil
}

// advance moves to target when it is further than the current state.
// Callers hold s.mu.
func (s *Session) advance(target State) {
	if target > s.data.State {
		s.data.State = target
	}
}

func (s *Session) blocked(err error) error {
	s.opts.Logbook.Warn("Blocked · %v", err)
	return err
}

func (s *Session) failed(step string, err error) error {
	kind := fault.Classify(err)
	if code, ok := fault.StatusCode(err); ok {
		s.opts.Logbook.Error("%s failed (%s, status %d): %v", step, kind, code, err)
	} else {
		s.opts.Logbook.Error("%s failed (%s): %v", step, kind, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
