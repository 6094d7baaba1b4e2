// Package session drives a capture from photo to committed recipe. A
// Controller owns exactly one CaptureSession; its status doubles as the
// mutual-exclusion guard for inference calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/vietddude/snapcook/internal/capture/validate"
	"github.com/vietddude/snapcook/internal/core/domain"
	"github.com/vietddude/snapcook/internal/infra/inference"
	"github.com/vietddude/snapcook/internal/metrics"
)

// Generator issues one resilient inference call.
type Generator interface {
	Generate(ctx context.Context, prompt string, parts ...inference.Part) (string, error)
}

// ImagePicker selects an image and returns its raw reference.
type ImagePicker interface {
	Pick(ctx context.Context) (string, error)
}

// ImageNormalizer turns a raw reference into encoded bytes and dimensions.
type ImageNormalizer interface {
	Normalize(ctx context.Context, ref string) (*domain.ImagePayload, error)
}

// PantryProvider lists staples the user always has.
type PantryProvider interface {
	Items(ctx context.Context) ([]string, error)
}

// Enqueuer persists a remote write for later delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind domain.TaskKind, entityType domain.EntityType, entityID string, payload any) (*domain.SyncTask, error)
}

// Deps are the collaborators of a Controller. Picker, Normalizer and Pantry
// may be nil when the caller never uses the matching actions.
type Deps struct {
	Generator  Generator
	Picker     ImagePicker
	Normalizer ImageNormalizer
	Pantry     PantryProvider
	Queue      Enqueuer
	Logger     *slog.Logger
}

// Controller runs the capture state machine for one session.
type Controller struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	mu           sync.Mutex
	session      *domain.CaptureSession
	inFlight     bool
	onTransition func(Transition)
}

// NewController creates a controller in the idle status.
func NewController(deps Deps) *Controller {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		deps:    deps,
		log:     log,
		now:     time.Now,
		session: &domain.CaptureSession{Status: domain.StatusIdle},
	}
}

// SetTransitionCallback registers a callback invoked after every status change.
func (c *Controller) SetTransitionCallback(fn func(Transition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = fn
}

// Snapshot returns a deep copy of the current session.
func (c *Controller) Snapshot() *domain.CaptureSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Status
}

// StartCamera opens a new capture waiting for a photo.
func (c *Controller) StartCamera() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(domain.StatusAwaitingCapture, "start camera"); err != nil {
		return err
	}
	c.renewLocked()
	return c.transitionLocked(domain.StatusAwaitingCapture, "camera started")
}

// SubmitCapture hands the photo taken by the camera to the normalizer.
func (c *Controller) SubmitCapture(ctx context.Context, ref string) error {
	c.mu.Lock()
	if c.session.Status != domain.StatusAwaitingCapture {
		defer c.mu.Unlock()
		return c.invalidLocked("submit capture")
	}
	if err := c.beginLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	id := c.session.ID
	c.mu.Unlock()

	img, err := c.normalize(ctx, ref)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.ID != id {
		// Reset already released the slot; a newer call may hold it now
		return domain.NewError(domain.KindUnknown, "capture discarded", ErrSessionReset)
	}
	c.inFlight = false
	if err != nil {
		return c.failLocked(collaboratorKind(err), "could not read the captured photo", err)
	}
	c.session.Image = img
	return c.transitionLocked(domain.StatusImageReady, "photo captured")
}

// PickFromGallery asks the picker for an image. A user cancel returns the
// session to idle without an error.
func (c *Controller) PickFromGallery(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardLocked(domain.StatusImageReady, "pick from gallery"); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.beginLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.session.Status == domain.StatusIdle {
		c.renewLocked()
	}
	id := c.session.ID
	c.mu.Unlock()

	img, err := c.pick(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.ID != id {
		return domain.NewError(domain.KindUnknown, "selection discarded", ErrSessionReset)
	}
	c.inFlight = false
	switch {
	case errors.Is(err, domain.ErrPickCancelled):
		c.log.Debug("Gallery pick cancelled", "session_id", id)
		c.resetLocked()
		return nil
	case err != nil:
		return c.failLocked(collaboratorKind(err), "could not load the selected image", err)
	}
	c.session.Image = img
	return c.transitionLocked(domain.StatusImageReady, "image selected")
}

func (c *Controller) pick(ctx context.Context) (*domain.ImagePayload, error) {
	if c.deps.Picker == nil {
		return nil, errors.New("no image picker configured")
	}
	ref, err := c.deps.Picker.Pick(ctx)
	if err != nil {
		return nil, err
	}
	return c.normalize(ctx, ref)
}

func (c *Controller) normalize(ctx context.Context, ref string) (*domain.ImagePayload, error) {
	if c.deps.Normalizer == nil {
		return nil, errors.New("no image normalizer configured")
	}
	img, err := c.deps.Normalizer.Normalize(ctx, ref)
	if err != nil {
		return nil, err
	}
	if img == nil || len(img.Data) == 0 {
		return nil, fmt.Errorf("normalizer returned no image data for %q", ref)
	}
	return img, nil
}

// ExtractIngredients runs ingredient extraction on the session image.
// On success the extracted names seed the editable list.
func (c *Controller) ExtractIngredients(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardLocked(domain.StatusExtracting, "extract ingredients"); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.session.Image == nil {
		defer c.mu.Unlock()
		return domain.NewError(domain.KindValidation, "no image to extract from", ErrInvalidTransition)
	}
	id := c.session.ID
	img := c.session.Image.Clone()
	if err := c.transitionLocked(domain.StatusExtracting, "extraction requested"); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	raw, callErr := c.deps.Generator.Generate(ctx, buildExtractionPrompt(),
		inference.Part{MimeType: img.MimeType, Data: img.Data})

	var (
		res    *domain.ExtractionResult
		valErr error
	)
	if callErr == nil {
		res, valErr = validate.Extraction(raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.ID != id || c.session.Status != domain.StatusExtracting {
		c.log.Info("Discarding extraction for reset session", "session_id", id)
		return domain.NewError(domain.KindUnknown, "extraction discarded", ErrSessionReset)
	}
	if callErr != nil {
		return c.failLocked(inferenceKind(callErr), callErr.Error(), callErr)
	}
	if valErr != nil {
		return c.failLocked(domain.KindValidation, "the ingredient list could not be read", valErr)
	}

	names := dedupe(res.Names())
	c.session.ExtractedItems = names
	c.session.EditedItems = append([]string(nil), names...)
	c.session.Notes = res.Notes
	c.session.Warnings = res.Warnings
	return c.transitionLocked(domain.StatusEditing, fmt.Sprintf("%d ingredient(s) extracted", len(names)))
}

// AddIngredient appends name to the editable list. Duplicates (compared
// with Unicode case folding) and blank names are ignored.
func (c *Controller) AddIngredient(name string) error {
	name = strings.TrimSpace(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked("add ingredient"); err != nil {
		return err
	}
	if name == "" || indexFold(c.session.EditedItems, name) >= 0 {
		return nil
	}
	c.session.EditedItems = append(c.session.EditedItems, name)
	c.session.UpdatedAt = c.now()
	return nil
}

// RemoveIngredient drops name from the editable list. Removing a name that
// is not present is a no-op.
func (c *Controller) RemoveIngredient(name string) error {
	name = strings.TrimSpace(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked("remove ingredient"); err != nil {
		return err
	}
	i := indexFold(c.session.EditedItems, name)
	if name == "" || i < 0 {
		return nil
	}
	items := c.session.EditedItems
	c.session.EditedItems = append(items[:i:i], items[i+1:]...)
	c.session.UpdatedAt = c.now()
	return nil
}

func (c *Controller) editableLocked(action string) error {
	switch s := c.session.Status; {
	case s.Busy() || c.inFlight:
		return domain.NewError(domain.KindValidation, action+": "+ErrBusy.Error(), ErrBusy)
	case s == domain.StatusEditing:
		return nil
	case s == domain.StatusFailed && len(c.session.EditedItems) > 0:
		return nil
	default:
		return c.invalidLocked(action)
	}
}

// GenerateRecipe asks for a recipe built from the edited list plus pantry
// staples. An empty list fails with a validation error before any call is
// made. Failures keep the edited list so the user can try again.
func (c *Controller) GenerateRecipe(ctx context.Context, prefs *Preferences) error {
	return c.generate(ctx, prefs, "generation requested")
}

// Regenerate discards the current draft and generates again. It does
// nothing unless confirmed is true.
func (c *Controller) Regenerate(ctx context.Context, confirmed bool, prefs *Preferences) error {
	if !confirmed {
		return nil
	}
	return c.generate(ctx, prefs, "regeneration requested")
}

func (c *Controller) generate(ctx context.Context, prefs *Preferences, reason string) error {
	c.mu.Lock()
	if c.session.Status.Busy() || c.inFlight {
		defer c.mu.Unlock()
		return domain.NewError(domain.KindValidation, "generate recipe: "+ErrBusy.Error(), ErrBusy)
	}
	if len(c.session.EditedItems) == 0 {
		defer c.mu.Unlock()
		if s := c.session.Status; s != domain.StatusFailed && !CanTransition(s, domain.StatusFailed) {
			return domain.NewError(domain.KindValidation, "add at least one ingredient first", ErrInvalidTransition)
		}
		return c.failLocked(domain.KindValidation, "add at least one ingredient first", nil)
	}
	if err := c.guardLocked(domain.StatusGenerating, "generate recipe"); err != nil {
		c.mu.Unlock()
		return err
	}
	id := c.session.ID
	items := append([]string(nil), c.session.EditedItems...)
	c.session.Draft = nil
	if err := c.transitionLocked(domain.StatusGenerating, reason); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	pantry := c.pantryItems(ctx)
	raw, callErr := c.deps.Generator.Generate(ctx, buildGenerationPrompt(items, pantry, prefs))

	var (
		draft  *domain.GenerationResult
		valErr error
	)
	if callErr == nil {
		draft, valErr = validate.Generation(raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.ID != id || c.session.Status != domain.StatusGenerating {
		c.log.Info("Discarding generation for reset session", "session_id", id)
		return domain.NewError(domain.KindUnknown, "generation discarded", ErrSessionReset)
	}
	if callErr != nil {
		return c.failLocked(inferenceKind(callErr), callErr.Error(), callErr)
	}
	if valErr != nil {
		return c.failLocked(domain.KindValidation, "the recipe could not be read", valErr)
	}

	c.session.Draft = draft
	return c.transitionLocked(domain.StatusResult, "recipe generated")
}

func (c *Controller) pantryItems(ctx context.Context) []string {
	if c.deps.Pantry == nil {
		return nil
	}
	items, err := c.deps.Pantry.Items(ctx)
	if err != nil {
		// Pantry is optional context; generate without it
		c.log.Warn("Failed to load pantry", "error", err)
		return nil
	}
	return dedupe(items)
}

// CommitResult turns the draft into a Recipe and enqueues exactly one create
// task for it. It does not wait for the queue to drain. On success the
// session is cleared.
func (c *Controller) CommitResult(ctx context.Context) (*domain.Recipe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return nil, domain.NewError(domain.KindValidation, "commit result: "+ErrBusy.Error(), ErrBusy)
	}
	if c.session.Status != domain.StatusResult || c.session.Draft == nil {
		return nil, c.invalidLocked("commit result")
	}

	recipe, err := c.buildRecipeLocked()
	if err != nil {
		return nil, domain.NewError(domain.KindUnknown, "could not create recipe id", err)
	}

	task, err := c.deps.Queue.Enqueue(ctx, domain.TaskCreate, domain.EntityRecipe, recipe.ID, recipe)
	if err != nil {
		// Draft stays in place so the commit can be retried
		return nil, domain.NewError(domain.KindUnknown, "could not save the recipe", err)
	}

	c.log.Info("Recipe committed",
		"session_id", c.session.ID,
		"recipe_id", recipe.ID,
		"task_id", task.ID,
	)
	c.resetLocked()
	return recipe, nil
}

func (c *Controller) buildRecipeLocked() (*domain.Recipe, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	d := c.session.Draft.Clone()
	r := &domain.Recipe{
		ID:             id.String(),
		Title:          d.Title,
		Description:    d.Description,
		TimeMinutes:    d.TimeMinutes,
		Servings:       d.Servings,
		Category:       d.Category,
		Ingredients:    d.Ingredients,
		Steps:          d.Steps,
		Nutrition:      d.Nutrition,
		SafetyWarnings: d.SafetyWarnings,
		Source:         domain.RecipeSourceCapture,
		CreatedAt:      c.now().UTC(),
	}
	if c.session.Image != nil {
		r.SourceImage = c.session.Image.Reference
	}
	return r, nil
}

// Reset clears the session and returns to idle from any status. A call in
// flight keeps running but its result is discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	prev := c.session
	c.session = &domain.CaptureSession{Status: domain.StatusIdle, UpdatedAt: c.now()}
	c.inFlight = false
	if prev.Status != domain.StatusIdle {
		c.recordLocked(Transition{
			SessionID: prev.ID,
			From:      prev.Status,
			To:        domain.StatusIdle,
			Reason:    "reset",
			Timestamp: c.now(),
		})
	}
}

// renewLocked starts a fresh session record, keeping only the status.
func (c *Controller) renewLocked() {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := c.now()
	c.session = &domain.CaptureSession{
		ID:        id.String(),
		Status:    c.session.Status,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// guardLocked rejects actions while busy and checks the transition table.
func (c *Controller) guardLocked(to Status, action string) error {
	if c.session.Status.Busy() || c.inFlight {
		return domain.NewError(domain.KindValidation, action+": "+ErrBusy.Error(), ErrBusy)
	}
	if !CanTransition(c.session.Status, to) {
		return c.invalidLocked(action)
	}
	return nil
}

func (c *Controller) beginLocked() error {
	if c.inFlight {
		return domain.NewError(domain.KindValidation, ErrBusy.Error(), ErrBusy)
	}
	c.inFlight = true
	return nil
}

func (c *Controller) invalidLocked(action string) error {
	return domain.NewError(domain.KindValidation,
		fmt.Sprintf("cannot %s while %s", action, c.session.Status),
		ErrInvalidTransition)
}

func (c *Controller) transitionLocked(to Status, reason string) error {
	t := Transition{
		SessionID: c.session.ID,
		From:      c.session.Status,
		To:        to,
		Reason:    reason,
		Timestamp: c.now(),
	}
	if !t.IsValid() {
		return domain.NewError(domain.KindUnknown,
			fmt.Sprintf("cannot transition from %s to %s", t.From, t.To),
			ErrInvalidTransition)
	}
	c.session.Status = to
	c.session.UpdatedAt = t.Timestamp
	if to != domain.StatusFailed {
		c.session.LastError = nil
	}
	c.recordLocked(t)
	return nil
}

func (c *Controller) recordLocked(t Transition) {
	metrics.SessionTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
	c.log.Debug("Session transition",
		"session_id", t.SessionID,
		"from", t.From,
		"to", t.To,
		"reason", t.Reason,
	)
	if c.onTransition != nil {
		c.onTransition(t)
	}
}

// failLocked moves to failed and records the error. Edited items, the image
// and any extracted items are left untouched. A session that is already
// failed only has its error replaced.
func (c *Controller) failLocked(kind domain.ErrorKind, msg string, err error) error {
	de := domain.NewError(kind, msg, err)
	c.log.Warn("Capture step failed",
		"session_id", c.session.ID,
		"status", c.session.Status,
		"kind", kind,
		"error", err,
	)
	if c.session.Status != domain.StatusFailed {
		if terr := c.transitionLocked(domain.StatusFailed, string(kind)); terr != nil {
			return terr
		}
	}
	c.session.LastError = de
	c.session.UpdatedAt = c.now()
	return de
}

func inferenceKind(err error) domain.ErrorKind {
	if reason, ok := inference.ReasonOf(err); ok && reason == inference.ReasonNetwork {
		return domain.KindNetwork
	}
	return domain.KindAI
}

func collaboratorKind(err error) domain.ErrorKind {
	if errors.Is(err, domain.ErrPermissionDenied) {
		return domain.KindPermission
	}
	return domain.KindCamera
}

func dedupe(names []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := fold.String(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

func indexFold(items []string, name string) int {
	fold := cases.Fold()
	key := fold.String(name)
	for i, it := range items {
		if fold.String(it) == key {
			return i
		}
	}
	return -1
}
