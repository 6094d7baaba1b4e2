package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/snapcook/internal/capture/session"
	"github.com/vietddude/snapcook/internal/control"
	"github.com/vietddude/snapcook/internal/core/domain"
	"github.com/vietddude/snapcook/internal/infra/imaging"
	"github.com/vietddude/snapcook/internal/syncqueue"
)

var (
	captureAdd    []string
	captureRemove []string
	capturePrefs  session.Preferences
	captureJSON   bool
)

var captureCmd = &cobra.Command{
	Use:   "capture [image]",
	Short: "Turn a photo of ingredients into a recipe and queue it for sync",
	Args:  cobra.ExactArgs(1),
	Run:   runCapture,
}

func init() {
	captureCmd.Flags().StringSliceVar(&captureAdd, "add", nil, "ingredients to add after extraction")
	captureCmd.Flags().StringSliceVar(&captureRemove, "remove", nil, "ingredients to remove after extraction")
	captureCmd.Flags().IntVar(&capturePrefs.Servings, "servings", 0, "number of servings")
	captureCmd.Flags().IntVar(&capturePrefs.MaxMinutes, "max-minutes", 0, "maximum total time in minutes")
	captureCmd.Flags().StringVar(&capturePrefs.Diet, "diet", "", "dietary preference, e.g. vegetarian")
	captureCmd.Flags().StringVar(&capturePrefs.Cuisine, "cuisine", "", "preferred cuisine")
	captureCmd.Flags().StringVar(&capturePrefs.Notes, "notes", "", "free-form notes for the recipe")
	captureCmd.Flags().BoolVar(&captureJSON, "json", false, "print the recipe as JSON")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	recipe, err := capture(ctx, app, args[0])
	if err != nil {
		slog.Error("Capture failed", "kind", domain.KindOf(err), "error", err)
		os.Exit(1)
	}

	if captureJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(recipe)
	} else {
		printRecipe(os.Stdout, recipe)
	}

	// Opportunistic sync; the task stays queued if this fails
	report, err := app.Queue().Drain(ctx)
	switch {
	case errors.Is(err, syncqueue.ErrOffline):
		slog.Info("Offline, recipe queued for later sync", "id", recipe.ID)
	case errors.Is(err, syncqueue.ErrDrainInProgress):
		slog.Info("Another process is syncing, recipe queued", "id", recipe.ID)
	case err != nil:
		slog.Warn("Sync deferred", "error", err)
	default:
		slog.Info("Sync finished", "succeeded", report.Succeeded, "failed", report.Failed)
	}
}

// capture drives one session from image to committed recipe.
func capture(ctx context.Context, app *control.App, path string) (*domain.Recipe, error) {
	ctrl := app.NewSession(imaging.PathPicker{Path: path})
	ctrl.SetTransitionCallback(func(t session.Transition) {
		slog.Debug("Session transition", "from", t.From, "to", t.To, "reason", t.Reason)
	})

	if err := ctrl.PickFromGallery(ctx); err != nil {
		return nil, err
	}
	if err := lastError(ctrl); err != nil {
		return nil, err
	}

	slog.Info("Extracting ingredients", "image", path)
	if err := ctrl.ExtractIngredients(ctx); err != nil {
		return nil, err
	}
	snap := ctrl.Snapshot()
	slog.Info("Ingredients found", "items", strings.Join(snap.ExtractedItems, ", "))
	for _, w := range snap.Warnings {
		slog.Warn("Extraction warning", "warning", w)
	}

	for _, name := range captureRemove {
		if err := ctrl.RemoveIngredient(name); err != nil {
			return nil, err
		}
	}
	for _, name := range captureAdd {
		if err := ctrl.AddIngredient(name); err != nil {
			return nil, err
		}
	}

	slog.Info("Generating recipe", "items", strings.Join(ctrl.Snapshot().EditedItems, ", "))
	if err := ctrl.GenerateRecipe(ctx, &capturePrefs); err != nil {
		return nil, err
	}
	return ctrl.CommitResult(ctx)
}

// lastError surfaces a failure the controller recorded on the session
// instead of returning it.
func lastError(ctrl *session.Controller) error {
	snap := ctrl.Snapshot()
	if snap.Status == domain.StatusFailed && snap.LastError != nil {
		return snap.LastError
	}
	if snap.Status == domain.StatusIdle {
		return domain.NewError(domain.KindCamera, "no image selected", domain.ErrPickCancelled)
	}
	return nil
}

func printRecipe(w io.Writer, r *domain.Recipe) {
	fmt.Fprintf(w, "%s\n", r.Title)
	if r.Description != "" {
		fmt.Fprintf(w, "%s\n", r.Description)
	}
	fmt.Fprintf(w, "\nServes %d, %d minutes", r.Servings, r.TimeMinutes)
	if r.Category != "" {
		fmt.Fprintf(w, ", %s", r.Category)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "\nIngredients:")
	for _, ing := range r.Ingredients {
		if ing.Quantity != "" {
			fmt.Fprintf(w, "  - %s %s\n", ing.Quantity, ing.Name)
		} else {
			fmt.Fprintf(w, "  - %s\n", ing.Name)
		}
	}

	fmt.Fprintln(w, "\nSteps:")
	for i, s := range r.Steps {
		fmt.Fprintf(w, "  %d. %s", i+1, s.Text)
		if s.TimerMinutes != nil {
			fmt.Fprintf(w, " (%d min)", *s.TimerMinutes)
		}
		fmt.Fprintln(w)
		if s.Tip != "" {
			fmt.Fprintf(w, "     Tip: %s\n", s.Tip)
		}
	}

	if n := r.Nutrition; n != nil {
		fmt.Fprintf(w, "\nPer serving: %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat\n",
			n.Calories, n.ProteinGrams, n.CarbsGrams, n.FatGrams)
	}
	for _, warn := range r.SafetyWarnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
}
