package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/recipe-backend/internal/data/repos/testutil"
	types "github.com/yungbote/recipe-backend/internal/domain"
	domainjobs "github.com/yungbote/recipe-backend/internal/domain/jobs"
	"github.com/yungbote/recipe-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/recipe-backend/internal/pkg/errors"
)

func TestRecipeJobRunRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewRecipeJobRunRepo(db, testutil.Logger(t))

	run, err := repo.Create(dbc, &types.RecipeJobRun{
		JobKey:     "pancakes",
		SourcePath: "uploads/pancakes.mp4",
		Trigger:    domainjobs.TriggerRPC,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if run.ID == uuid.Nil {
		t.Fatalf("Create: expected generated id")
	}
	if run.Status != domainjobs.StatusQueued || run.Stage != domainjobs.StatusQueued {
		t.Fatalf("Create: want queued got status=%s stage=%s", run.Status, run.Stage)
	}

	if err := repo.MarkRunning(dbc, run.ID, "ingest"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := repo.UpdateStage(dbc, run.ID, "extract"); err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	got, err := repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domainjobs.StatusRunning || got.Stage != "extract" || got.StartedAt == nil {
		t.Fatalf("running row: status=%s stage=%s started=%v", got.Status, got.Stage, got.StartedAt)
	}
	if got.Terminal() {
		t.Fatalf("running row must not be terminal")
	}

	draft := types.RecipeDraft{Title: "Pancakes", Ingredients: []string{"flour"}, Steps: []string{"mix"}}
	raw, _ := json.Marshal(draft)
	stats := types.RunStats{ParseOutcome: "ok", FrameCount: 12, FramesSkipped: 1, TranscriptChars: 40}
	if err := repo.MarkSucceeded(dbc, run.ID, datatypes.JSON(raw), stats); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
	got, err = repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domainjobs.StatusSucceeded || got.FinishedAt == nil || !got.Terminal() {
		t.Fatalf("succeeded row: status=%s finished=%v", got.Status, got.FinishedAt)
	}
	if got.FrameCount != 12 || got.FramesSkipped != 1 || got.TranscriptChars != 40 || got.ParseOutcome != "ok" {
		t.Fatalf("stats: got=%+v", got)
	}
	var back types.RecipeDraft
	if err := json.Unmarshal(got.Result, &back); err != nil || back.Title != "Pancakes" {
		t.Fatalf("result: err=%v draft=%+v", err, back)
	}
}

func TestRecipeJobRunRepoMarkFailed(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewRecipeJobRunRepo(db, testutil.Logger(t))

	run, err := repo.Create(dbc, &types.RecipeJobRun{JobKey: "soup", SourcePath: "uploads/soup.mp4", Trigger: domainjobs.TriggerStorage})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.MarkFailed(dbc, run.ID, "audio", errors.New("no speech")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, err := repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domainjobs.StatusFailed || got.Stage != "audio" || got.Error != "no speech" {
		t.Fatalf("failed row: status=%s stage=%s error=%q", got.Status, got.Stage, got.Error)
	}
}

func TestRecipeJobRunRepoNotFound(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewRecipeJobRunRepo(db, testutil.Logger(t))

	if _, err := repo.GetByID(dbc, uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("GetByID: want ErrNotFound got %v", err)
	}
	if err := repo.UpdateStage(dbc, uuid.New(), "frames"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("UpdateStage: want ErrNotFound got %v", err)
	}
	if err := repo.UpdateStage(dbc, uuid.Nil, "frames"); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("UpdateStage nil id: want ErrInvalidArgument got %v", err)
	}
}

func TestRecipeJobRunRepoListRecent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewRecipeJobRunRepo(db, testutil.Logger(t))

	base := time.Now().UTC().Add(-time.Hour)
	for i, key := range []string{"a", "b", "c"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		if _, err := repo.Create(dbc, &types.RecipeJobRun{
			JobKey:     key,
			SourcePath: "uploads/" + key + ".mp4",
			Trigger:    domainjobs.TriggerRPC,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}); err != nil {
			t.Fatalf("Create %s: %v", key, err)
		}
	}

	rows, err := repo.ListRecent(dbc, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(rows) != 2 || rows[0].JobKey != "c" || rows[1].JobKey != "b" {
		t.Fatalf("ListRecent: got %d rows, first=%v", len(rows), rows)
	}
}
