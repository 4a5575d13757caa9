package repos_test

import (
	"context"
	"errors"
	"testing"

	"github.com/formbridge/benefits-backend/internal/data/repos"
	"github.com/formbridge/benefits-backend/internal/data/repos/testutil"
	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
)

func TestGetDraftVersionOrCreateIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	none, err := repo.GetDraftVersion(dbc)
	if err != nil {
		t.Fatalf("GetDraftVersion: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no draft in empty ledger, got version %d", none.ID)
	}

	first, err := repo.GetDraftVersionOrCreate(dbc)
	if err != nil {
		t.Fatalf("GetDraftVersionOrCreate: %v", err)
	}
	second, err := repo.GetDraftVersionOrCreate(dbc)
	if err != nil {
		t.Fatalf("GetDraftVersionOrCreate again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same draft both times, got %d then %d", first.ID, second.ID)
	}
	if first.LifecycleStage != domain.StageDraft {
		t.Fatalf("expected draft stage, got %s", first.LifecycleStage)
	}
}

func TestGetActiveVersion(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	if _, err := repo.GetActiveVersion(dbc); !errors.Is(err, domain.ErrNoActiveVersion) {
		t.Fatalf("expected ErrNoActiveVersion, got %v", err)
	}

	active := testutil.SeedVersion(t, ctx, db, domain.StageActive)
	got, err := repo.GetActiveVersion(dbc)
	if err != nil {
		t.Fatalf("GetActiveVersion: %v", err)
	}
	if got.ID != active.ID {
		t.Fatalf("expected active version %d, got %d", active.ID, got.ID)
	}
}

func TestGetPreviousVersion(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	oldest := testutil.SeedVersion(t, ctx, db, domain.StageObsolete)
	newer := testutil.SeedVersion(t, ctx, db, domain.StageObsolete)
	active := testutil.SeedVersion(t, ctx, db, domain.StageActive)

	prev, err := repo.GetPreviousVersion(dbc, active)
	if err != nil {
		t.Fatalf("GetPreviousVersion: %v", err)
	}
	if prev == nil || prev.ID != newer.ID {
		t.Fatalf("expected previous version %d, got %+v", newer.ID, prev)
	}

	prev, err = repo.GetPreviousVersion(dbc, oldest)
	if err != nil {
		t.Fatalf("GetPreviousVersion of oldest: %v", err)
	}
	if prev != nil {
		t.Fatalf("expected no version before the oldest, got %d", prev.ID)
	}
}

func TestSetLifecycleStage(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	draft := testutil.SeedVersion(t, ctx, db, domain.StageDraft)
	if err := repo.SetLifecycleStage(dbc, draft, domain.StageObsolete); err == nil {
		t.Fatal("expected draft -> obsolete to be rejected")
	}
	if err := repo.SetLifecycleStage(dbc, draft, domain.StageActive); err != nil {
		t.Fatalf("draft -> active: %v", err)
	}

	reread, err := repo.GetVersionByID(dbc, draft.ID)
	if err != nil {
		t.Fatalf("GetVersionByID: %v", err)
	}
	if reread.LifecycleStage != domain.StageActive {
		t.Fatalf("expected persisted stage active, got %s", reread.LifecycleStage)
	}
}

func TestVersionMembership(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	version := testutil.SeedVersion(t, ctx, db, domain.StageDraft)
	q1 := testutil.SeedQuestion(t, ctx, db, "applicant name", version)
	q2 := testutil.SeedQuestion(t, ctx, db, "household size", version)
	p1 := testutil.SeedProgram(t, ctx, db, testutil.OneBlockProgram("food-assistance", q1.ID), version)

	questions, err := repo.GetQuestionsForVersion(dbc, version)
	if err != nil {
		t.Fatalf("GetQuestionsForVersion: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	count, err := repo.GetQuestionCountForVersion(dbc, version)
	if err != nil || count != 2 {
		t.Fatalf("expected question count 2, got %d (err %v)", count, err)
	}
	count, err = repo.GetProgramCountForVersion(dbc, version)
	if err != nil || count != 1 {
		t.Fatalf("expected program count 1, got %d (err %v)", count, err)
	}

	byName, err := repo.GetQuestionByNameForVersion(dbc, "household size", version)
	if err != nil {
		t.Fatalf("GetQuestionByNameForVersion: %v", err)
	}
	if byName == nil || byName.ID != q2.ID {
		t.Fatalf("expected question %d by name, got %+v", q2.ID, byName)
	}
	missing, err := repo.GetQuestionByNameForVersion(dbc, "no such question", version)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown name, got %+v (err %v)", missing, err)
	}

	if err := repo.RemoveQuestion(dbc, version, q1); err != nil {
		t.Fatalf("RemoveQuestion: %v", err)
	}
	names, err := repo.GetQuestionNamesForVersion(dbc, version)
	if err != nil {
		t.Fatalf("GetQuestionNamesForVersion: %v", err)
	}
	if names["applicant name"] || !names["household size"] {
		t.Fatalf("unexpected names after removal: %v", names)
	}

	programByName, err := repo.GetProgramByNameForVersion(dbc, "food-assistance", version)
	if err != nil {
		t.Fatalf("GetProgramByNameForVersion: %v", err)
	}
	if programByName == nil || programByName.ID != p1.ID {
		t.Fatalf("expected program %d by name, got %+v", p1.ID, programByName)
	}
}

func TestTombstonePersistence(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	version := testutil.SeedVersion(t, ctx, db, domain.StageDraft)
	question := testutil.SeedQuestion(t, ctx, db, "income", version)
	outsider := testutil.SeedQuestion(t, ctx, db, "outsider")

	added, err := repo.AddTombstoneForQuestion(dbc, version, question)
	if err != nil {
		t.Fatalf("AddTombstoneForQuestion: %v", err)
	}
	if !added {
		t.Fatal("expected first tombstone to report added")
	}
	added, err = repo.AddTombstoneForQuestion(dbc, version, question)
	if err != nil {
		t.Fatalf("AddTombstoneForQuestion again: %v", err)
	}
	if added {
		t.Fatal("expected duplicate tombstone to report not added")
	}

	var notFound *domain.QuestionNotFoundError
	if _, err := repo.AddTombstoneForQuestion(dbc, version, outsider); !errors.As(err, &notFound) {
		t.Fatalf("expected QuestionNotFoundError for non-member, got %v", err)
	}

	reread, err := repo.GetVersionByID(dbc, version.ID)
	if err != nil {
		t.Fatalf("GetVersionByID: %v", err)
	}
	if !reread.QuestionIsTombstoned("income") {
		t.Fatal("expected tombstone to survive a round trip")
	}

	removed, err := repo.RemoveTombstoneForQuestion(dbc, reread, question)
	if err != nil || !removed {
		t.Fatalf("RemoveTombstoneForQuestion: removed=%v err=%v", removed, err)
	}
	reread, err = repo.GetVersionByID(dbc, version.ID)
	if err != nil {
		t.Fatalf("GetVersionByID: %v", err)
	}
	if reread.QuestionIsTombstoned("income") {
		t.Fatal("expected tombstone removal to persist")
	}
}

func TestGetLatestVersionOfQuestion(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	active := testutil.SeedVersion(t, ctx, db, domain.StageActive)
	draft := testutil.SeedVersion(t, ctx, db, domain.StageDraft)
	activeRow := testutil.SeedQuestion(t, ctx, db, "address", active)
	draftRow := testutil.SeedQuestion(t, ctx, db, "address", draft)
	activeOnly := testutil.SeedQuestion(t, ctx, db, "phone", active)

	latest, err := repo.GetLatestVersionOfQuestion(dbc, activeRow.ID)
	if err != nil {
		t.Fatalf("GetLatestVersionOfQuestion: %v", err)
	}
	if latest == nil || latest.ID != draftRow.ID {
		t.Fatalf("expected draft row %d, got %+v", draftRow.ID, latest)
	}

	latest, err = repo.GetLatestVersionOfQuestion(dbc, activeOnly.ID)
	if err != nil {
		t.Fatalf("GetLatestVersionOfQuestion (active only): %v", err)
	}
	if latest == nil || latest.ID != activeOnly.ID {
		t.Fatalf("expected active row %d, got %+v", activeOnly.ID, latest)
	}

	var notFound *domain.QuestionNotFoundError
	if _, err := repo.GetLatestVersionOfQuestion(dbc, 99999); !errors.As(err, &notFound) {
		t.Fatalf("expected QuestionNotFoundError, got %v", err)
	}
}

func TestBuildReferencingProgramsMap(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	version := testutil.SeedVersion(t, ctx, db, domain.StageDraft)
	q1 := testutil.SeedQuestion(t, ctx, db, "income", version)
	q2 := testutil.SeedQuestion(t, ctx, db, "address", version)
	testutil.SeedProgram(t, ctx, db, testutil.OneBlockProgram("cash-aid", q1.ID, q2.ID), version)
	testutil.SeedProgram(t, ctx, db, testutil.OneBlockProgram("housing", q2.ID), version)

	refs, err := repo.BuildReferencingProgramsMap(dbc, version)
	if err != nil {
		t.Fatalf("BuildReferencingProgramsMap: %v", err)
	}
	if len(refs["income"]) != 1 || refs["income"][0].AdminName != "cash-aid" {
		t.Fatalf("unexpected referencing programs for income: %+v", refs["income"])
	}
	if len(refs["address"]) != 2 {
		t.Fatalf("expected 2 programs referencing address, got %d", len(refs["address"]))
	}
}

func TestGetProgramQuestionNamesInVersion(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewVersionRepo(db, nil, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	version := testutil.SeedVersion(t, ctx, db, domain.StageActive)
	q1 := testutil.SeedQuestion(t, ctx, db, "income", version)

	// References one member question and one id the version does not know.
	def := testutil.OneBlockProgram("cash-aid", q1.ID, 424242)
	names, err := repo.GetProgramQuestionNamesInVersion(dbc, def, version)
	if err != nil {
		t.Fatalf("GetProgramQuestionNamesInVersion: %v", err)
	}
	if len(names) != 1 || !names["income"] {
		t.Fatalf("expected only the member question name, got %v", names)
	}
}
