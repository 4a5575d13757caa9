package repos_test

import (
	"context"
	"testing"

	"github.com/formbridge/benefits-backend/internal/data/repos"
	"github.com/formbridge/benefits-backend/internal/data/repos/testutil"
	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
)

func TestQuestionInsertStampsDefinition(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewQuestionRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	question, err := domain.NewQuestion(domain.QuestionDefinition{
		ID:           424242, // stale id from a previous row, must be discarded
		Name:         "applicant name",
		QuestionText: "What is your name?",
		QuestionType: "text",
	})
	if err != nil {
		t.Fatalf("NewQuestion: %v", err)
	}

	inserted, err := repo.Insert(dbc, question)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	def, err := inserted.QuestionDefinition()
	if err != nil {
		t.Fatalf("QuestionDefinition: %v", err)
	}
	if def.ID != inserted.ID {
		t.Fatalf("expected payload id %d to match row id, got %d", inserted.ID, def.ID)
	}

	reread, err := repo.GetByID(dbc, inserted.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reread == nil || reread.Name != "applicant name" {
		t.Fatalf("unexpected reread row: %+v", reread)
	}
}

func TestQuestionUpdateRotatesToken(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewQuestionRepo(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	question := testutil.SeedQuestion(t, ctx, db, "income")
	before := question.ConcurrencyToken

	def, err := question.QuestionDefinition()
	if err != nil {
		t.Fatalf("QuestionDefinition: %v", err)
	}
	def.QuestionText = "What is your monthly income?"
	if err := question.SetDefinition(def); err != nil {
		t.Fatalf("SetDefinition: %v", err)
	}
	if err := repo.Update(dbc, question); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reread, err := repo.GetByID(dbc, question.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reread.ConcurrencyToken == before {
		t.Fatal("expected concurrency token to rotate on update")
	}
	redef, err := reread.QuestionDefinition()
	if err != nil {
		t.Fatalf("QuestionDefinition after update: %v", err)
	}
	if redef.QuestionText != "What is your monthly income?" {
		t.Fatalf("expected updated text, got %q", redef.QuestionText)
	}
}

func TestQuestionGetByIDMissing(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewQuestionRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	got, err := repo.GetByID(dbc, 12345)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing row, got %+v", got)
	}
}
