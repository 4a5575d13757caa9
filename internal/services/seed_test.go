package services_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/formbridge/benefits-backend/internal/data/repos/testutil"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
	"github.com/formbridge/benefits-backend/internal/services"
)

const seedDoc = `
questions:
  - name: applicant name
    text: What is your full name?
    type: text
  - name: household size
    text: How many people live in your household?
    type: number
programs:
  - admin_name: food-assistance
    admin_description: Monthly food benefit
    blocks:
      - name: Personal info
        questions: [applicant name]
      - name: Household
        questions: [household size]
`

func TestSeedFromFilePublishes(t *testing.T) {
	e := newEngine(t)
	dbc := dbctx.New(context.Background())

	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedDoc), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	seeder := services.NewSeeder(e.svc, testutil.Logger(t))
	if err := seeder.SeedFromFile(context.Background(), path); err != nil {
		t.Fatalf("SeedFromFile: %v", err)
	}

	active, err := e.versions.GetActiveVersion(dbc)
	if err != nil {
		t.Fatalf("GetActiveVersion: %v", err)
	}
	questionNames, err := e.versions.GetQuestionNamesForVersion(dbc, active)
	if err != nil {
		t.Fatalf("GetQuestionNamesForVersion: %v", err)
	}
	if !questionNames["applicant name"] || !questionNames["household size"] {
		t.Fatalf("expected seeded questions to be live, got %v", questionNames)
	}

	program, err := e.versions.GetProgramByNameForVersion(dbc, "food-assistance", active)
	if err != nil {
		t.Fatalf("GetProgramByNameForVersion: %v", err)
	}
	if program == nil {
		t.Fatal("expected seeded program to be live")
	}
	def, err := program.ProgramDefinition()
	if err != nil {
		t.Fatalf("ProgramDefinition: %v", err)
	}
	if len(def.Blocks) != 2 || len(def.AllQuestionIDs()) != 2 {
		t.Fatalf("expected two blocks referencing two questions, got %+v", def)
	}
}

func TestSeedUnknownQuestionReference(t *testing.T) {
	e := newEngine(t)
	seeder := services.NewSeeder(e.svc, testutil.Logger(t))

	err := seeder.Apply(context.Background(), services.SeedFile{
		Programs: []services.SeedProgram{{
			AdminName: "broken",
			Blocks:    []services.SeedBlock{{Name: "Screen 1", Questions: []string{"ghost"}}},
		}},
	})
	if err == nil {
		t.Fatal("expected seeding to fail on an unknown question reference")
	}
}
