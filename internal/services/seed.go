package services

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/pkg/dbctx"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
)

// SeedFile is the on-disk shape of a seed document. Blocks reference
// questions by name; row ids are assigned while seeding.
type SeedFile struct {
	Questions []SeedQuestion `yaml:"questions"`
	Programs  []SeedProgram  `yaml:"programs"`
}

type SeedQuestion struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Text        string `yaml:"text"`
	Type        string `yaml:"type"`
}

type SeedProgram struct {
	AdminName        string      `yaml:"admin_name"`
	AdminDescription string      `yaml:"admin_description"`
	Blocks           []SeedBlock `yaml:"blocks"`
}

type SeedBlock struct {
	Name      string   `yaml:"name"`
	Questions []string `yaml:"questions"`
}

// Seeder loads a seed document through the version engine: questions
// and programs are created as draft revisions, then published.
type Seeder struct {
	svc *VersionService
	log *logger.Logger
}

func NewSeeder(svc *VersionService, baseLog *logger.Logger) *Seeder {
	return &Seeder{svc: svc, log: baseLog.With("service", "Seeder")}
}

func (s *Seeder) SeedFromFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var file SeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return s.Apply(ctx, file)
}

// Apply creates every seed entity as a draft and publishes the result.
func (s *Seeder) Apply(ctx context.Context, file SeedFile) error {
	dbc := dbctx.New(ctx)

	questionIDs := make(map[string]int64, len(file.Questions))
	for _, sq := range file.Questions {
		row, err := s.svc.CreateOrUpdateQuestionDraft(dbc, domain.QuestionDefinition{
			Name:         sq.Name,
			Description:  sq.Description,
			QuestionText: sq.Text,
			QuestionType: sq.Type,
		})
		if err != nil {
			return fmt.Errorf("seed question %q: %w", sq.Name, err)
		}
		questionIDs[sq.Name] = row.ID
	}

	for _, sp := range file.Programs {
		def := domain.ProgramDefinition{
			AdminName:        sp.AdminName,
			AdminDescription: sp.AdminDescription,
		}
		for i, sb := range sp.Blocks {
			block := domain.BlockDefinition{
				ID:   int64(i + 1),
				Name: sb.Name,
			}
			for _, questionName := range sb.Questions {
				id, ok := questionIDs[questionName]
				if !ok {
					return fmt.Errorf("seed program %q: block %q references unknown question %q", sp.AdminName, sb.Name, questionName)
				}
				block.QuestionIDs = append(block.QuestionIDs, id)
			}
			def.Blocks = append(def.Blocks, block)
		}
		if _, err := s.svc.CreateOrUpdateProgramDraft(dbc, def); err != nil {
			return fmt.Errorf("seed program %q: %w", sp.AdminName, err)
		}
	}

	published, err := s.svc.Publish(ctx)
	if err != nil {
		return fmt.Errorf("publish seed data: %w", err)
	}
	s.log.Info("seeded and published",
		"version_id", published.ID,
		"questions", len(file.Questions),
		"programs", len(file.Programs))
	return nil
}
