package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/repo"
)

// DefinitionsFn открывает репозиторий описаний. Возвращаемая функция
// освобождает соединение.
type DefinitionsFn func(ctx context.Context) (*repo.DefinitionRepo, func(), error)

// readDefinition читает и компилирует описание из файла.
func readDefinition(path string) (*engine.Definition, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return engine.Load(domain.DefinitionTypeStatechartJSON, body)
}

// NewValidateCmd создаёт команду проверки описания.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a statechart-json definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			def, err := readDefinition(args[0])
			if err != nil {
				return err
			}
			report := engine.Inspect(def)

			rows := make([][]string, len(report.States))
			for i, s := range report.States {
				name := s.Name
				if name == report.Initial {
					name += " (initial)"
				}
				rows[i] = []string{name, strconv.FormatBool(s.Final), strings.Join(s.Events, ",")}
			}

			if err := out.Print([]string{"STATE", "FINAL", "EVENTS"}, rows, report); err != nil {
				return err
			}

			for _, s := range report.Unreachable {
				out.Warn(fmt.Sprintf("state %s is unreachable from %s", s, report.Initial))
			}
			for _, s := range report.DeadEnds {
				out.Warn(fmt.Sprintf("state %s has no transitions and is not final", s))
			}
			out.Success(fmt.Sprintf("Definition %s v%d is valid", report.ID, report.Version))
			return nil
		},
	}
}

// NewDefinitionCmd создаёт группу команд для описаний в PostgreSQL.
func NewDefinitionCmd(defsFn DefinitionsFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "definition",
		Short: "Manage stored definitions",
	}

	cmd.AddCommand(
		newDefinitionPushCmd(defsFn, outputFn),
		newDefinitionVersionsCmd(defsFn, outputFn),
	)

	return cmd
}

func newDefinitionPushCmd(defsFn DefinitionsFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "push FILE",
		Short: "Validate and store a definition version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read definition: %w", err)
			}
			spec, err := engine.ParseJSON(body)
			if err != nil {
				return err
			}

			defs, closeFn, err := defsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := defs.Save(cmd.Context(), spec); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Definition stored: %s v%d", spec.ID, spec.EffectiveVersion()))
			return nil
		},
	}
}

func newDefinitionVersionsCmd(defsFn DefinitionsFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "versions ID",
		Short: "List stored versions of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			defs, closeFn, err := defsFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			versions, err := defs.ListVersions(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(versions))
			for i, v := range versions {
				rows[i] = []string{args[0], strconv.Itoa(v)}
			}
			return out.Print([]string{"ID", "VERSION"}, rows, versions)
		},
	}
}
