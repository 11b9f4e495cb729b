package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/store"
)

// StoreFn открывает хранилище состояний. Возвращаемая функция
// освобождает соединение.
type StoreFn func(ctx context.Context) (store.Store, func(), error)

// NewRecordCmd создаёт группу команд для сохранённых записей.
func NewRecordCmd(storeFn StoreFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect persisted workflow records",
	}

	cmd.AddCommand(
		newRecordListCmd(storeFn, outputFn),
		newRecordGetCmd(storeFn, outputFn),
	)

	return cmd
}

func newRecordListCmd(storeFn StoreFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list ENTITY_ID",
		Short: "List workflows persisted for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			st, closeFn, err := storeFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ids, err := st.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			records := make([]*domain.PersistenceRecord, 0, len(ids))
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rec, err := st.Get(cmd.Context(), id, args[0])
				if err != nil {
					return fmt.Errorf("get %s: %w", id, err)
				}
				records = append(records, rec)
				rows = append(rows, recordRow(id, rec))
			}

			return out.Print([]string{"WORKFLOW_ID", "STATE", "UPDATED", "CONTEXT"}, rows, records)
		},
	}
}

func newRecordGetCmd(storeFn StoreFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get WORKFLOW_ID ENTITY_ID",
		Short: "Show a persisted record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			st, closeFn, err := storeFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := st.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			return out.Print(
				[]string{"WORKFLOW_ID", "STATE", "UPDATED", "CONTEXT"},
				[][]string{recordRow(args[0], rec)},
				rec,
			)
		},
	}
}

func recordRow(workflowID string, rec *domain.PersistenceRecord) []string {
	updated := "-"
	if !rec.UpdatedAt.IsZero() {
		updated = rec.UpdatedAt.Format(time.RFC3339)
	}
	return []string{workflowID, rec.State, updated, compactJSON(rec.Context)}
}
