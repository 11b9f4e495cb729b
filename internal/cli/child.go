package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/domain"
)

// SenderFn открывает транспорт для child.invoke. Возвращаемая функция
// освобождает соединение.
type SenderFn func(ctx context.Context) (child.Sender, func(), error)

// NewChildCmd создаёт группу команд для дочерних workflow.
func NewChildCmd(senderFn SenderFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "child",
		Short: "Invoke child workflows through the broker",
	}

	cmd.AddCommand(newChildInvokeCmd(senderFn, outputFn))
	return cmd
}

func newChildInvokeCmd(senderFn SenderFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke FILE",
		Short: "Publish child workflow metadata to child.invoke",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			metadata, err := readMetadata(args[0])
			if err != nil {
				return err
			}

			sender, closeFn, err := senderFn(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := child.NewPublisher(sender).InvokeChildWorkflow(cmd.Context(), metadata); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Child invoked: %s (%s)", metadata.Name, metadata.RuntimeID))
			return nil
		},
	}
}

// readMetadata читает domain.ChildWorkflowMetadata из файла.
// Пустой runtimeId заменяется новым UUID, версия <= 0 — на 1.
func readMetadata(path string) (domain.ChildWorkflowMetadata, error) {
	var metadata domain.ChildWorkflowMetadata

	body, err := os.ReadFile(path)
	if err != nil {
		return metadata, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(body, &metadata); err != nil {
		return metadata, fmt.Errorf("parse metadata: %w", err)
	}

	if metadata.DefinitionID == "" {
		return metadata, fmt.Errorf("metadata %s: definitionId is empty", path)
	}
	if metadata.RuntimeID == "" {
		metadata.RuntimeID = uuid.NewString()
	}
	if metadata.Version <= 0 {
		metadata.Version = 1
	}
	return metadata, nil
}
