package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/workflow"
)

// Step — результат одного события в команде run.
type Step struct {
	Event        string          `json:"event"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Transitioned bool            `json:"transitioned"`
	Snapshot     domain.Snapshot `json:"snapshot"`
}

// ParseEvent разбирает аргумент --event: "TYPE" или "TYPE={json payload}".
func ParseEvent(arg string) (domain.Event, error) {
	eventType, payload, hasPayload := strings.Cut(arg, "=")
	if eventType == "" {
		return domain.Event{}, fmt.Errorf("invalid event %q: empty type", arg)
	}

	event := domain.Event{Type: eventType}
	if hasPayload {
		if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
			return domain.Event{}, fmt.Errorf("invalid payload for %s: %w", eventType, err)
		}
	}
	return event, nil
}

// Replay последовательно отправляет события экземпляру.
// При ошибке возвращает уже выполненные шаги.
func Replay(ctx context.Context, inst *workflow.Instance, events []domain.Event) ([]Step, error) {
	steps := make([]Step, 0, len(events))
	for _, event := range events {
		outcome, err := inst.SendEvent(ctx, event)
		if err != nil {
			return steps, fmt.Errorf("event %s: %w", event.Type, err)
		}
		steps = append(steps, Step{
			Event:        event.Type,
			From:         outcome.From,
			To:           outcome.To,
			Transitioned: outcome.Transitioned,
			Snapshot:     inst.Snapshot(),
		})
	}
	return steps, nil
}

// NewRunCmd создаёт команду локального прогона описания.
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	var (
		events      []string
		state       string
		contextJSON string
	)

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Send events to a local instance and print snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			def, err := readDefinition(args[0])
			if err != nil {
				return err
			}

			parsed := make([]domain.Event, len(events))
			for i, arg := range events {
				if parsed[i], err = ParseEvent(arg); err != nil {
					return err
				}
			}

			wc := &domain.WorkflowContext{State: state}
			if contextJSON != "" {
				if err := json.Unmarshal([]byte(contextJSON), &wc.MachineContext); err != nil {
					return fmt.Errorf("invalid --context: %w", err)
				}
			}

			inst, err := workflow.NewClient(workflow.ClientOptions{}).CreateWorkflow(workflow.Options{
				Compiled:        def,
				WorkflowContext: wc,
			})
			if err != nil {
				return err
			}

			start := inst.Snapshot()
			steps, runErr := Replay(cmd.Context(), inst, parsed)

			rows := make([][]string, 0, len(steps)+1)
			rows = append(rows, []string{"0", "-", start.Value, "start", compactJSON(start.Context)})
			for i, s := range steps {
				result := "ignored"
				if s.Transitioned {
					result = "transitioned"
				}
				rows = append(rows, []string{
					strconv.Itoa(i + 1), s.Event, s.Snapshot.Value, result, compactJSON(s.Snapshot.Context),
				})
			}

			if err := out.Print([]string{"STEP", "EVENT", "STATE", "RESULT", "CONTEXT"}, rows, steps); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayVar(&events, "event", nil, "Event TYPE or TYPE={json payload} (repeatable, in order)")
	cmd.Flags().StringVar(&state, "state", "", "Start state (default: initial)")
	cmd.Flags().StringVar(&contextJSON, "context", "", "Start context as JSON object")

	return cmd
}
