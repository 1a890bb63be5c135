package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	"github.com/tkoivu/threadline-backend/internal/emitter"
	"github.com/tkoivu/threadline-backend/internal/hooks"
)

func init() {
	rootCmd.AddCommand(helloCmd)
	helloCmd.Flags().StringVar(&runHost, "host", "", "bind address (overrides config)")
	helloCmd.Flags().IntVar(&runPort, "port", 0, "bind port (overrides config)")
}

var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Start the server with a built-in echo assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(helloHooks())
	},
}

// helloHooks is a minimal end-to-end smoke assistant: greet on start,
// echo every message back as a streamed reply.
func helloHooks() *hooks.Registry {
	return &hooks.Registry{
		OnChatStart: func(ctx context.Context, e *emitter.Emitter) error {
			now := chat.ISONow()
			return e.SendStep(ctx, &types.Step{
				ID:        uuid.New(),
				ThreadID:  threadFor(e),
				Type:      chat.StepTypeAssistantMessage,
				Name:      "threadline",
				Output:    "Hi there! Send a message and I will echo it back.",
				CreatedAt: now,
				Start:     &now,
				End:       &now,
			})
		},
		OnMessage: func(ctx context.Context, e *emitter.Emitter, step *types.Step) error {
			now := chat.ISONow()
			reply := &types.Step{
				ID:        uuid.New(),
				ThreadID:  step.ThreadID,
				ParentID:  &step.ID,
				Type:      chat.StepTypeAssistantMessage,
				Name:      "threadline",
				CreatedAt: now,
				Start:     &now,
			}
			if err := e.StreamStart(ctx, reply); err != nil {
				return err
			}
			for _, r := range step.Output {
				if err := e.SendToken(ctx, reply.ID, string(r), false, false); err != nil {
					return err
				}
			}
			return e.SendStep(ctx, reply)
		},
	}
}

func threadFor(e *emitter.Emitter) uuid.UUID {
	sess := e.Session()
	if sess.ThreadID() == uuid.Nil {
		sess.SetThreadID(uuid.New())
	}
	return sess.ThreadID()
}
