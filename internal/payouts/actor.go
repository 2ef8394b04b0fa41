package payouts

import (
	"context"
	"strings"

	"github.com/angelmondragon/vendor-payouts/pkg/outbox"
)

type actorKey struct{}

// WithActor records who is driving the settlement so emitted events carry it.
func WithActor(ctx context.Context, userID, role string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, &outbox.ActorRef{UserID: userID, Role: role})
}

func actorFromContext(ctx context.Context) *outbox.ActorRef {
	if ctx == nil {
		return nil
	}
	actor, _ := ctx.Value(actorKey{}).(*outbox.ActorRef)
	return actor
}
