package application

import (
	"context"

	"voicechat/internal/domain"
)

// HistoryStore is the durable conversation log.
//
// LoadWindow never fails: storage that is missing or cannot be parsed is an
// empty log. AppendTurn and Reset report write failures.
type HistoryStore interface {
	LoadWindow(ctx context.Context, maxRecent int) []domain.Turn
	AppendTurn(ctx context.Context, userText, assistantText string) error
	Reset(ctx context.Context) error
}
