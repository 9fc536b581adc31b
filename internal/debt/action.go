package debt

import (
	"context"
	"strings"
)

// Verb — действие из callback-токена вида debt_<verb>_<id>.
type Verb string

const (
	VerbAccept        Verb = "accept"
	VerbReject        Verb = "reject"
	VerbConfirmDelete Verb = "confirmdelete"
	VerbRejectDelete  Verb = "rejectdelete"
	VerbAcceptEdit    Verb = "acceptedit"
	VerbRejectEdit    Verb = "rejectedit"
	VerbSnooze        Verb = "snooze"
)

// Token собирает callback-токен кнопки.
func Token(v Verb, id string) string {
	return "debt_" + string(v) + "_" + id
}

// ParseToken разбирает токен детерминированно: ok=false только для
// структурно неверных данных, неизвестный глагол возвращается как есть
// и отсеивается в HandleAction без мутации состояния.
func ParseToken(data string) (Verb, string, bool) {
	parts := strings.SplitN(data, "_", 3)
	if len(parts) != 3 || parts[0] != "debt" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return Verb(parts[1]), parts[2], true
}

// HandleAction — вход для нажатий кнопок подтверждения.
func (e *Engine) HandleAction(ctx context.Context, userID int64, data string) (Result, error) {
	verb, id, ok := ParseToken(data)
	if !ok {
		return fail("Неизвестное действие."), nil
	}
	switch verb {
	case VerbAccept, VerbReject:
		return e.ResolveApproval(ctx, userID, id, verb == VerbAccept)
	case VerbConfirmDelete, VerbRejectDelete:
		return e.ResolveDeletion(ctx, userID, id, verb == VerbConfirmDelete)
	case VerbAcceptEdit, VerbRejectEdit:
		return e.ResolveEdit(ctx, userID, id, verb == VerbAcceptEdit)
	case VerbSnooze:
		return e.Snooze(ctx, userID, id)
	default:
		return fail("Неизвестное действие."), nil
	}
}
