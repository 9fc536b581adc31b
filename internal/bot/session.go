package bot

import (
	"sync"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// Шаги диалоговых сценариев. Сессия живёт в памяти: перезапуск бота
// просто сбрасывает незавершённый диалог, данные не страдают.
type step string

const (
	stepAddType     step = "add_type"
	stepAddParty    step = "add_party"
	stepAddAmount   step = "add_amount"
	stepAddCurrency step = "add_currency"
	stepAddDueDate  step = "add_due_date"

	stepRepayPick   step = "repay_pick"
	stepRepayAmount step = "repay_amount"

	stepDeletePick step = "delete_pick"

	stepEditPick  step = "edit_pick"
	stepEditField step = "edit_field"
	stepEditValue step = "edit_value"
)

type session struct {
	Step step

	// add
	ListType    domain.ListType
	Party       string
	PartyUserID int64
	Amount      string
	Currency    string

	// repay/delete/edit
	DebtID string
	Field  string
}

type sessions struct {
	mu sync.Mutex
	m  map[int64]*session
}

func newSessions() *sessions {
	return &sessions{m: make(map[int64]*session)}
}

func (s *sessions) get(userID int64) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	return sess, ok
}

func (s *sessions) start(userID int64, st step) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &session{Step: st}
	s.m[userID] = sess
	return sess
}

func (s *sessions) drop(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
