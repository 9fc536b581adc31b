package domain

import (
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Status описывает положение долга в жизненном цикле.
// У связанного долга статусы зеркалируются на обеих сторонах.
type Status string

const (
	StatusManual              Status = "manual"
	StatusPendingConfirmation Status = "pending_confirmation" // добавлен по @username, контрагент ещё не в боте
	StatusPendingApproval     Status = "pending_approval"     // ждёт принятия контрагентом
	StatusActive              Status = "active"
	StatusPendingDeletion     Status = "pending_deletion_approval"
	StatusPendingEdit         Status = "pending_edit_approval"
)

// ListType — в каком списке лежит долг с точки зрения владельца записи.
type ListType string

const (
	ListIOwe  ListType = "iOwe"
	ListOweMe ListType = "oweMe"
)

func (t ListType) Opposite() ListType {
	if t == ListIOwe {
		return ListOweMe
	}
	return ListIOwe
}

// Редактируемые поля долга.
const (
	FieldAmount          = "amount"
	FieldCurrency        = "currency"
	FieldDueDate         = "dueDate"
	FieldPartyIdentifier = "partyIdentifier"
)

// PendingEdit — запрошенное, но ещё не подтверждённое изменение.
// NewValue хранится в каноническом строковом виде, чтобы полезная
// нагрузка у обеих сторон сравнивалась структурно.
type PendingEdit struct {
	Field       string          `json:"field"`
	NewValue    string          `json:"newValue"`
	RequestedBy int64           `json:"requestedBy"`
	RepayAmount decimal.Decimal `json:"repayAmount"`
}

func (p *PendingEdit) Equal(other *PendingEdit) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Field == other.Field &&
		p.NewValue == other.NewValue &&
		p.RequestedBy == other.RequestedBy &&
		p.RepayAmount.Equal(other.RepayAmount)
}

type Debt struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	DueDate         string          `json:"dueDate,omitempty"` // DD-MM-YYYY, пусто = без срока
	PartyIdentifier string          `json:"partyIdentifier"`
	PartyUserID     int64           `json:"partyUserId,omitempty"`
	LinkedDebtID    string          `json:"linkedDebtId,omitempty"`
	Status          Status          `json:"status"`
	PendingEdit     *PendingEdit    `json:"pendingEdit,omitempty"`
	CreatedDate     time.Time       `json:"createdDate"`
	SnoozedUntil    *time.Time      `json:"reminderSnoozedUntil,omitempty"`
}

// Linked: у долга есть (или была) зеркальная запись у другого пользователя.
func (d *Debt) Linked() bool {
	return d.LinkedDebtID != "" && d.PartyUserID != 0
}

// Action — вид записи в истории.
type Action string

const (
	ActionRepaid        Action = "repaid"
	ActionPartialRepaid Action = "partial_repaid"
	ActionDeleted       Action = "deleted"
	ActionEdited        Action = "edited"
)

// HistoryEntry — неизменяемый снимок разрешённого долга.
// Каждая сторона ведёт свою историю независимо.
type HistoryEntry struct {
	DebtID          string          `json:"debtId"`
	LinkedDebtID    string          `json:"linkedDebtId,omitempty"`
	PartyIdentifier string          `json:"partyIdentifier"`
	PartyUserID     int64           `json:"partyUserId,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	DueDate         string          `json:"dueDate,omitempty"`
	Type            ListType        `json:"type"`
	Action          Action          `json:"action"`
	ResolvedDate    time.Time       `json:"resolvedDate"`

	// Частичное погашение.
	RepaidAmount    decimal.Decimal `json:"repaidAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`

	// Редактирование.
	EditedField   string `json:"editedField,omitempty"`
	OriginalValue string `json:"originalValue,omitempty"`
	NewValue      string `json:"newValue,omitempty"`
}

// NotificationSettings — гранулярные переключатели уведомлений.
// Выключенный переключатель подавляет сообщение, но никогда не
// блокирует сам переход состояния.
type NotificationSettings struct {
	OnNewPending    bool `json:"onNewPending"`
	OnAccepted      bool `json:"onAccepted"`
	OnRejected      bool `json:"onRejected"`
	OnRepaid        bool `json:"onRepaid"`
	OnDeleteRequest bool `json:"onDeleteRequest"`
	OnDeleteConfirm bool `json:"onDeleteConfirm"`
	OnDeleteReject  bool `json:"onDeleteReject"`
	OnEditRequest   bool `json:"onEditRequest"`
	OnEditConfirm   bool `json:"onEditConfirm"`
	OnEditReject    bool `json:"onEditReject"`
}

type Settings struct {
	Username           string               `json:"username,omitempty"`
	DefaultCurrency    string               `json:"defaultCurrency"`
	ShowNetBalance     bool                 `json:"showNetBalance"`
	RemindersEnabled   bool                 `json:"remindersEnabled"`
	ReminderDaysBefore int                  `json:"reminderDaysBefore"`
	Notifications      NotificationSettings `json:"notificationSettings"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultCurrency:    "RUB",
		ShowNetBalance:     false,
		RemindersEnabled:   false,
		ReminderDaysBefore: 1,
		Notifications: NotificationSettings{
			OnNewPending:    true,
			OnAccepted:      true,
			OnRejected:      true,
			OnRepaid:        true,
			OnDeleteRequest: true,
			OnDeleteConfirm: true,
			OnDeleteReject:  true,
			OnEditRequest:   true,
			OnEditConfirm:   true,
			OnEditReject:    true,
		},
	}
}

type DebtLists struct {
	IOwe  []*Debt `json:"iOwe"`
	OweMe []*Debt `json:"oweMe"`
}

// Snapshot — полная запись одного пользователя. Store читает и пишет
// её только целиком, частичных обновлений нет.
type Snapshot struct {
	Debts      DebtLists        `json:"debts"`
	History    []HistoryEntry   `json:"history"`
	Settings   Settings         `json:"settings"`
	KnownUsers map[int64]string `json:"knownUsers"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Debts:      DebtLists{IOwe: []*Debt{}, OweMe: []*Debt{}},
		History:    []HistoryEntry{},
		Settings:   DefaultSettings(),
		KnownUsers: map[int64]string{},
	}
}

func (s *Snapshot) List(t ListType) []*Debt {
	if t == ListIOwe {
		return s.Debts.IOwe
	}
	return s.Debts.OweMe
}

func (s *Snapshot) SetList(t ListType, list []*Debt) {
	if t == ListIOwe {
		s.Debts.IOwe = list
	} else {
		s.Debts.OweMe = list
	}
}

func (s *Snapshot) Append(t ListType, d *Debt) {
	s.SetList(t, append(s.List(t), d))
}

// FindByID ищет долг в обоих списках.
func (s *Snapshot) FindByID(id string) (*Debt, ListType, bool) {
	for _, t := range []ListType{ListIOwe, ListOweMe} {
		for _, d := range s.List(t) {
			if d.ID == id {
				return d, t, true
			}
		}
	}
	return nil, "", false
}

// FindByLink ищет долг по идентификатору связи и статусу.
// Пустой статус означает «любой».
func (s *Snapshot) FindByLink(linkedID string, status Status) (*Debt, ListType, bool) {
	for _, t := range []ListType{ListIOwe, ListOweMe} {
		for _, d := range s.List(t) {
			if d.LinkedDebtID == linkedID && (status == "" || d.Status == status) {
				return d, t, true
			}
		}
	}
	return nil, "", false
}

func (s *Snapshot) RemoveByID(t ListType, id string) *Debt {
	list := s.List(t)
	for i, d := range list {
		if d.ID == id {
			s.SetList(t, append(list[:i], list[i+1:]...))
			return d
		}
	}
	return nil
}

func (s *Snapshot) RemoveByLink(t ListType, linkedID string) *Debt {
	list := s.List(t)
	for i, d := range list {
		if d.LinkedDebtID == linkedID {
			s.SetList(t, append(list[:i], list[i+1:]...))
			return d
		}
	}
	return nil
}

func (s *Snapshot) AddHistory(e HistoryEntry) {
	s.History = append(s.History, e)
}

// PartyName — отображаемое имя контрагента: сперва кэш knownUsers,
// затем то, что ввёл владелец записи.
func (s *Snapshot) PartyName(d *Debt) string {
	if d.PartyUserID != 0 {
		if name, ok := s.KnownUsers[d.PartyUserID]; ok && name != "" {
			return name
		}
	}
	if d.PartyIdentifier != "" {
		return d.PartyIdentifier
	}
	return "Неизвестный"
}

// DisplayName — имя самого владельца записи для уведомлений другой стороне.
func (s *Snapshot) DisplayName(userID int64) string {
	if s.Settings.Username != "" {
		return s.Settings.Username
	}
	return "User_" + strconv.FormatInt(userID, 10)
}

var SupportedCurrencies = []string{"RUB", "KZT", "USD", "EUR"}

func IsSupportedCurrency(c string) bool {
	for _, s := range SupportedCurrencies {
		if s == c {
			return true
		}
	}
	return false
}

// AmountTolerance — допуск на ошибки округления при сравнении остатков.
var AmountTolerance = decimal.RequireFromString("0.001")

// RoundAmount приводит сумму к двум знакам; применяется при каждой мутации.
func RoundAmount(a decimal.Decimal) decimal.Decimal {
	return a.Round(2)
}

var usernameRe = regexp.MustCompile(`^@[a-zA-Z0-9_]{5,32}$`)

// IsUsername сообщает, похож ли идентификатор контрагента на @username.
func IsUsername(s string) bool {
	return usernameRe.MatchString(s)
}

var dateRe = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

// ParseDueDate разбирает дату DD-MM-YYYY; проверяет и структуру, и
// календарную корректность (31-02-2025 не пройдёт).
func ParseDueDate(s string) (time.Time, bool) {
	if !dateRe.MatchString(s) {
		return time.Time{}, false
	}
	d, err := time.Parse("02-01-2006", s)
	if err != nil {
		return time.Time{}, false
	}
	if d.Year() < 1900 || d.Year() > 2100 {
		return time.Time{}, false
	}
	return d, true
}
