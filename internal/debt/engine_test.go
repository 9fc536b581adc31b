package debt

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/notify"
)

// fakeStore хранит снимки как JSON: каждое чтение — глубокая копия,
// как и у настоящих хранилищ. Изменения видны только после Write.
type fakeStore struct {
	data map[int64][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[int64][]byte{}}
}

func (f *fakeStore) Read(_ context.Context, userID int64) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot()
	if b, ok := f.data[userID]; ok {
		if err := json.Unmarshal(b, snap); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (f *fakeStore) Write(_ context.Context, userID int64, snap *domain.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	f.data[userID] = b
	return nil
}

func (f *fakeStore) FindUserByUsername(ctx context.Context, requestingUserID int64, username string) (int64, bool, error) {
	for id := range f.data {
		if id == requestingUserID {
			continue
		}
		snap, err := f.Read(ctx, id)
		if err != nil {
			return 0, false, err
		}
		if snap.Settings.Username != "" && snap.Settings.Username == username {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeStore) AllUserIDs(_ context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.data))
	for id := range f.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type sentMsg struct {
	To       int64
	Text     string
	Controls notify.Controls
}

type fakeDispatcher struct {
	sent    []sentMsg
	failFor map[int64]bool
}

func (f *fakeDispatcher) Send(_ context.Context, to int64, text string, controls notify.Controls) notify.Delivery {
	f.sent = append(f.sent, sentMsg{To: to, Text: text, Controls: controls})
	if f.failFor[to] {
		return notify.Undelivered
	}
	return notify.Delivered
}

func (f *fakeDispatcher) sentTo(to int64) []sentMsg {
	var out []sentMsg
	for _, m := range f.sent {
		if m.To == to {
			out = append(out, m)
		}
	}
	return out
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *fakeStore, *fakeDispatcher) {
	t.Helper()
	st := newFakeStore()
	disp := &fakeDispatcher{failFor: map[int64]bool{}}
	e := New(st, disp)
	e.now = func() time.Time { return testNow }
	return e, st, disp
}

func seedUser(t *testing.T, st *fakeStore, userID int64, username string) {
	t.Helper()
	snap, err := st.Read(context.Background(), userID)
	require.NoError(t, err)
	snap.Settings.Username = username
	require.NoError(t, st.Write(context.Background(), userID, snap))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func snapOf(t *testing.T, st *fakeStore, userID int64) *domain.Snapshot {
	t.Helper()
	snap, err := st.Read(context.Background(), userID)
	require.NoError(t, err)
	return snap
}

// addLinked создаёт связанную пару 1↔2 (пользователь 1 записывает
// «мне должны») и возвращает идентификатор связи.
func addLinked(t *testing.T, e *Engine, st *fakeStore, amount string) string {
	t.Helper()
	res, err := e.Add(context.Background(), 1, AddInput{
		Type:            domain.ListOweMe,
		PartyIdentifier: "@user_two",
		Amount:          dec(amount),
		Currency:        "RUB",
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1 := snapOf(t, st, 1)
	require.Len(t, s1.Debts.OweMe, 1)
	return s1.Debts.OweMe[0].LinkedDebtID
}

func activateLinked(t *testing.T, e *Engine, st *fakeStore, amount string) string {
	t.Helper()
	linkID := addLinked(t, e, st, amount)
	res, err := e.ResolveApproval(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	return linkID
}

func TestAddLinkedCreatesMirroredPair(t *testing.T) {
	e, st, disp := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")

	linkID := addLinked(t, e, st, "1500")

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Len(t, s1.Debts.OweMe, 1)
	require.Len(t, s2.Debts.IOwe, 1)

	d1, d2 := s1.Debts.OweMe[0], s2.Debts.IOwe[0]
	require.Equal(t, domain.StatusPendingApproval, d1.Status)
	require.Equal(t, domain.StatusPendingApproval, d2.Status)
	require.Equal(t, linkID, d2.LinkedDebtID)
	require.NotEqual(t, d1.ID, d2.ID)
	require.Equal(t, int64(2), d1.PartyUserID)
	require.Equal(t, int64(1), d2.PartyUserID)
	require.True(t, d1.Amount.Equal(d2.Amount))

	// Контрагент получил кнопки принятия.
	msgs := disp.sentTo(2)
	require.Len(t, msgs, 1)
	require.Equal(t, Token(VerbAccept, linkID), msgs[0].Controls[0][0].Data)
	require.Equal(t, Token(VerbReject, linkID), msgs[0].Controls[0][1].Data)
}

func TestAddToUnknownUsernameIsPendingConfirmation(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")

	res, err := e.Add(context.Background(), 1, AddInput{
		Type:            domain.ListIOwe,
		PartyIdentifier: "@stranger",
		Amount:          dec("200"),
		Currency:        "USD",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	s1 := snapOf(t, st, 1)
	require.Len(t, s1.Debts.IOwe, 1)
	d := s1.Debts.IOwe[0]
	require.Equal(t, domain.StatusPendingConfirmation, d.Status)
	require.NotEmpty(t, d.LinkedDebtID)
	require.Zero(t, d.PartyUserID)
}

func TestAddManual(t *testing.T) {
	e, st, disp := newTestEngine(t)

	res, err := e.Add(context.Background(), 1, AddInput{
		Type:            domain.ListOweMe,
		PartyIdentifier: "Сосед Петя",
		Amount:          dec("300.505"),
		Currency:        "RUB",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	s1 := snapOf(t, st, 1)
	require.Len(t, s1.Debts.OweMe, 1)
	d := s1.Debts.OweMe[0]
	require.Equal(t, domain.StatusManual, d.Status)
	require.Equal(t, "300.51", d.Amount.StringFixed(2)) // округление до копеек
	require.Empty(t, disp.sent)
}

func TestAddRejectsBadInput(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for name, in := range map[string]AddInput{
		"zero amount":   {Type: domain.ListIOwe, PartyIdentifier: "x", Amount: dec("0"), Currency: "RUB"},
		"bad currency":  {Type: domain.ListIOwe, PartyIdentifier: "x", Amount: dec("1"), Currency: "BTC"},
		"bad date":      {Type: domain.ListIOwe, PartyIdentifier: "x", Amount: dec("1"), Currency: "RUB", DueDate: "31-02-2026"},
		"empty party":   {Type: domain.ListIOwe, PartyIdentifier: "  ", Amount: dec("1"), Currency: "RUB"},
		"bad list type": {Type: "sideways", PartyIdentifier: "x", Amount: dec("1"), Currency: "RUB"},
	} {
		res, err := e.Add(context.Background(), 1, in)
		require.NoError(t, err, name)
		require.False(t, res.Success, name)
	}
}

func TestAcceptActivatesBothSides(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")

	linkID := addLinked(t, e, st, "1000")
	res, err := e.ResolveApproval(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Equal(t, domain.StatusActive, s1.Debts.OweMe[0].Status)
	require.Equal(t, domain.StatusActive, s2.Debts.IOwe[0].Status)
	require.Equal(t, "@user_two", s1.KnownUsers[2])
	require.Equal(t, "@user_one", s2.KnownUsers[1])
}

func TestAcceptTwiceIsIdempotent(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")

	linkID := activateLinked(t, e, st, "1000")

	res, err := e.ResolveApproval(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Message, "уже обработан")

	// Состояние не изменилось.
	require.Equal(t, domain.StatusActive, snapOf(t, st, 1).Debts.OweMe[0].Status)
	require.Equal(t, domain.StatusActive, snapOf(t, st, 2).Debts.IOwe[0].Status)
}

func TestRejectRemovesBothSidesWithoutHistory(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")

	linkID := addLinked(t, e, st, "1000")
	res, err := e.ResolveApproval(context.Background(), 2, linkID, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Empty(t, s1.Debts.OweMe)
	require.Empty(t, s2.Debts.IOwe)
	require.Empty(t, s1.History) // отклонённый долг историей не считается
	require.Empty(t, s2.History)
}

func TestApprovalMirrorMissingSelfHeals(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")

	linkID := addLinked(t, e, st, "1000")

	// Зеркало инициатора пропало.
	s1 := snapOf(t, st, 1)
	s1.Debts.OweMe = nil
	require.NoError(t, st.Write(context.Background(), 1, s1))

	res, err := e.ResolveApproval(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Message, "синхронизации")

	// Осиротевшая запись убрана.
	require.Empty(t, snapOf(t, st, 2).Debts.IOwe)
}

func TestUnknownActionVerbDoesNotMutate(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := addLinked(t, e, st, "1000")

	before := string(st.data[1]) + string(st.data[2])
	for _, data := range []string{"debt_detonate_" + linkID, "garbage", "debt__x", "debt_accept_"} {
		res, err := e.HandleAction(context.Background(), 2, data)
		require.NoError(t, err)
		require.False(t, res.Success)
		require.Equal(t, "Неизвестное действие.", res.Message)
	}
	require.Equal(t, before, string(st.data[1])+string(st.data[2]))
}

func TestFullRepayRemovesBothSides(t *testing.T) {
	e, st, disp := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.Repay(context.Background(), 1, debtID, dec("1000"))
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Empty(t, s1.Debts.OweMe)
	require.Empty(t, s2.Debts.IOwe)

	require.Len(t, s1.History, 1)
	require.Len(t, s2.History, 1)
	require.Equal(t, domain.ActionRepaid, s1.History[0].Action)
	require.Equal(t, domain.ActionRepaid, s2.History[0].Action)
	require.Equal(t, "1000.00", s2.History[0].Amount.StringFixed(2))

	msgs := disp.sentTo(2)
	require.NotEmpty(t, msgs)
	require.Contains(t, msgs[len(msgs)-1].Text, "полностью погашен")
}

func TestFullRepayMirrorAmountMismatchLeavesMirror(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	activateLinked(t, e, st, "1000")

	// Суммы разошлись (например, из-за ручной правки файла).
	s2 := snapOf(t, st, 2)
	s2.Debts.IOwe[0].Amount = dec("900")
	require.NoError(t, st.Write(context.Background(), 2, s2))

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.Repay(context.Background(), 1, debtID, dec("1000"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Message, "синхронизации")

	// Своя сторона закрыта, чужая не тронута.
	require.Empty(t, snapOf(t, st, 1).Debts.OweMe)
	require.Len(t, snapOf(t, st, 2).Debts.IOwe, 1)
	require.Empty(t, snapOf(t, st, 2).History)
}

func TestRepayRejectsExcessAmount(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.Repay(context.Background(), 1, debtID, dec("1000.50"))
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Len(t, snapOf(t, st, 1).Debts.OweMe, 1)
}

func TestPartialRepayManualReducesInPlace(t *testing.T) {
	e, st, _ := newTestEngine(t)
	_, err := e.Add(context.Background(), 1, AddInput{
		Type: domain.ListOweMe, PartyIdentifier: "Петя", Amount: dec("1000"), Currency: "RUB",
	})
	require.NoError(t, err)

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.Repay(context.Background(), 1, debtID, dec("400"))
	require.NoError(t, err)
	require.True(t, res.Success)

	s1 := snapOf(t, st, 1)
	require.Equal(t, "600.00", s1.Debts.OweMe[0].Amount.StringFixed(2))
	require.Len(t, s1.History, 1)
	require.Equal(t, domain.ActionPartialRepaid, s1.History[0].Action)
	require.Equal(t, "400.00", s1.History[0].RepaidAmount.StringFixed(2))
	require.Equal(t, "600.00", s1.History[0].RemainingAmount.StringFixed(2))
}

func TestPartialRepayLinkedRequiresConfirmation(t *testing.T) {
	e, st, disp := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.Repay(context.Background(), 1, debtID, dec("400"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Message, "Ожидайте подтверждения")

	// Суммы не тронуты до подтверждения.
	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	d1, d2 := s1.Debts.OweMe[0], s2.Debts.IOwe[0]
	require.Equal(t, "1000.00", d1.Amount.StringFixed(2))
	require.Equal(t, "1000.00", d2.Amount.StringFixed(2))
	require.Equal(t, domain.StatusPendingEdit, d1.Status)
	require.Equal(t, domain.StatusPendingEdit, d2.Status)
	require.True(t, d1.PendingEdit.Equal(d2.PendingEdit))
	require.Equal(t, "600.00", d1.PendingEdit.NewValue)
	require.Equal(t, int64(1), d1.PendingEdit.RequestedBy)

	msgs := disp.sentTo(2)
	last := msgs[len(msgs)-1]
	require.Equal(t, Token(VerbAcceptEdit, linkID), last.Controls[0][0].Data)

	// Подтверждение применяет остаток на обеих сторонах.
	res, err = e.ResolveEdit(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1, s2 = snapOf(t, st, 1), snapOf(t, st, 2)
	require.Equal(t, "600.00", s1.Debts.OweMe[0].Amount.StringFixed(2))
	require.Equal(t, "600.00", s2.Debts.IOwe[0].Amount.StringFixed(2))
	require.Equal(t, domain.StatusActive, s1.Debts.OweMe[0].Status)
	require.Equal(t, domain.StatusActive, s2.Debts.IOwe[0].Status)
	require.Nil(t, s1.Debts.OweMe[0].PendingEdit)
	require.Nil(t, s2.Debts.IOwe[0].PendingEdit)

	// История частичного погашения — только у инициатора.
	require.Len(t, s1.History, 1)
	require.Equal(t, domain.ActionPartialRepaid, s1.History[0].Action)
	require.Equal(t, "400.00", s1.History[0].RepaidAmount.StringFixed(2))
	require.Empty(t, s2.History)
}

func TestPartialRepayRejectKeepsAmounts(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	_, err := e.Repay(context.Background(), 1, debtID, dec("400"))
	require.NoError(t, err)

	res, err := e.ResolveEdit(context.Background(), 2, linkID, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Equal(t, "1000.00", s1.Debts.OweMe[0].Amount.StringFixed(2))
	require.Equal(t, "1000.00", s2.Debts.IOwe[0].Amount.StringFixed(2))
	require.Equal(t, domain.StatusActive, s1.Debts.OweMe[0].Status)
	require.Empty(t, s1.History)
	require.Empty(t, s2.History)
}

func TestEditManualAppliesImmediately(t *testing.T) {
	e, st, _ := newTestEngine(t)
	_, err := e.Add(context.Background(), 1, AddInput{
		Type: domain.ListIOwe, PartyIdentifier: "Петя", Amount: dec("500"), Currency: "RUB",
	})
	require.NoError(t, err)
	debtID := snapOf(t, st, 1).Debts.IOwe[0].ID

	res, err := e.Edit(context.Background(), 1, debtID, domain.FieldAmount, "750,50")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1 := snapOf(t, st, 1)
	require.Equal(t, "750.50", s1.Debts.IOwe[0].Amount.StringFixed(2))
	require.Len(t, s1.History, 1)
	require.Equal(t, domain.ActionEdited, s1.History[0].Action)
	require.Equal(t, "500.00", s1.History[0].OriginalValue)
	require.Equal(t, "750.50", s1.History[0].NewValue)
}

func TestEditLinkedRoundTrip(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.Edit(context.Background(), 1, debtID, domain.FieldDueDate, "01-06-2026")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	// Обе стороны ждут подтверждения, значение не применено.
	s2 := snapOf(t, st, 2)
	require.Equal(t, domain.StatusPendingEdit, s2.Debts.IOwe[0].Status)
	require.Empty(t, s2.Debts.IOwe[0].DueDate)

	res, err = e.ResolveEdit(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Equal(t, "01-06-2026", s1.Debts.OweMe[0].DueDate)
	require.Equal(t, "01-06-2026", s2.Debts.IOwe[0].DueDate)
	require.Equal(t, domain.StatusActive, s1.Debts.OweMe[0].Status)

	// История — у инициатора изменения.
	require.Len(t, s1.History, 1)
	require.Equal(t, domain.ActionEdited, s1.History[0].Action)
	require.Equal(t, domain.FieldDueDate, s1.History[0].EditedField)
	require.Empty(t, s2.History)
}

func TestEditLinkedForbidsPartyChange(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.Edit(context.Background(), 1, debtID, domain.FieldPartyIdentifier, "кто-то другой")
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestEditResolveMirrorMissingSelfHeals(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	_, err := e.Edit(context.Background(), 1, debtID, domain.FieldAmount, "800")
	require.NoError(t, err)

	// Запись инициатора пропала.
	s1 := snapOf(t, st, 1)
	s1.Debts.OweMe = nil
	require.NoError(t, st.Write(context.Background(), 1, s1))

	res, err := e.ResolveEdit(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Message, "синхронизации")

	// Локальная запись вернулась в active без применения изменения.
	s2 := snapOf(t, st, 2)
	require.Equal(t, domain.StatusActive, s2.Debts.IOwe[0].Status)
	require.Nil(t, s2.Debts.IOwe[0].PendingEdit)
	require.Equal(t, "1000.00", s2.Debts.IOwe[0].Amount.StringFixed(2))
}

func TestEditResolvePayloadMismatchRevertsBoth(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	_, err := e.Edit(context.Background(), 1, debtID, domain.FieldAmount, "800")
	require.NoError(t, err)

	// Полезная нагрузка у одной стороны подменена.
	s1 := snapOf(t, st, 1)
	s1.Debts.OweMe[0].PendingEdit.NewValue = "999.00"
	require.NoError(t, st.Write(context.Background(), 1, s1))

	res, err := e.ResolveEdit(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.False(t, res.Success)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Equal(t, domain.StatusActive, s1.Debts.OweMe[0].Status)
	require.Equal(t, domain.StatusActive, s2.Debts.IOwe[0].Status)
	require.Nil(t, s1.Debts.OweMe[0].PendingEdit)
	require.Equal(t, "1000.00", s1.Debts.OweMe[0].Amount.StringFixed(2))
	require.Equal(t, "1000.00", s2.Debts.IOwe[0].Amount.StringFixed(2))
}

func TestDeleteManualWritesHistory(t *testing.T) {
	e, st, _ := newTestEngine(t)
	_, err := e.Add(context.Background(), 1, AddInput{
		Type: domain.ListOweMe, PartyIdentifier: "Петя", Amount: dec("100"), Currency: "RUB",
	})
	require.NoError(t, err)
	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID

	res, err := e.DeleteManual(context.Background(), 1, debtID)
	require.NoError(t, err)
	require.True(t, res.Success)

	s1 := snapOf(t, st, 1)
	require.Empty(t, s1.Debts.OweMe)
	require.Len(t, s1.History, 1)
	require.Equal(t, domain.ActionDeleted, s1.History[0].Action)
}

func TestDeleteManualRejectsLinked(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.DeleteManual(context.Background(), 1, debtID)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Len(t, snapOf(t, st, 1).Debts.OweMe, 1)
}

func TestDeleteRequestAndConfirm(t *testing.T) {
	e, st, disp := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.RequestDeletion(context.Background(), 1, debtID)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Equal(t, domain.StatusPendingDeletion, s1.Debts.OweMe[0].Status)
	require.Equal(t, domain.StatusPendingDeletion, s2.Debts.IOwe[0].Status)

	msgs := disp.sentTo(2)
	last := msgs[len(msgs)-1]
	require.Equal(t, Token(VerbConfirmDelete, linkID), last.Controls[0][0].Data)

	res, err = e.ResolveDeletion(context.Background(), 2, linkID, true)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1, s2 = snapOf(t, st, 1), snapOf(t, st, 2)
	require.Empty(t, s1.Debts.OweMe)
	require.Empty(t, s2.Debts.IOwe)
	// Обе стороны пишут историю удаления независимо.
	require.Len(t, s1.History, 1)
	require.Len(t, s2.History, 1)
	require.Equal(t, domain.ActionDeleted, s1.History[0].Action)
	require.Equal(t, domain.ActionDeleted, s2.History[0].Action)
}

func TestDeleteRequestAndReject(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	_, err := e.RequestDeletion(context.Background(), 1, debtID)
	require.NoError(t, err)

	res, err := e.ResolveDeletion(context.Background(), 2, linkID, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Equal(t, domain.StatusActive, s1.Debts.OweMe[0].Status)
	require.Equal(t, domain.StatusActive, s2.Debts.IOwe[0].Status)
	require.Empty(t, s1.History)
	require.Empty(t, s2.History)
}

func TestDeleteRequestClearsPendingEdit(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	_, err := e.Repay(context.Background(), 1, debtID, dec("400"))
	require.NoError(t, err)

	res, err := e.RequestDeletion(context.Background(), 1, debtID)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	s1, s2 := snapOf(t, st, 1), snapOf(t, st, 2)
	require.Nil(t, s1.Debts.OweMe[0].PendingEdit)
	require.Nil(t, s2.Debts.IOwe[0].PendingEdit)
	require.Equal(t, domain.StatusPendingDeletion, s1.Debts.OweMe[0].Status)
}

func TestCancelDeletionRequest(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	_, err := e.RequestDeletion(context.Background(), 1, debtID)
	require.NoError(t, err)

	res, err := e.CancelDeletionRequest(context.Background(), 1, debtID)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Equal(t, domain.StatusActive, snapOf(t, st, 1).Debts.OweMe[0].Status)
	require.Equal(t, domain.StatusActive, snapOf(t, st, 2).Debts.IOwe[0].Status)
}

func TestCancelPendingRemovesMirror(t *testing.T) {
	e, st, disp := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	addLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID
	res, err := e.CancelPending(context.Background(), 1, debtID)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Empty(t, snapOf(t, st, 1).Debts.OweMe)
	require.Empty(t, snapOf(t, st, 2).Debts.IOwe)

	msgs := disp.sentTo(2)
	require.Contains(t, msgs[len(msgs)-1].Text, "отменил")
}

func TestNotificationGatingSuppressesMessageNotTransition(t *testing.T) {
	e, st, disp := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")

	s2 := snapOf(t, st, 2)
	s2.Settings.Notifications.OnNewPending = false
	require.NoError(t, st.Write(context.Background(), 2, s2))

	addLinked(t, e, st, "1000")

	// Переход состоялся, сообщения нет.
	require.Len(t, snapOf(t, st, 2).Debts.IOwe, 1)
	require.Empty(t, disp.sentTo(2))
}

func TestUndeliveredNotificationAppendsCaveat(t *testing.T) {
	e, st, disp := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	disp.failFor[2] = true

	res, err := e.Add(context.Background(), 1, AddInput{
		Type: domain.ListOweMe, PartyIdentifier: "@user_two", Amount: dec("1000"), Currency: "RUB",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Message, "Не удалось отправить уведомление")

	// Долг при этом создан у обеих сторон.
	require.Len(t, snapOf(t, st, 1).Debts.OweMe, 1)
	require.Len(t, snapOf(t, st, 2).Debts.IOwe, 1)
}

func TestLinkOnContactActivatesPendingDebts(t *testing.T) {
	e, st, disp := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")

	_, err := e.Add(context.Background(), 1, AddInput{
		Type: domain.ListOweMe, PartyIdentifier: "@newcomer", Amount: dec("250"), Currency: "EUR",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingConfirmation, snapOf(t, st, 1).Debts.OweMe[0].Status)

	// Новый пользователь впервые пишет боту.
	require.NoError(t, e.LinkOnContact(context.Background(), 7, "newcomer"))

	s1, s7 := snapOf(t, st, 1), snapOf(t, st, 7)
	d1 := s1.Debts.OweMe[0]
	require.Equal(t, domain.StatusActive, d1.Status)
	require.Equal(t, int64(7), d1.PartyUserID)

	require.Len(t, s7.Debts.IOwe, 1)
	d7 := s7.Debts.IOwe[0]
	require.Equal(t, domain.StatusActive, d7.Status)
	require.Equal(t, d1.LinkedDebtID, d7.LinkedDebtID)
	require.Equal(t, int64(1), d7.PartyUserID)
	require.True(t, d1.Amount.Equal(d7.Amount))

	require.NotEmpty(t, disp.sentTo(1))
}

func TestLinkByOldUsername(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 9, "@renamed_user")

	_, err := e.Add(context.Background(), 1, AddInput{
		Type: domain.ListIOwe, PartyIdentifier: "@old_handle", Amount: dec("50"), Currency: "USD",
	})
	require.NoError(t, err)

	n, res, err := e.LinkByOldUsername(context.Background(), 9, "@old_handle")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 1, n)

	require.Equal(t, domain.StatusActive, snapOf(t, st, 1).Debts.IOwe[0].Status)
	require.Len(t, snapOf(t, st, 9).Debts.OweMe, 1)
}

func TestSnoozeSetsSnoozedUntil(t *testing.T) {
	e, st, _ := newTestEngine(t)
	_, err := e.Add(context.Background(), 1, AddInput{
		Type: domain.ListIOwe, PartyIdentifier: "Петя", Amount: dec("100"), Currency: "RUB", DueDate: "15-03-2026",
	})
	require.NoError(t, err)
	debtID := snapOf(t, st, 1).Debts.IOwe[0].ID

	res, err := e.Snooze(context.Background(), 1, debtID)
	require.NoError(t, err)
	require.True(t, res.Success)

	d := snapOf(t, st, 1).Debts.IOwe[0]
	require.NotNil(t, d.SnoozedUntil)
	require.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), d.SnoozedUntil.UTC())
}

// Сумма связанной пары всегда согласована после завершённых операций.
func TestAmountConservationAcrossFlows(t *testing.T) {
	e, st, _ := newTestEngine(t)
	seedUser(t, st, 1, "@user_one")
	seedUser(t, st, 2, "@user_two")
	linkID := activateLinked(t, e, st, "1000")

	debtID := snapOf(t, st, 1).Debts.OweMe[0].ID

	// Частичное погашение с подтверждением.
	_, err := e.Repay(context.Background(), 1, debtID, dec("250"))
	require.NoError(t, err)
	_, err = e.ResolveEdit(context.Background(), 2, linkID, true)
	require.NoError(t, err)

	// Изменение суммы с подтверждением.
	_, err = e.Edit(context.Background(), 1, debtID, domain.FieldAmount, "500")
	require.NoError(t, err)
	_, err = e.ResolveEdit(context.Background(), 2, linkID, true)
	require.NoError(t, err)

	d1 := snapOf(t, st, 1).Debts.OweMe[0]
	d2 := snapOf(t, st, 2).Debts.IOwe[0]
	require.True(t, d1.Amount.Equal(d2.Amount))
	require.Equal(t, "500.00", d1.Amount.StringFixed(2))
	require.Equal(t, d1.Status, d2.Status)
}
