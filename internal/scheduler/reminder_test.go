package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"lembra/internal/config"
	"lembra/internal/db"
	"lembra/internal/types"
)

// --- Mocks ---

type mockCompanyStore struct {
	companies []types.Company
	err       error
}

func (m *mockCompanyStore) ListMessagingEnabled(_ context.Context) ([]types.Company, error) {
	return m.companies, m.err
}

type mockMessagingStore struct {
	providers    []types.MessagingProvider
	providersErr error
	rules        []types.SchedulingRule
	rulesErr     error
	templates    map[string]*types.MessageTemplate // keyed companyID + "/" + kindID
	templateErr  error
}

func (m *mockMessagingStore) ListActiveProviders(_ context.Context, _ types.Channel) ([]types.MessagingProvider, error) {
	return m.providers, m.providersErr
}

func (m *mockMessagingStore) ListActiveSchedules(_ context.Context, _ []string, _ types.Channel) ([]types.SchedulingRule, error) {
	return m.rules, m.rulesErr
}

func (m *mockMessagingStore) ActiveTemplate(_ context.Context, companyID, kindID string, _ types.Channel) (*types.MessageTemplate, error) {
	if m.templateErr != nil {
		return nil, m.templateErr
	}
	return m.templates[companyID+"/"+kindID], nil
}

type mockAppointmentStore struct {
	appts    []db.AppointmentWithClient
	err      error
	gotFrom  string
	gotTo    string
	wasAsked bool
}

func (m *mockAppointmentStore) ListInDateWindow(_ context.Context, _ []string, fromDate, toDate string) ([]db.AppointmentWithClient, error) {
	m.wasAsked = true
	m.gotFrom, m.gotTo = fromDate, toDate
	return m.appts, m.err
}

type outcomeCall struct {
	LogID    string
	Status   types.SendStatus
	Response any
}

type mockSendLogStore struct {
	exists    bool
	existsErr error

	inserted  []types.MessageSendLog
	insertErr error

	due          []db.DueReminder
	dueErr       error
	allPending   []db.DueReminder
	pendingCount int

	outcomes   []outcomeCall
	outcomeErr error
}

func (m *mockSendLogStore) ExistsNear(_ context.Context, _, _, _ string, _ types.Channel, _, _ string) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockSendLogStore) InsertPending(_ context.Context, log types.MessageSendLog) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.inserted = append(m.inserted, log)
	return fmt.Sprintf("log-%d", len(m.inserted)), nil
}

func (m *mockSendLogStore) ListDue(_ context.Context, _ string) ([]db.DueReminder, error) {
	return m.due, m.dueErr
}

func (m *mockSendLogStore) ListAllPending(_ context.Context) ([]db.DueReminder, error) {
	return m.allPending, nil
}

func (m *mockSendLogStore) CountPending(_ context.Context) (int, error) {
	return m.pendingCount, nil
}

func (m *mockSendLogStore) MarkOutcome(_ context.Context, logID string, status types.SendStatus, _ time.Time, response any) error {
	if m.outcomeErr != nil {
		return m.outcomeErr
	}
	m.outcomes = append(m.outcomes, outcomeCall{LogID: logID, Status: status, Response: response})
	return nil
}

type mockExecutionStore struct {
	logs []types.ExecutionLog
	err  error
}

func (m *mockExecutionStore) Insert(_ context.Context, log types.ExecutionLog) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.logs = append(m.logs, log)
	return fmt.Sprintf("exec-%d", len(m.logs)), nil
}

type dispatchCall struct {
	Phone string
	Text  string
}

type mockDispatcher struct {
	results []types.DispatchResult // popped per call; empty means OK
	calls   []dispatchCall
}

func (m *mockDispatcher) Send(_ context.Context, _ types.MessagingProvider, phoneDigits, messageText string) types.DispatchResult {
	m.calls = append(m.calls, dispatchCall{Phone: phoneDigits, Text: messageText})
	if len(m.results) == 0 {
		return types.DispatchResult{OK: true, StatusCode: 200, Body: map[string]any{"status": "queued"}}
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r
}

// --- Fixtures ---

var testNow = time.Date(2024, 3, 10, 16, 28, 0, 0, time.UTC) // 13:28 Brasília

func testSettings() config.SchedulerConfig {
	return config.SchedulerConfig{
		ScanWindowDays:    7,
		MatchTolerance:    5 * time.Minute,
		DedupWindow:       5 * time.Minute,
		DispatchTolerance: 2 * time.Minute,
	}
}

func testProvider() types.MessagingProvider {
	return types.MessagingProvider{
		ID:      "prov-1",
		Channel: types.ChannelWhatsApp,
		BaseURL: "https://gateway.example/send",
		Active:  true,
	}
}

type runnerFixture struct {
	companies    *mockCompanyStore
	messaging    *mockMessagingStore
	appointments *mockAppointmentStore
	sendLogs     *mockSendLogStore
	executions   *mockExecutionStore
	dispatcher   *mockDispatcher
	runner       *Runner
}

func newFixture() *runnerFixture {
	f := &runnerFixture{
		companies: &mockCompanyStore{
			companies: []types.Company{{ID: "co-1", Name: "Studio Glow", MessagingEnabled: true}},
		},
		messaging: &mockMessagingStore{
			providers: []types.MessagingProvider{testProvider()},
			rules:     []types.SchedulingRule{testRule("r1", "co-1", -60, types.OffsetMinutes)},
			templates: map[string]*types.MessageTemplate{},
		},
		appointments: &mockAppointmentStore{
			appts: []db.AppointmentWithClient{testAppt("a1", "co-1", "2024-03-10", "14:30")},
		},
		sendLogs:   &mockSendLogStore{},
		executions: &mockExecutionStore{},
		dispatcher: &mockDispatcher{},
	}
	f.runner = NewRunner(
		f.companies, f.messaging, f.appointments, f.sendLogs, f.executions,
		f.dispatcher, types.FixedClock{At: testNow}, testSettings(), discardLogger(),
	)
	return f
}

func dueFor(logID string) db.DueReminder {
	return db.DueReminder{
		LogID:           logID,
		CompanyID:       "co-1",
		ClientID:        "client-1",
		AppointmentID:   "a1",
		MessageKindID:   "kind-reminder",
		Channel:         types.ChannelWhatsApp,
		ScheduledFor:    "2024-03-10T13:30:00-03:00",
		ClientName:      "Maria",
		ClientPhone:     "(11) 99999-9999",
		CompanyName:     "Studio Glow",
		AppointmentDate: "2024-03-10",
		AppointmentTime: "14:30",
	}
}

// --- Tests ---

func TestRunHappyPath(t *testing.T) {
	f := newFixture()
	f.messaging.templates["co-1/kind-reminder"] = &types.MessageTemplate{
		ID: "tpl-1", Body: "Olá [CLIENTE], [EMPRESA] espera você [DATA_HORA].",
	}
	due := dueFor("log-1")
	due.TemplateBody = strPtr("Olá [CLIENTE], [EMPRESA] espera você [DATA_HORA].")
	f.sendLogs.due = []db.DueReminder{due}

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Inserted != 1 || res.Processed != 1 || res.Sent != 1 || res.Failed != 0 {
		t.Errorf("counts = %+v", res)
	}
	if res.Status != types.ExecutionSuccess {
		t.Errorf("status = %s, want SUCCESS", res.Status)
	}
	if res.ExecutionID == "" {
		t.Error("missing execution id")
	}
	if res.NoOp() {
		t.Error("full run reported as no-op")
	}

	// The queued row carries the resolved template, the single provider, and
	// the canonical scheduled_for text.
	if len(f.sendLogs.inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(f.sendLogs.inserted))
	}
	row := f.sendLogs.inserted[0]
	if row.ScheduledFor != "2024-03-10T13:30:00-03:00" {
		t.Errorf("scheduled_for = %q", row.ScheduledFor)
	}
	if row.ProviderID != "prov-1" {
		t.Errorf("provider_id = %q", row.ProviderID)
	}
	if row.TemplateID == nil || *row.TemplateID != "tpl-1" {
		t.Errorf("template_id = %v, want tpl-1", row.TemplateID)
	}

	// Dispatch got bare digits and the rendered body.
	if len(f.dispatcher.calls) != 1 {
		t.Fatalf("dispatcher called %d times, want 1", len(f.dispatcher.calls))
	}
	call := f.dispatcher.calls[0]
	if call.Phone != "5511999999999" {
		t.Errorf("phone = %q", call.Phone)
	}
	if !strings.Contains(call.Text, "Maria") || !strings.Contains(call.Text, "Studio Glow") ||
		!strings.Contains(call.Text, "10/03/2024 às 14:30") {
		t.Errorf("rendered text = %q", call.Text)
	}

	// Outcome recorded as SENT, execution record written.
	if len(f.sendLogs.outcomes) != 1 || f.sendLogs.outcomes[0].Status != types.SendSent {
		t.Errorf("outcomes = %+v", f.sendLogs.outcomes)
	}
	if len(f.executions.logs) != 1 {
		t.Fatalf("execution logs = %d, want 1", len(f.executions.logs))
	}
	exec := f.executions.logs[0]
	if exec.Status != types.ExecutionSuccess || exec.MessagesSent != 1 || exec.MessagesProcessed != 1 {
		t.Errorf("execution log = %+v", exec)
	}
}

func TestRunScanWindowBoundsQuery(t *testing.T) {
	f := newFixture()

	_, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.appointments.gotFrom != "2024-03-03" || f.appointments.gotTo != "2024-03-17" {
		t.Errorf("scan window [%s, %s], want [2024-03-03, 2024-03-17]",
			f.appointments.gotFrom, f.appointments.gotTo)
	}
}

func TestRunNoCompaniesIsNoOp(t *testing.T) {
	f := newFixture()
	f.companies.companies = nil

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NoOp() || res.NoOpReason != NoOpNoCompanies {
		t.Errorf("reason = %q", res.NoOpReason)
	}
	// Even a no-op writes an execution record.
	if len(f.executions.logs) != 1 || f.executions.logs[0].Details != NoOpNoCompanies {
		t.Errorf("execution logs = %+v", f.executions.logs)
	}
	if f.appointments.wasAsked {
		t.Error("appointments queried despite early no-op")
	}
}

func TestRunNoRulesIsNoOp(t *testing.T) {
	f := newFixture()
	f.messaging.rules = nil

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NoOpReason != NoOpNoRules {
		t.Errorf("reason = %q", res.NoOpReason)
	}
}

func TestRunNothingDueIsNoOp(t *testing.T) {
	f := newFixture()
	f.appointments.appts = nil // no candidates, nothing pending

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NoOpReason != NoOpNothingDue {
		t.Errorf("reason = %q", res.NoOpReason)
	}
}

func TestRunNoActiveProviderIsFatal(t *testing.T) {
	f := newFixture()
	f.messaging.providers = nil

	res, err := f.runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeConfigNoProvider {
		t.Errorf("error = %v", err)
	}

	// A best-effort ERROR record is still written.
	if len(f.executions.logs) != 1 {
		t.Fatalf("execution logs = %d, want 1", len(f.executions.logs))
	}
	if f.executions.logs[0].Status != types.ExecutionError || f.executions.logs[0].ErrorMessage == "" {
		t.Errorf("execution log = %+v", f.executions.logs[0])
	}
	if res.Status != types.ExecutionError {
		t.Errorf("status = %s", res.Status)
	}
}

func TestRunExecutionLogFailureNeverMasksRunError(t *testing.T) {
	f := newFixture()
	f.messaging.providers = nil
	f.executions.err = errors.New("insert exploded")

	_, err := f.runner.Run(context.Background())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeConfigNoProvider {
		t.Errorf("original error masked: %v", err)
	}
}

func TestRunMultipleProvidersUsesFirst(t *testing.T) {
	f := newFixture()
	second := testProvider()
	second.ID = "prov-2"
	f.messaging.providers = append(f.messaging.providers, second)

	_, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.sendLogs.inserted) != 1 || f.sendLogs.inserted[0].ProviderID != "prov-1" {
		t.Errorf("inserted = %+v", f.sendLogs.inserted)
	}
}

// A re-run a few minutes later finds the existing row in the dedup window
// and queues nothing new.
func TestRunRerunIsIdempotent(t *testing.T) {
	f := newFixture()
	f.sendLogs.exists = true

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted != 0 {
		t.Errorf("inserted = %d, want 0", res.Inserted)
	}
	if len(f.sendLogs.inserted) != 0 {
		t.Errorf("rows inserted on rerun: %+v", f.sendLogs.inserted)
	}
}

// A failed send is terminal: the row leaves PENDING, so no later due-set can
// include it, and nothing in the run retries it.
func TestRunFailedSendIsTerminal(t *testing.T) {
	f := newFixture()
	f.sendLogs.due = []db.DueReminder{dueFor("log-1")}
	f.dispatcher.results = []types.DispatchResult{
		{OK: false, StatusCode: 502, Body: map[string]any{"error": "ERR_NO_WHATSAPP_CONNECTION"}},
	}

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Failed != 1 || res.Sent != 0 {
		t.Errorf("counts = %+v", res)
	}
	if res.Status != types.ExecutionError {
		t.Errorf("status = %s, want ERROR", res.Status)
	}
	if len(f.dispatcher.calls) != 1 {
		t.Errorf("dispatcher called %d times, want exactly 1 (no retry)", len(f.dispatcher.calls))
	}
	if len(f.sendLogs.outcomes) != 1 || f.sendLogs.outcomes[0].Status != types.SendFailed {
		t.Errorf("outcomes = %+v", f.sendLogs.outcomes)
	}
}

func TestRunMixedOutcomesIsPartial(t *testing.T) {
	f := newFixture()
	second := dueFor("log-2")
	f.sendLogs.due = []db.DueReminder{dueFor("log-1"), second}
	f.dispatcher.results = []types.DispatchResult{
		{OK: true, StatusCode: 200},
		{OK: false, StatusCode: 500},
	}

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != types.ExecutionPartial || res.Sent != 1 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
}

// A due row whose client phone no longer normalizes is marked FAILED without
// a gateway call.
func TestRunDueRowWithInvalidPhoneFailsWithoutDispatch(t *testing.T) {
	f := newFixture()
	bad := dueFor("log-1")
	bad.ClientPhone = "???"
	f.sendLogs.due = []db.DueReminder{bad}

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.dispatcher.calls) != 0 {
		t.Errorf("dispatcher called for invalid phone")
	}
	if len(f.sendLogs.outcomes) != 1 || f.sendLogs.outcomes[0].Status != types.SendFailed {
		t.Errorf("outcomes = %+v", f.sendLogs.outcomes)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
}

// When the text-comparison due query finds nothing but PENDING rows exist
// (mixed timestamp representations), the runner loads all PENDING rows and
// filters by parsed instant.
func TestRunDueSetFallsBackOnRepresentationMismatch(t *testing.T) {
	f := newFixture()
	f.appointments.appts = nil // isolate the dispatch stage
	f.sendLogs.due = nil
	f.sendLogs.pendingCount = 2

	dueNaive := dueFor("log-naive")
	dueNaive.ScheduledFor = "2024-03-10 13:25:00" // naive civil time, already past
	future := dueFor("log-future")
	future.ScheduledFor = "2024-03-10T18:00:00-03:00"
	f.sendLogs.allPending = []db.DueReminder{dueNaive, future}

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("processed = %d, want 1 (only the past naive row)", res.Processed)
	}
	if len(f.sendLogs.outcomes) != 1 || f.sendLogs.outcomes[0].LogID != "log-naive" {
		t.Errorf("outcomes = %+v", f.sendLogs.outcomes)
	}
}

// Per-candidate failures skip that candidate only; the rest of the run
// proceeds.
func TestRunDedupErrorSkipsCandidateOnly(t *testing.T) {
	f := newFixture()
	f.sendLogs.existsErr = errors.New("query timeout")
	f.sendLogs.due = []db.DueReminder{dueFor("log-1")}

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted != 0 {
		t.Errorf("inserted = %d, want 0", res.Inserted)
	}
	if res.Processed != 1 {
		t.Errorf("processed = %d, want 1 (dispatch unaffected)", res.Processed)
	}
}

func TestRunDispatchUsesFallbackBodyWithoutTemplate(t *testing.T) {
	f := newFixture()
	due := dueFor("log-1")
	due.TemplateBody = nil
	f.sendLogs.due = []db.DueReminder{due}

	_, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.dispatcher.calls) != 1 {
		t.Fatalf("dispatcher calls = %d", len(f.dispatcher.calls))
	}
	if f.dispatcher.calls[0].Text != "Olá, Maria! Studio Glow" {
		t.Errorf("text = %q", f.dispatcher.calls[0].Text)
	}
}
