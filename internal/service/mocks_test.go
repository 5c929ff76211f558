package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/clinicware/comms-hub-go/internal/database"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/provider"
	"github.com/clinicware/comms-hub-go/internal/repository"
)

// stubTxRunner runs the transaction body directly; the mocks below ignore
// the tx handle.
type stubTxRunner struct {
	calls int
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	s.calls++
	return fn(nil)
}

type mockIntegrationRepo struct {
	mock.Mock
}

func (m *mockIntegrationRepo) FindByProvider(ctx context.Context, scope repository.Scope, prov model.IntegrationProvider) (*model.Integration, error) {
	args := m.Called(ctx, scope, prov)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Integration), args.Error(1)
}

func (m *mockIntegrationRepo) List(ctx context.Context, scope repository.Scope) ([]model.Integration, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Integration), args.Error(1)
}

func (m *mockIntegrationRepo) FindByProviderAccountID(ctx context.Context, prov model.IntegrationProvider, accountID string) (*model.Integration, error) {
	args := m.Called(ctx, prov, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Integration), args.Error(1)
}

func (m *mockIntegrationRepo) UpsertConnected(ctx context.Context, scope repository.Scope, params model.ConnectIntegrationParams) (*model.Integration, error) {
	args := m.Called(ctx, scope, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Integration), args.Error(1)
}

func (m *mockIntegrationRepo) SetError(ctx context.Context, scope repository.Scope, prov model.IntegrationProvider, message string) error {
	return m.Called(ctx, scope, prov, message).Error(0)
}

func (m *mockIntegrationRepo) Scrub(ctx context.Context, scope repository.Scope, prov model.IntegrationProvider) error {
	return m.Called(ctx, scope, prov).Error(0)
}

func (m *mockIntegrationRepo) TouchLastSync(ctx context.Context, scope repository.Scope, prov model.IntegrationProvider, at time.Time) error {
	return m.Called(ctx, scope, prov, at).Error(0)
}

type mockConversationRepo struct {
	mock.Mock
}

func (m *mockConversationRepo) FindByID(ctx context.Context, scope repository.Scope, id string) (*model.Conversation, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) FindByPhone(ctx context.Context, scope repository.Scope, canonicalPhone string) (*model.Conversation, error) {
	args := m.Called(ctx, scope, canonicalPhone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) FindOrCreate(ctx context.Context, scope repository.Scope, canonicalPhone string) (*model.Conversation, error) {
	args := m.Called(ctx, scope, canonicalPhone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) List(ctx context.Context, scope repository.Scope, limit, offset int) ([]model.Conversation, error) {
	args := m.Called(ctx, scope, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) MarkInbound(ctx context.Context, scope repository.Scope, id string, at time.Time) error {
	return m.Called(ctx, scope, id, at).Error(0)
}

func (m *mockConversationRepo) MarkOutbound(ctx context.Context, scope repository.Scope, id string, at time.Time) error {
	return m.Called(ctx, scope, id, at).Error(0)
}

func (m *mockConversationRepo) UpdateStatus(ctx context.Context, scope repository.Scope, id string, status model.ConversationStatus) (bool, error) {
	args := m.Called(ctx, scope, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *mockConversationRepo) WithTx(tx *sqlx.Tx) repository.ConversationRepository {
	return m
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) InsertInbound(ctx context.Context, scope repository.Scope, params model.CreateMessageParams) (*model.Message, bool, error) {
	args := m.Called(ctx, scope, params)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Message), args.Bool(1), args.Error(2)
}

func (m *mockMessageRepo) InsertOutbound(ctx context.Context, scope repository.Scope, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, scope, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) ListByConversation(ctx context.Context, scope repository.Scope, conversationID string, limit, offset int) ([]model.Message, error) {
	args := m.Called(ctx, scope, conversationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) CountByConversation(ctx context.Context, scope repository.Scope, conversationID string) (int, error) {
	args := m.Called(ctx, scope, conversationID)
	return args.Int(0), args.Error(1)
}

func (m *mockMessageRepo) WithTx(tx *sqlx.Tx) repository.MessageRepository {
	return m
}

type mockViewRepo struct {
	mock.Mock
}

func (m *mockViewRepo) Upsert(ctx context.Context, scope repository.Scope, conversationID, userID string, viewedAt time.Time) error {
	return m.Called(ctx, scope, conversationID, userID, viewedAt).Error(0)
}

func (m *mockViewRepo) FindByConversation(ctx context.Context, scope repository.Scope, conversationID string) ([]model.ConversationView, error) {
	args := m.Called(ctx, scope, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ConversationView), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.ClinicUser, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClinicUser), args.Error(1)
}

func (m *mockUserRepo) FindByID(ctx context.Context, scope repository.Scope, id string) (*model.ClinicUser, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClinicUser), args.Error(1)
}

// mockSender records SendText calls so tests can assert the provider was (or
// was not) reached.
type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, creds provider.Credentials, to, text string) (string, error) {
	args := m.Called(ctx, creds, to, text)
	return args.String(0), args.Error(1)
}

// stubConnector is a canned Connector for callback and authorize tests.
type stubConnector struct {
	provType     model.IntegrationProvider
	authorizeURL string
	result       *provider.ExchangeResult
	exchangeErr  error
	exchanged    int
}

func (c *stubConnector) Type() model.IntegrationProvider { return c.provType }

func (c *stubConnector) AuthorizeURL(state string) string {
	return c.authorizeURL + "&state=" + state
}

func (c *stubConnector) Exchange(ctx context.Context, code string) (*provider.ExchangeResult, error) {
	c.exchanged++
	if c.exchangeErr != nil {
		return nil, c.exchangeErr
	}
	return c.result, nil
}

func mustScope(clinicID string) repository.Scope {
	scope, err := repository.ForClinic(clinicID)
	if err != nil {
		panic(err)
	}
	return scope
}
