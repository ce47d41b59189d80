package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"potion_master/internal/logger"
	"potion_master/internal/models"
	"potion_master/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseOp       models.Operator
	parseErr      error

	lastParseToken string
	lastSignUp     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUp = username
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (models.Operator, error) {
	m.lastParseToken = token
	return m.parseOp, m.parseErr
}

// operatorAuth accepts any token as the given operator.
func operatorAuth(id int, name string) *mockAuth {
	return &mockAuth{parseOp: models.Operator{ID: id, Username: name}}
}

type mockPreparation struct {
	mu         sync.Mutex
	sessionID  string
	startErr   error
	cleanErr   error
	stopErr    error
	current    models.Preparation
	preparing  bool
	lastRecipe models.Recipe
	stopCalls  int
	cleanCalls int
}

func (m *mockPreparation) StartPour(ctx context.Context, r models.Recipe) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRecipe = r
	return m.sessionID, m.startErr
}
func (m *mockPreparation) StartCleaning(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanCalls++
	return m.sessionID, m.cleanErr
}
func (m *mockPreparation) StopPour(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return m.stopErr
}
func (m *mockPreparation) Current() (models.Preparation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.preparing
}

type relayCall struct {
	idx int
	on  bool
}

type mockHardware struct {
	mu       sync.Mutex
	status   models.HardwareStatus
	tareErr  error
	relayErr error
	tares    int
	relays   []relayCall
}

func (m *mockHardware) Status() models.HardwareStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	st.Timestamp = time.Now()
	return st
}
func (m *mockHardware) Tare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tares++
	return m.tareErr
}
func (m *mockHardware) SetRelay(ctx context.Context, idx int, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays = append(m.relays, relayCall{idx, on})
	return m.relayErr
}

type mockEventLog struct {
	resp     []models.PourEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.PourEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// memJournal is an in-memory repository.Journal.
type memJournal struct {
	mu      sync.Mutex
	entries []models.PourEvent
}

func (m *memJournal) Append(ctx context.Context, e models.PourEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memJournal) List(ctx context.Context, from, to time.Time, typ string) ([]models.PourEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PourEvent(nil), m.entries...), nil
}

// maintenanceService wires the real journaled maintenance service over mocks.
func maintenanceService(hw *mockHardware, prep *mockPreparation, auth *mockAuth, journal *memJournal) *service.Service {
	return &service.Service{
		Hardware:      hw,
		Preparation:   prep,
		Maintenance:   service.NewMaintenanceService(hw, prep, journal, logger.Nop()),
		Authorization: auth,
	}
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
