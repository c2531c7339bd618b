package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/event-checkin/internal/api/http/handlers"
	"github.com/spec-kit/event-checkin/internal/auth"
	"github.com/spec-kit/event-checkin/internal/config"
	"github.com/spec-kit/event-checkin/internal/credential"
	"github.com/spec-kit/event-checkin/internal/events"
	"github.com/spec-kit/event-checkin/internal/observability"
	"github.com/spec-kit/event-checkin/internal/phone"
	"github.com/spec-kit/event-checkin/internal/repository"
	"github.com/spec-kit/event-checkin/internal/service"
	"github.com/spec-kit/event-checkin/internal/storage"
	"github.com/spec-kit/event-checkin/internal/whatsapp"
	"github.com/spec-kit/event-checkin/internal/worker"
)

type APISuite struct {
	suite.Suite

	app     *fiber.App
	channel *worker.NotificationWorker
	session *whatsapp.StubSession
	token   string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	ctx := context.Background()

	users := repository.NewMemoryUserRepository()
	admins := repository.NewMemoryAdminRepository()

	store, err := storage.NewLocalStore(s.T().TempDir(), "http://localhost:5000/media")
	s.Require().NoError(err)

	s.session = whatsapp.NewStubSession(logger)
	s.channel = worker.NewNotificationWorker(s.session, worker.Options{}, logger, metrics)
	s.Require().NoError(s.channel.Start(ctx))

	normalizer := phone.NewNormalizer("880")
	attendees := service.NewAttendeeService(service.AttendeeDependencies{
		Users:      users,
		Renderer:   credential.NewQRRenderer(),
		Store:      store,
		Bucket:     "qr_codes",
		Normalizer: normalizer,
		Notifier:   service.NewNotificationService(s.channel, normalizer, "iftar event", 0, logger),
		Dispatcher: events.NewInMemoryDispatcher(logger),
		Metrics:    metrics,
		Logger:     logger,
	})

	tokens := auth.NewTokenManager("secret", 60, "event-checkin")
	authService := service.NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost}, service.AuthDependencies{
		AdminRepo:    admins,
		TokenManager: tokens,
		Metrics:      metrics,
		Logger:       logger,
	})
	_, err = authService.EnsureAdmin(ctx, "ops@example.com", "correct horse")
	s.Require().NoError(err)

	s.app = NewApp(config.AppConfig{Name: "event-checkin", RequestTimeoutSeconds: 5}, logger, metrics)
	RegisterRoutes(s.app, RouteConfig{
		Health:          handlers.NewHealthHandler("event-checkin", "test", nil, nil, s.channel),
		Users:           handlers.NewUsersHandler(attendees),
		QRCodes:         handlers.NewQRCodesHandler(attendees),
		WhatsApp:        handlers.NewWhatsAppHandler(service.NewMessagingService(s.channel, normalizer, logger)),
		Auth:            handlers.NewAuthHandler(authService),
		AuthMiddleware:  auth.NewAuthMiddleware(tokens, admins),
		MetricsRegistry: metrics.Registry,
		MediaRoot:       store.Root(),
	})

	resp, body := s.do(nethttp.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"correct horse"}`, "")
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	s.token = body["access_token"].(string)
}

func (s *APISuite) TearDownTest() {
	s.Require().NoError(s.channel.Stop())
}

func (s *APISuite) do(method, path, jsonBody, token string) (*nethttp.Response, map[string]any) {
	var reader io.Reader
	if jsonBody != "" {
		reader = strings.NewReader(jsonBody)
	}
	req := httptest.NewRequest(method, path, reader)
	if jsonBody != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(req)
}

func (s *APISuite) send(req *nethttp.Request) (*nethttp.Response, map[string]any) {
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	var body map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		s.Require().NoError(json.Unmarshal(raw, &body))
	}
	return resp, body
}

func (s *APISuite) register(form url.Values) (*nethttp.Response, map[string]any) {
	req := httptest.NewRequest(nethttp.MethodPost, "/users/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.send(req)
}

func annForm() url.Values {
	return url.Values{
		"name":           {"Ann"},
		"batch":          {"2023"},
		"branch":         {"CSE"},
		"phone_number":   {"01712345678"},
		"transaction_id": {"TXN1"},
	}
}

func errorOf(body map[string]any) map[string]any {
	return body["error"].(map[string]any)
}

func (s *APISuite) TestRegistrationToCheckIn() {
	resp, body := s.register(annForm())
	s.Require().Equal(nethttp.StatusCreated, resp.StatusCode)
	userID, _ := body["user_id"].(string)
	s.Require().NotEmpty(userID)

	req := httptest.NewRequest(nethttp.MethodGet, "/users/pending", nil)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	var pending []map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&pending))
	s.Require().Len(pending, 1)
	s.Equal("pending", pending[0]["approval_status"])
	s.Nil(pending[0]["qr_code_image_url"])

	resp, body = s.do(nethttp.MethodPatch, "/users/approve/"+userID, "", s.token)
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("User approved successfully", body["message"])
	s.Equal("delivered", body["notification"])
	qrURL := body["qr_code_url"].(string)
	s.Equal("http://localhost:5000/media/qr_codes/"+userID+".png", qrURL)
	s.Equal(1, s.session.Sent())

	resp, _ = s.do(nethttp.MethodGet, "/media/qr_codes/"+userID+".png", "", "")
	s.Equal(nethttp.StatusOK, resp.StatusCode)

	resp, body = s.do(nethttp.MethodPatch, "/users/approve/"+userID, "", s.token)
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
	s.Equal("INVALID_TRANSITION", errorOf(body)["code"])

	resp, body = s.do(nethttp.MethodPost, "/qr_codes/scan", `{"user_id":"`+userID+`"}`, "")
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("Check-in successful", body["message"])

	resp, body = s.do(nethttp.MethodPost, "/qr_codes/scan", `{"user_id":"`+userID+`"}`, "")
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
	s.Equal("user already checked in", errorOf(body)["message"])

	resp, body = s.do(nethttp.MethodGet, "/users/"+userID, "", s.token)
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("checked_in", body["check_in_status"])
}

func (s *APISuite) TestRejectFlow() {
	_, body := s.register(annForm())
	userID := body["user_id"].(string)

	resp, body := s.do(nethttp.MethodPatch, "/users/reject/"+userID, "", s.token)
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("User rejected successfully", body["message"])

	resp, body = s.do(nethttp.MethodPost, "/qr_codes/scan", `{"user_id":"`+userID+`"}`, "")
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
	s.Equal("NOT_APPROVED", errorOf(body)["code"])

	resp, _ = s.do(nethttp.MethodPatch, "/users/reject/"+userID, "", s.token)
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestRegisterValidation() {
	form := annForm()
	form.Del("batch")
	resp, body := s.register(form)
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
	s.Equal("MISSING_FIELD", errorOf(body)["code"])

	form = annForm()
	form.Set("phone_number", "abc")
	resp, body = s.register(form)
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
	s.Equal("INVALID_PHONE_FORMAT", errorOf(body)["code"])

	resp, _ = s.do(nethttp.MethodPost, "/users/register",
		`{"name":"Bob","batch":"2022","branch":"EEE","phone_number":"+8801812345678","transaction_id":"TXN2"}`, "")
	s.Equal(nethttp.StatusCreated, resp.StatusCode)
}

func (s *APISuite) TestAdminRoutesRequireToken() {
	for _, tc := range []struct{ method, path string }{
		{nethttp.MethodGet, "/users/pending"},
		{nethttp.MethodPatch, "/users/approve/" + uuid.NewString()},
		{nethttp.MethodPatch, "/users/reject/" + uuid.NewString()},
		{nethttp.MethodPost, "/qr_codes/generate/" + uuid.NewString()},
		{nethttp.MethodPost, "/whatsapp/send_message"},
		{nethttp.MethodGet, "/auth/me"},
	} {
		resp, body := s.do(tc.method, tc.path, "", "")
		s.Equal(nethttp.StatusUnauthorized, resp.StatusCode, tc.path)
		s.Equal("UNAUTHORIZED", errorOf(body)["code"], tc.path)
	}

	resp, body := s.do(nethttp.MethodGet, "/auth/me", "", s.token)
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("ops@example.com", body["email"])
}

func (s *APISuite) TestLoginFailure() {
	resp, body := s.do(nethttp.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"nope"}`, "")
	s.Equal(nethttp.StatusUnauthorized, resp.StatusCode)
	s.Equal("invalid credentials", errorOf(body)["message"])

	resp, _ = s.do(nethttp.MethodPost, "/auth/login", `{"email":"ops@example.com"}`, "")
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestScanUnknownUser() {
	resp, body := s.do(nethttp.MethodPost, "/qr_codes/scan", `{"user_id":"`+uuid.NewString()+`"}`, "")
	s.Equal(nethttp.StatusNotFound, resp.StatusCode)
	s.Equal("NOT_FOUND", errorOf(body)["code"])

	resp, body = s.do(nethttp.MethodPost, "/qr_codes/scan", `{}`, "")
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
	s.Equal("MISSING_FIELD", errorOf(body)["code"])
}

func (s *APISuite) TestManualSend() {
	resp, body := s.do(nethttp.MethodPost, "/whatsapp/send_message",
		`{"phone_number":"01712345678","message":"Gates open at 5pm"}`, s.token)
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("Message sent successfully", body["message"])

	resp, body = s.do(nethttp.MethodPost, "/whatsapp/send_message",
		`{"phone_number":"123","message":"hi"}`, s.token)
	s.Equal(nethttp.StatusBadRequest, resp.StatusCode)
	s.Equal("INVALID_PHONE_FORMAT", errorOf(body)["code"])
}

func (s *APISuite) TestHealthAndMetrics() {
	resp, body := s.do(nethttp.MethodGet, "/health/live", "", "")
	s.Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("alive", body["status"])

	resp, body = s.do(nethttp.MethodGet, "/health/ready", "", "")
	s.Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("ready", body["status"])

	s.register(annForm())

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal(nethttp.StatusOK, resp.StatusCode)
	s.Contains(string(raw), `checkin_user_transitions_total{transition="registered"} 1`)
}

func (s *APISuite) TestFormRegistrantKeepsFieldsAcrossRequests() {
	resp, body := s.register(annForm())
	s.Require().Equal(nethttp.StatusCreated, resp.StatusCode)
	userID := body["user_id"].(string)

	for i := 0; i < 20; i++ {
		resp, _ = s.register(url.Values{
			"name":           {"Zed"},
			"batch":          {"XXXX"},
			"branch":         {"YYY"},
			"phone_number":   {"01799999999"},
			"transaction_id": {"QQQQ"},
		})
		s.Require().Equal(nethttp.StatusCreated, resp.StatusCode)
	}

	resp, body = s.do(nethttp.MethodGet, "/users/"+userID, "", s.token)
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode)
	s.Equal("Ann", body["name"])
	s.Equal("2023", body["batch"])
	s.Equal("CSE", body["branch"])
	s.Equal("01712345678", body["phone_number"])
	s.Equal("TXN1", body["transaction_id"])
}

func (s *APISuite) TestMetricsAfterFailedRequests() {
	for i := 0; i < 5; i++ {
		resp, _ := s.do(nethttp.MethodPatch, "/users/approve/"+uuid.NewString(), "", s.token)
		s.Require().Equal(nethttp.StatusNotFound, resp.StatusCode)
	}
	for i := 0; i < 10; i++ {
		resp, _ := s.do(nethttp.MethodGet, "/nowhere/"+uuid.NewString(), "", "")
		s.Require().Equal(nethttp.StatusNotFound, resp.StatusCode)
	}

	resp, err := s.app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil), -1)
	s.Require().NoError(err)
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Require().Equal(nethttp.StatusOK, resp.StatusCode, string(raw))

	text := string(raw)
	s.Contains(text, `checkin_http_errors_total{code="NOT_FOUND",method="PATCH",path="/users/approve/:user_id"} 5`)
	s.Contains(text, `checkin_http_errors_total{code="NOT_FOUND",method="GET",path="unmatched"} 10`)
	s.NotContains(text, "/nowhere/")
}

func TestReadinessFailsWhenChannelClosed(t *testing.T) {
	channel := worker.NewNotificationWorker(whatsapp.NewStubSession(zap.NewNop()), worker.Options{}, nil, nil)
	require.NoError(t, channel.Stop())

	app := fiber.New()
	app.Get("/health/ready", handlers.NewHealthHandler("event-checkin", "test", nil, nil, channel).Ready)

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	require.Equal(t, nethttp.StatusServiceUnavailable, resp.StatusCode)
}
