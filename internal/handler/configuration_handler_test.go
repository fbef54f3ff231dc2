package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/middleware"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
)

type configurationServiceMock struct {
	listResp []models.ConstraintConfiguration
	saveErr  error
	savedID  string
	savedBy  string
	saved    dto.SaveConfigurationRequest
}

func (m *configurationServiceMock) List(ctx context.Context) ([]models.ConstraintConfiguration, error) {
	return m.listResp, nil
}

func (m *configurationServiceMock) Get(ctx context.Context, id string) (*dto.ConfigurationResponse, error) {
	if id != "strict" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
	}
	return &dto.ConfigurationResponse{ConstraintConfiguration: models.ConstraintConfiguration{ID: id}, Rules: []string{"exactly_one_start"}}, nil
}

func (m *configurationServiceMock) Save(ctx context.Context, id string, req dto.SaveConfigurationRequest, actorID string) (*dto.ConfigurationResponse, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.savedID, m.savedBy, m.saved = id, actorID, req
	return &dto.ConfigurationResponse{ConstraintConfiguration: models.ConstraintConfiguration{ID: id, Name: req.Name, UpdatedBy: actorID}}, nil
}

func newConfigurationRouter(h *ConfigurationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Actor(accessConfig()))
	r.GET("/configurations", h.List)
	r.GET("/configurations/:id", h.Get)
	r.PUT("/configurations/:id", h.Save)
	return r
}

func TestConfigurationHandlerSaveStampsActor(t *testing.T) {
	mockSvc := &configurationServiceMock{}
	r := newConfigurationRouter(NewConfigurationHandler(mockSvc))

	body, _ := json.Marshal(dto.SaveConfigurationRequest{Name: "Strict", Profile: "rules: {}\n"})
	req := httptest.NewRequest(http.MethodPut, "/configurations/strict", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "registrar-2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "strict", mockSvc.savedID)
	assert.Equal(t, "registrar-2", mockSvc.savedBy)
	assert.Equal(t, "Strict", mockSvc.saved.Name)
}

func TestConfigurationHandlerSaveInvalidBody(t *testing.T) {
	r := newConfigurationRouter(NewConfigurationHandler(&configurationServiceMock{}))

	req := httptest.NewRequest(http.MethodPut, "/configurations/strict", bytes.NewBufferString(`invalid`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigurationHandlerSaveRejectedProfile(t *testing.T) {
	mockSvc := &configurationServiceMock{saveErr: appErrors.Clone(appErrors.ErrValidation, "invalid constraint profile")}
	r := newConfigurationRouter(NewConfigurationHandler(mockSvc))

	req := httptest.NewRequest(http.MethodPut, "/configurations/strict", bytes.NewBufferString(`{"name":"x","profile":"bogus: 1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid constraint profile")
}

func TestConfigurationHandlerListAndGet(t *testing.T) {
	mockSvc := &configurationServiceMock{listResp: []models.ConstraintConfiguration{{ID: "strict"}, {ID: "relaxed"}}}
	r := newConfigurationRouter(NewConfigurationHandler(mockSvc))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/configurations", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_count":2`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/configurations/strict", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "exactly_one_start")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/configurations/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
