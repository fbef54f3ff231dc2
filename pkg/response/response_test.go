package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
)

func TestErrorAttachesRejectionMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	rejected := &models.EditRejectedError{
		Type:    "conflict_unresolvable",
		Message: "edit leaves 1 conflict",
		Conflicts: []models.Conflict{{
			Type:   models.ConflictStudent,
			ExamID: "exam-a",
		}},
		Suggestions: []models.Suggestion{{Action: models.SuggestReschedule, ExamID: "exam-b"}},
	}
	Error(c, appErrors.WrapAs(appErrors.ErrConflictUnresolvable, rejected, rejected.Message))

	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Meta map[string]json.RawMessage `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, appErrors.CodeConflictUnresolvable, body.Error.Code)
	assert.Contains(t, body.Meta, "conflicts")
	assert.Contains(t, body.Meta, "suggestions")
	assert.NotContains(t, body.Meta, "validation_errors")
}

func TestErrorMapsPlainErrorsToInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotContains(t, w.Body.String(), "meta")
}
