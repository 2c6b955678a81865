package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesplan/backend/internal/interfaces/http/dto"
)

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestHandleValidationError(t *testing.T) {
	type lookup struct {
		DocumentNo string `json:"document_no" binding:"required,max=10"`
		LineNo     int    `json:"line_no" binding:"required,min=1"`
		Format     string `json:"format" binding:"omitempty,oneof=csv xlsx"`
	}

	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req lookup
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req))
	})

	post := func(body string) (*httptest.ResponseRecorder, dto.Response) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return w, resp
	}

	t.Run("field errors use json names", func(t *testing.T) {
		w, resp := post(`{"document_no": "SO/24-25/12200", "line_no": 0, "format": "pdf"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)

		messages := map[string]string{}
		for _, d := range resp.Error.Details {
			messages[d.Field] = d.Message
		}
		assert.Equal(t, "Must be at most 10 characters", messages["document_no"])
		assert.Equal(t, "This field is required", messages["line_no"])
		assert.Equal(t, "Must be one of: csv xlsx", messages["format"])
	})

	t.Run("malformed json", func(t *testing.T) {
		w, resp := post(`{"document_no": `)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEqual(t, dto.ErrCodeValidation, resp.Error.Code)
	})

	t.Run("wrong json type", func(t *testing.T) {
		w, resp := post(`{"document_no": "SO/1", "line_no": "ten"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		w, resp := post(``)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	})

	t.Run("valid input passes", func(t *testing.T) {
		w, resp := post(`{"document_no": "SO/1", "line_no": 10000}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
	})
}
