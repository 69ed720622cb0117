package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/academy/billing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addressInput struct {
	State   string `json:"state" binding:"required,br_state"`
	ZipCode string `json:"zip_code" binding:"required,cep"`
	Period  string `json:"period" binding:"omitempty,period"`
}

func TestRegisterValidations(t *testing.T) {
	v := validator.New()
	v.SetTagName("binding")
	RegisterValidations(v)

	tests := []struct {
		name  string
		in    addressInput
		field string
	}{
		{"valid", addressInput{State: "SP", ZipCode: "01310-100", Period: "2026-10"}, ""},
		{"lowercase state", addressInput{State: "rj", ZipCode: "20040020"}, ""},
		{"unknown state", addressInput{State: "XX", ZipCode: "01310-100"}, "state"},
		{"short cep", addressInput{State: "SP", ZipCode: "0131-100"}, "zip_code"},
		{"bad period", addressInput{State: "SP", ZipCode: "01310-100", Period: "2026-13"}, "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field())
		})
	}
}

func TestHandleValidationError(t *testing.T) {
	require.NoError(t, SetupValidator())

	r := gin.New()
	r.POST("/address", func(c *gin.Context) {
		var in addressInput
		if err := c.ShouldBindJSON(&in); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	post := func(body string) (*httptest.ResponseRecorder, dto.Response) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/address", bytes.NewBufferString(body)))
		var resp dto.Response
		if w.Body.Len() > 0 {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		}
		return w, resp
	}

	w, _ := post(`{"state":"MG","zip_code":"30130-010"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, resp := post(`{"state":"ZZ","zip_code":"30130-010"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Fields, 1)
	assert.Equal(t, "state", resp.Error.Fields[0].Field)
	assert.Equal(t, "Must be a Brazilian state code (UF)", resp.Error.Fields[0].Message)

	w, resp = post(`{"state":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Malformed request body", resp.Error.Message)
	assert.Empty(t, resp.Error.Fields)
}
