package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
)

type sampleBody struct {
	Name  string `json:"name" validate:"required,max=5"`
	Image string `json:"image" validate:"omitempty,url"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	var body sampleBody
	require.NoError(t, DecodeJSONBody(req, &body))
	require.Equal(t, "ok", body.Name)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok","extra":1}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"too-long","image":"nope"}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	require.Equal(t, map[string]string{
		"name":  "must be at most 5",
		"image": "must be a valid url",
	}, typed.Details())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&bad=x&big=500", nil)

	v, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 10, v)

	v, err = ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 25, v)

	_, err = ParseQueryInt(req, "bad", 25, 1, 100)
	require.Error(t, err)
	_, err = ParseQueryInt(req, "big", 25, 1, 100)
	require.Error(t, err)
}

func TestRequireQueryStringAndParseUUID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?session_id=%20cs_1%20", nil)
	v, err := RequireQueryString(req, "session_id")
	require.NoError(t, err)
	require.Equal(t, "cs_1", v)

	_, err = RequireQueryString(req, "other")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUID("nope", "purchase_id")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type cartBody struct {
	Items []cartItem `json:"items" validate:"required,min=1,max=2,dive"`
}

type cartItem struct {
	Title string `json:"title" validate:"required"`
}

func TestDecodeJSONBodyReportsNestedPaths(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"title":"ok"},{"title":""}]}`))
	var body cartBody
	typed := pkgerrors.As(DecodeJSONBody(req, &body))
	require.NotNil(t, typed)
	require.Equal(t, map[string]string{"items[1].title": "is required"}, typed.Details())

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"title":"a"},{"title":"b"},{"title":"c"}]}`))
	typed = pkgerrors.As(DecodeJSONBody(req, &body))
	require.NotNil(t, typed)
	require.Equal(t, map[string]string{"items": "must contain at most 2 items"}, typed.Details())
}

func TestDecodeJSONBodyRejectsEmptyTrailingAndOversized(t *testing.T) {
	var body sampleBody

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}{"name":"b"}`))
	require.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))

	huge := `{"name":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	err := DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Contains(t, pkgerrors.As(err).Message(), "exceeds")
}
