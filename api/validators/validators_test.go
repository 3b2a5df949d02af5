package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/toolyard/marketplace-backend/pkg/errors"
)

type viewRequest struct {
	ListingID string `json:"listing_id" validate:"required,max=64"`
}

type totalRequest struct {
	ClientTotal *string `json:"client_total,omitempty"`
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"listing_id":""}`))
	var dest viewRequest
	err := DecodeJSONBody(r, &dest)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, map[string]string{"listing_id": "is required"}, pkgerrors.As(err).Details())
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"listing_id":"l1","price":"1.00"}`))
	var dest viewRequest
	err := DecodeJSONBody(r, &dest)
	require.Error(t, err)
	assert.Equal(t, "invalid request body", pkgerrors.As(err).Message())
}

func TestDecodeJSONBodyNamesMistypedField(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"listing_id":42}`))
	var dest viewRequest
	err := DecodeJSONBody(r, &dest)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"listing_id": "must be a string"}, pkgerrors.As(err).Details())
}

func TestDecodeJSONBodyRequiresBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	var dest viewRequest
	err := DecodeJSONBody(r, &dest)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"body": "is required"}, pkgerrors.As(err).Details())
}

func TestDecodeJSONBodyReportsLengthInCharacters(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"listing_id":"`+strings.Repeat("x", 65)+`"}`))
	var dest viewRequest
	err := DecodeJSONBody(r, &dest)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"listing_id": "must be at most 64 characters"}, pkgerrors.As(err).Details())
}

func TestDecodeOptionalJSONBodyAcceptsEmptyBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	var dest totalRequest
	require.NoError(t, DecodeOptionalJSONBody(r, &dest))
	assert.Nil(t, dest.ClientTotal)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"client_total":"162.36"}`))
	require.NoError(t, DecodeOptionalJSONBody(r, &dest))
	require.NotNil(t, dest.ClientTotal)
	assert.Equal(t, "162.36", *dest.ClientTotal)
}

func TestParseQueryIntBounds(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(r, "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	got, err := ParseQueryInt(r, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, got)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("")
	require.NoError(t, err)
	assert.Empty(t, token)

	token, err = BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	_, err = BearerToken("Basic dXNlcjpwYXNz")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = BearerToken("bearer   ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "device-1", SanitizeString(" device-1 ", 0))
	assert.Equal(t, "Säge", SanitizeString("Säge\x00 mit Blatt", 4))
	assert.Equal(t, "drilldriver", SanitizeString("drill\r\ndriver", 0))
}

func TestQueryStringSanitizes(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?current=%20drill-18v%20", nil)
	assert.Equal(t, "drill-18v", QueryString(r, "current", 64))
	assert.Empty(t, QueryString(r, "cursor", 64))
}
