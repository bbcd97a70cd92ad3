package fault

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	inner := Wrap(NotFound, "file orders.xlsx not found", errors.New("stat: no such file"))
	wrapped := errors.Join(errors.New("outer"), inner)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, NotFound))
	assert.False(t, Is(wrapped, Access))
}

func TestUnclassifiedErrorsAreAccess(t *testing.T) {
	assert.Equal(t, Access, KindOf(errors.New("connection refused")))
	assert.False(t, Terminal(errors.New("connection refused")))
}

func TestTerminalKinds(t *testing.T) {
	assert.True(t, Terminal(New(NotFound, "x")))
	assert.True(t, Terminal(New(UnsupportedFormat, "x")))
	assert.True(t, Terminal(New(Parse, "x")))
	assert.False(t, Terminal(New(Access, "x")))
	assert.False(t, Terminal(New(Persistence, "x")))
}

func TestStatusRoundTrip(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusCode(New(NotFound, "x")))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(New(Parse, "x")))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(New(Access, "x")))

	assert.Equal(t, NotFound, FromStatus(http.StatusNotFound))
	assert.Equal(t, Access, FromStatus(http.StatusServiceUnavailable))
	assert.Equal(t, Access, FromStatus(http.StatusBadGateway))
	assert.Equal(t, UnsupportedFormat, FromStatus(http.StatusUnprocessableEntity))
}
