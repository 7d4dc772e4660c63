package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByKindThroughWrapping(t *testing.T) {
	cause := errors.New("bucket quota exceeded")
	err := fmt.Errorf("upload stage: %w", Wrap(KindStorageWrite, "objectstore.Put", "failed to store blob", cause))

	assert.True(t, errors.Is(err, ErrStorageWrite))
	assert.False(t, errors.Is(err, ErrStorageRead))
	assert.True(t, errors.Is(err, cause), "underlying cause stays reachable")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("x: %w", New(KindNotFound, "op", "video not found"))))
}

func TestError_Message(t *testing.T) {
	err := Wrap(KindClassification, "classifier.Classify", "classification timed out", errors.New("deadline exceeded"))
	assert.Equal(t, "classifier.Classify: classification timed out: deadline exceeded", err.Error())
	assert.Equal(t, "classification timed out", MessageOf(err))
	assert.Equal(t, "internal server error", MessageOf(errors.New("raw")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidArgument:     http.StatusBadRequest,
		KindUnauthenticated:     http.StatusUnauthorized,
		KindNotFound:            http.StatusNotFound,
		KindNotFoundOrForbidden: http.StatusNotFound,
		KindRateLimited:         http.StatusTooManyRequests,
		KindStorageWrite:        http.StatusBadGateway,
		KindClassification:      http.StatusBadGateway,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), string(kind))
	}
}
