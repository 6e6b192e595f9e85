package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("missing %s", "text")))
	assert.Equal(t, KindParse, KindOf(fmt.Errorf("agent: %w", Parse(errors.New("bad json"), "decode reply"))))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("invoke: %w", UnknownAgent("nope"))
	assert.ErrorIs(t, err, ErrUnknownAgent)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestRemedyOf(t *testing.T) {
	inner := New(KindProviderUnavailable, "not configured").WithRemedy("set GEMINI_API_KEY")
	outer := Wrap(KindProviderUnavailable, inner, "call failed")
	assert.Equal(t, "set GEMINI_API_KEY", RemedyOf(outer))
	assert.Equal(t, "", RemedyOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "decode reply: bad json", Parse(errors.New("bad json"), "decode reply").Error())
	assert.Equal(t, "timeout", (&Error{Kind: KindTimeout}).Error())
}
