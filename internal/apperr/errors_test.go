package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("storage: get 1: %w", ErrNotFound), KindNotFound},
		{fmt.Errorf("wrap: %w", fmt.Errorf("inner: %w", ErrValidation)), KindValidation},
		{ErrTransport, KindTransport},
		{fmt.Errorf("%w: %w", ErrStorageRelocation, ErrValidation), KindStorageRelocation},
		{ErrConflict, KindConflict},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestKindSentinelRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindNotFound, KindValidation, KindTransport, KindStorageRelocation, KindConflict} {
		if got := KindOf(k.Sentinel()); got != k {
			t.Errorf("KindOf(%q.Sentinel()) = %q", k, got)
		}
	}
	if KindInternal.Sentinel() != nil {
		t.Error("internal kind should have no sentinel")
	}
}
