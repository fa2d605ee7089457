package helpers

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))

	single := errors.NotValidf("pacing_ms=-1")
	assert.Equal(t, single, FoldErrors([]error{nil, single}))

	e := FoldErrors([]error{errors.New("first"), nil, errors.New("second")})
	assert.EqualError(t, e, "first\nsecond")
}
