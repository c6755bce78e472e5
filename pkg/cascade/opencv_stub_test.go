//go:build !opencv

package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menta2k/memoryball/pkg/detection"
)

func TestOpenCVBackendsUnavailableWithoutTag(t *testing.T) {
	_, err := NewOpenCVCascadeBackend(DefaultOpenCVConfig(t.TempDir()))
	assert.ErrorIs(t, err, detection.ErrBackendUnavailable)

	_, err = NewPersonBackend(DefaultOpenCVConfig(""))
	assert.ErrorIs(t, err, detection.ErrBackendUnavailable)
}
