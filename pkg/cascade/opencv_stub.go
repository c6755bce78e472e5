//go:build !opencv

package cascade

import (
	"errors"

	"github.com/menta2k/memoryball/pkg/detection"
)

var errNoOpenCV = errors.New("binary built without the opencv tag")

// NewOpenCVCascadeBackend is unavailable without OpenCV support.
func NewOpenCVCascadeBackend(config OpenCVConfig) (detection.Backend, error) {
	return nil, detection.Unavailable("opencv-cascade", errNoOpenCV)
}

// NewPersonBackend is unavailable without OpenCV support.
func NewPersonBackend(config OpenCVConfig) (detection.Backend, error) {
	return nil, detection.Unavailable("opencv-person", errNoOpenCV)
}
