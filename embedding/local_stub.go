//go:build !onnx

package embedding

import "fmt"

// newLocalBackend is a stub for builds without the onnx tag, mirroring how
// GoKitt's pkg/batch and pkg/memory provide a *_stub.go fallback for every
// environment-gated provider rather than letting the build fail outright.
func newLocalBackend(cfg Config) (Backend, error) {
	return nil, fmt.Errorf("embedding: local backend requires building with -tags onnx")
}
