package content

import "io"

func init() {
	Register("passthrough", func() Filter { return passthroughFilter{} })
}

// passthroughFilter serves bytes unmodified.
type passthroughFilter struct{}

func (passthroughFilter) FinalLength(srcLen int64) int64 { return srcLen }

func (passthroughFilter) Apply(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}
