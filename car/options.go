package car

const (
	defaultMaxHeaderSize  uint64 = 32 << 20
	defaultMaxSectionSize uint64 = 8 << 20
	// defaultPeekSize is how many bytes CarStream looks at to decide
	// whether a stream is zstd compressed and whether it opens with a
	// CARv2 pragma, before committing to a decoding path.
	defaultPeekSize = 512
)

// Options controls CarStream's tolerance for unusual input.
type Options struct {
	// ZeroLengthSectionAsEOF treats a zero-length block frame as a clean
	// end of stream rather than an empty block, matching the behavior of
	// some legacy CAR writers.
	ZeroLengthSectionAsEOF bool
	MaxAllowedHeaderSize   uint64
	MaxAllowedSectionSize  uint64
}

// Option configures a CarStream at construction time.
type Option func(*Options)

// ZeroLengthSectionAsEOF enables or disables zero-length-section-as-EOF
// tolerance.
func ZeroLengthSectionAsEOF(enable bool) Option {
	return func(o *Options) { o.ZeroLengthSectionAsEOF = enable }
}

// MaxAllowedHeaderSize overrides the maximum accepted CARv1 header size.
func MaxAllowedHeaderSize(n uint64) Option {
	return func(o *Options) { o.MaxAllowedHeaderSize = n }
}

// MaxAllowedSectionSize overrides the maximum accepted block frame size.
func MaxAllowedSectionSize(n uint64) Option {
	return func(o *Options) { o.MaxAllowedSectionSize = n }
}

func applyOptions(opts ...Option) Options {
	o := Options{
		MaxAllowedHeaderSize:  defaultMaxHeaderSize,
		MaxAllowedSectionSize: defaultMaxSectionSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
