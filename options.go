package xlgrid

import (
	"log/slog"
	"maps"
)

// DefaultShape is the shape of a new grid.
var DefaultShape = Shape{Rows: 1000, Cols: 100, Tables: 3}

// Options holds configuration for the Grid.
type Options struct {
	shape             Shape
	logger            *slog.Logger
	functions         map[string]any
	listeners         []Listener
	signer            Signer
	verifier          Verifier
	evaluator         ExpressionEvaluator
	abortInterval     int
	defaultRowHeight  float64
	defaultColWidth   float64
	defaultAttributes Attributes
	postLoadHooks     []func(*Grid) error
	metrics           bool
}

func defaultOptions() *Options {
	return &Options{
		shape:            DefaultShape,
		abortInterval:    1000,
		defaultRowHeight: 20,
		defaultColWidth:  100,
		metrics:          true,
	}
}

// Option configures the Grid.
type Option func(*Options)

// WithShape sets the initial shape (default: 1000 rows, 100 columns, 3 tables).
func WithShape(shape Shape) Option {
	return func(o *Options) { o.shape = shape }
}

// WithLogger sets the structured logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.logger = logger }
}

// WithFunctions registers functions and values visible to every cell and
// macro expression. Later registrations override earlier ones.
func WithFunctions(funcs map[string]any) Option {
	return func(o *Options) {
		if o.functions == nil {
			o.functions = make(map[string]any, len(funcs))
		}
		maps.Copy(o.functions, funcs)
	}
}

// WithFunction registers a single function or value.
func WithFunction(name string, fn any) Option {
	return WithFunctions(map[string]any{name: fn})
}

// WithListener adds a listener that is notified of every change.
func WithListener(l Listener) Option {
	return func(o *Options) { o.listeners = append(o.listeners, l) }
}

// WithSigner sets the capability used to sign files written by SaveFile.
func WithSigner(s Signer) Option {
	return func(o *Options) { o.signer = s }
}

// WithVerifier sets the capability used by Open and Approve. When unset and
// the signer also implements Verifier, the signer is used.
func WithVerifier(v Verifier) Option {
	return func(o *Options) { o.verifier = v }
}

// WithExpressionEvaluator replaces the expr-lang evaluator.
func WithExpressionEvaluator(e ExpressionEvaluator) Option {
	return func(o *Options) { o.evaluator = e }
}

// WithAbortInterval sets how many lines or cells a bulk operation processes
// between cancellation checks (default: 1000).
func WithAbortInterval(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.abortInterval = n
		}
	}
}

// WithDefaultRowHeight sets the height of rows without an override (default: 20).
func WithDefaultRowHeight(h float64) Option {
	return func(o *Options) { o.defaultRowHeight = h }
}

// WithDefaultColWidth sets the width of columns without an override (default: 100).
func WithDefaultColWidth(w float64) Option {
	return func(o *Options) { o.defaultColWidth = w }
}

// WithDefaultAttributes sets the attributes of cells no entry matches.
func WithDefaultAttributes(attrs Attributes) Option {
	return func(o *Options) { o.defaultAttributes = attrs.Clone() }
}

// WithPostLoadHook adds a hook run after the macro namespace is executed on
// load and when leaving safe mode. Hooks run with the grid unlocked.
func WithPostLoadHook(fn func(*Grid) error) Option {
	return func(o *Options) { o.postLoadHooks = append(o.postLoadHooks, fn) }
}

// WithMetrics enables or disables OpenTelemetry metric recording (default: true).
func WithMetrics(enabled bool) Option {
	return func(o *Options) { o.metrics = enabled }
}
