package client

import (
	"io"
	"log"
	"os"

	"github.com/ondrik-labs/lsprotocol/config"
	"github.com/ondrik-labs/lsprotocol/progress"
	"github.com/ondrik-labs/lsprotocol/workspaceedit"
)

// Option configures a Client at construction time, mirroring the
// functional-options pattern server.Server uses.
type Option func(*options)

type options struct {
	stream          io.ReadWriter
	logger          *log.Logger
	clientInfo      clientInfo
	progressFactory progress.Factory
	configStore     config.Store
	applier         workspaceedit.Applier
}

type clientInfo struct {
	name    string
	version string
}

func defaultOptions() *options {
	return &options{
		logger: log.New(os.Stderr, "lsp-client: ", log.LstdFlags),
	}
}

// WithStream sets the framed transport the client reads/writes.
func WithStream(rw io.ReadWriter) Option {
	return func(o *options) { o.stream = rw }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClientInfo sets the {name, version} advertised in initialize.
func WithClientInfo(name, version string) Option {
	return func(o *options) { o.clientInfo = clientInfo{name: name, version: version} }
}

// WithProgressFactory supplies the host UI factory for server-initiated
// progress tokens.
func WithProgressFactory(f progress.Factory) Option {
	return func(o *options) { o.progressFactory = f }
}

// WithConfigStore supplies the host's configuration store for the
// configuration bridge.
func WithConfigStore(store config.Store) Option {
	return func(o *options) { o.configStore = store }
}

// WithApplyEditFunc supplies the host's apply-edit routine.
func WithApplyEditFunc(f workspaceedit.Applier) Option {
	return func(o *options) { o.applier = f }
}
