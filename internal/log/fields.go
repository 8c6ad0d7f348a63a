package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldDuration  = "duration_ms"
	FieldSeriesID  = "series_id"
	FieldEntryID   = "entry_id"
	FieldScope     = "scope"
	FieldAffected  = "affected"
	FieldCardID    = "card_id"
	FieldOwnerID   = "owner_id"
	FieldCutoffDay = "cutoff_day"
	FieldPeriod    = "period"
	FieldBackend   = "backend"
	FieldMessageOp = "message_op"
	FieldBatchSize = "batch_size"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentSeries  = "series"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpGenerate = "generate"
	OpEdit     = "edit"
	OpDelete   = "delete"
	OpList     = "list"
	OpResolve  = "resolve"
	OpSync     = "sync"
	OpResync   = "resync"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypePartialBatch  = "partial_batch_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithMutation adds the fields of a scoped series mutation.
func (f LogFields) WithMutation(entryID, seriesID, scope string, affected int) LogFields {
	f[FieldEntryID] = entryID
	if seriesID != "" {
		f[FieldSeriesID] = seriesID
	}
	f[FieldScope] = scope
	f[FieldAffected] = affected
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
