package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldListID        = "list_id"
	FieldItemID        = "item_id"
	FieldOwnerID       = "owner_id"
	FieldProvenance    = "provenance"
	FieldSpentCents    = "spent_cents"
	FieldBudgetCents   = "budget_cents"
	FieldBudgetStatus  = "budget_status"
	FieldPreviousState = "previous_status"
)

// Components
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentLists     = "lists"
	ComponentStorage   = "storage"
	ComponentLocal     = "local"
	ComponentReconcile = "reconcile"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentAuth      = "auth"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentExport    = "export"
	ComponentDevice    = "device"
)

// Operations
const (
	OpCreate     = "create"
	OpRead       = "read"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpList       = "list"
	OpAddItem    = "add_item"
	OpUpdateItem = "update_item"
	OpDeleteItem = "delete_item"
	OpHistory    = "history"
	OpExport     = "export"
	OpPublish    = "publish"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// LogFields builds the attribute list for a log call.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithList adds list identity fields. An empty owner is omitted.
func (f LogFields) WithList(listID, ownerID string) LogFields {
	f[FieldListID] = listID
	if ownerID != "" {
		f[FieldOwnerID] = ownerID
	}
	return f
}

// WithBudget adds spent, budget and classification fields.
func (f LogFields) WithBudget(spentCents, budgetCents int64, status string) LogFields {
	f[FieldSpentCents] = spentCents
	f[FieldBudgetCents] = budgetCents
	f[FieldBudgetStatus] = status
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to alternating key/value pairs for slog.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
