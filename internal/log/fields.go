package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldSubcomponent = "subcomponent"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldGroupID      = "group_id"
	FieldUsername     = "username"
	FieldAction       = "action"
	FieldEventType    = "event_type"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAgent     = "agent"
	ComponentStorage   = "storage"
	ComponentLedger    = "ledger"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentAssistant = "assistant"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
)

// Operations defines standard operation names
const (
	OpCreateGroup = "create_group"
	OpJoinGroup   = "join_group"
	OpAddExpense  = "add_expense"
	OpChat        = "chat"
	OpSync        = "sync"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// Fields builds key/value pairs for slog calls.
type Fields []any

func NewFields() Fields { return Fields{} }

func (f Fields) WithRequestID(id string) Fields { return append(f, FieldRequestID, id) }

func (f Fields) WithClientIP(ip string) Fields { return append(f, FieldClientIP, ip) }

func (f Fields) WithOperation(op string) Fields { return append(f, FieldOperation, op) }

func (f Fields) WithGroup(groupID, username string) Fields {
	return append(f, FieldGroupID, groupID, FieldUsername, username)
}

// WithError is a no-op for a nil error.
func (f Fields) WithError(err error) Fields {
	if err == nil {
		return f
	}
	return append(f, FieldError, err.Error())
}

func (f Fields) WithHTTPRequest(method, path, query, userAgent string) Fields {
	return append(f, FieldMethod, method, FieldPath, path, FieldQuery, query, FieldUserAgent, userAgent)
}

func (f Fields) WithHTTPResponse(status int, durationMs int64) Fields {
	return append(f, FieldStatusCode, status, FieldDuration, durationMs, FieldSuccess, status < 400)
}
