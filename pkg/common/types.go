package common

import "time"

type FilterOption struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value,omitempty"`
	Value2   string `json:"value2,omitempty"`
}

type SortOption struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// ListOptions is a decoded list request.
type ListOptions struct {
	Page     int
	PageSize int
	Query    string
	Filters  []FilterOption
	Sort     []SortOption
}

// Offset of the first row of the requested page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

// ListResponse is the paged list envelope.
type ListResponse struct {
	Items       []map[string]interface{} `json:"items"`
	Total       int64                    `json:"total"`
	CurrentPage int                      `json:"currentPage"`
	TotalPages  int                      `json:"totalPages"`
	ServerTime  string                   `json:"serverTime"`
}

// NewListResponse computes page counters for a result page.
func NewListResponse(items []map[string]interface{}, total int64, opts ListOptions, now time.Time) ListResponse {
	if items == nil {
		items = []map[string]interface{}{}
	}
	totalPages := 0
	if opts.PageSize > 0 {
		totalPages = int((total + int64(opts.PageSize) - 1) / int64(opts.PageSize))
	}
	return ListResponse{
		Items:       items,
		Total:       total,
		CurrentPage: opts.Offset()/max(opts.PageSize, 1) + 1,
		TotalPages:  totalPages,
		ServerTime:  now.Format(time.RFC3339),
	}
}

// Action kinds interpreted by the action dispatcher.
const (
	ActionRefresh  = "Refresh"
	ActionRedirect = "Redirect"
	ActionDialog   = "Dialog"
	ActionToast    = "Toast"
)

// Action is a UI side effect requested by the server.
type Action struct {
	Action   string `json:"action"`
	Message  string `json:"message,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
	DialogID string `json:"dialogId,omitempty"`
}

// Stops reports whether no further actions run after this one.
func (a Action) Stops() bool {
	return a.Action == ActionRefresh || a.Action == ActionRedirect
}

// Response is the error envelope used by the API.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}
