package model

// Column order of the record store. The header row spells these names literally.
const (
	ColTimestamp = iota
	ColSource
	ColCommandName
	ColCommandPayload
	ColStatus
	ColResultPayload
	NumColumns
)

// Header is the exact first row of every record store.
var Header = []string{
	"timestamp",
	"source",
	"command_name",
	"command_payload",
	"status",
	"result_payload",
}

// TimestampLayout is fixed-width so timestamps of one writer sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one row of the store. Timestamp identifies the record; only Status
// and ResultPayload change after creation, and only by the worker.
type Record struct {
	Timestamp      string `json:"timestamp"`
	Source         string `json:"source"`
	CommandName    string `json:"command_name"`
	CommandPayload string `json:"command_payload"`
	Status         Status `json:"status"`
	ResultPayload  string `json:"result_payload"`
}

// Fields returns the record in column order.
func (r Record) Fields() []string {
	return []string{
		r.Timestamp,
		r.Source,
		r.CommandName,
		r.CommandPayload,
		string(r.Status),
		r.ResultPayload,
	}
}

// Notification reports a record that reached a terminal status.
type Notification struct {
	Timestamp     string `json:"timestamp"`
	CommandName   string `json:"command_name"`
	Payload       string `json:"payload"`
	Outcome       Status `json:"outcome"`
	ResultPayload string `json:"result_payload"`
}

func NotificationFor(r Record) Notification {
	return Notification{
		Timestamp:     r.Timestamp,
		CommandName:   r.CommandName,
		Payload:       r.CommandPayload,
		Outcome:       r.Status,
		ResultPayload: r.ResultPayload,
	}
}
