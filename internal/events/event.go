// Package events defines the run event envelope published to the bus and
// relayed to clients.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type denotes the kind of run event.
type Type string

// Supported event types. Heartbeat frames are injected by the stream relay,
// never by the orchestrator.
const (
	TypeStart          Type = "start"
	TypeFetch          Type = "fetch"
	TypeFetchDriver    Type = "fetch-driver"
	TypeFetchSuccess   Type = "fetch-success"
	TypeError          Type = "error"
	TypeClean          Type = "clean"
	TypeCleanDone      Type = "clean-done"
	TypeSummary        Type = "summary"
	TypeSummarySuccess Type = "summary-success"
	TypeSummaryError   Type = "summary-error"
	TypeProgress       Type = "progress"
	TypeDone           Type = "done"
	TypeHeartbeat      Type = "heartbeat"
)

// Event is the JSON envelope for one run milestone. Fields are populated per
// type; Validate enforces the required set for each.
type Event struct {
	Type         Type   `json:"type"`
	Message      string `json:"message,omitempty"`
	SourceID     string `json:"sourceId,omitempty"`
	Driver       string `json:"driver,omitempty"`
	Count        *int   `json:"count,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Attempt      int    `json:"attempt,omitempty"`
	Source       string `json:"source,omitempty"`
	Progress     *int   `json:"progress,omitempty"`
	SummaryCount *int   `json:"summaryCount,omitempty"`
	T            int64  `json:"t,omitempty"`
}

// Validate performs coarse validation of per-type required fields.
func (e Event) Validate() error {
	switch e.Type {
	case TypeStart, TypeFetch, TypeCleanDone, TypeSummary:
		if e.Message == "" {
			return fmt.Errorf("%s event requires message", e.Type)
		}
	case TypeFetchDriver:
		if e.SourceID == "" || e.Driver == "" || e.Message == "" {
			return errors.New("fetch-driver event requires sourceId, driver and message")
		}
	case TypeFetchSuccess:
		if e.SourceID == "" || e.Driver == "" || e.Count == nil || e.Message == "" {
			return errors.New("fetch-success event requires sourceId, driver, count and message")
		}
	case TypeError:
		if e.Message == "" {
			return errors.New("error event requires message")
		}
	case TypeClean:
		if e.Fingerprint == "" || e.Message == "" {
			return errors.New("clean event requires fingerprint and message")
		}
	case TypeSummarySuccess:
		if e.Attempt <= 0 || e.Source == "" {
			return errors.New("summary-success event requires attempt and source")
		}
	case TypeSummaryError:
		if e.Attempt <= 0 || e.Source == "" || e.Message == "" {
			return errors.New("summary-error event requires attempt, source and message")
		}
	case TypeProgress:
		if e.Progress == nil || *e.Progress < 0 || *e.Progress > 100 || e.Message == "" {
			return errors.New("progress event requires progress in [0,100] and message")
		}
	case TypeDone:
		if e.Progress == nil || *e.Progress != 100 || e.Message == "" {
			return errors.New("done event requires progress=100 and message")
		}
	case TypeHeartbeat:
		if e.T == 0 {
			return errors.New("heartbeat event requires t")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Marshal encodes the event as a JSON frame.
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

func intPtr(v int) *int { return &v }

// Start announces run pickup.
func Start(message string) Event {
	return Event{Type: TypeStart, Message: message}
}

// FetchPhase announces the beginning of the fetch phase.
func FetchPhase(message string) Event {
	return Event{Type: TypeFetch, Message: message}
}

// FetchDriver announces one source about to be fetched with a resolved driver.
func FetchDriver(sourceID, driver, message string) Event {
	return Event{Type: TypeFetchDriver, SourceID: sourceID, Driver: driver, Message: message}
}

// FetchSuccess reports one completed source fetch.
func FetchSuccess(sourceID, driver string, count int, message string) Event {
	return Event{Type: TypeFetchSuccess, SourceID: sourceID, Driver: driver, Count: intPtr(count), Message: message}
}

// Error reports a recoverable per-source failure.
func Error(sourceID, driver, message string) Event {
	return Event{Type: TypeError, SourceID: sourceID, Driver: driver, Message: message}
}

// Clean reports one item surviving deduplication.
func Clean(fingerprint, message string) Event {
	return Event{Type: TypeClean, Fingerprint: fingerprint, Message: message}
}

// CleanDone reports the end of the dedup phase.
func CleanDone(message string) Event {
	return Event{Type: TypeCleanDone, Message: message}
}

// Summary announces one item about to be summarized.
func Summary(message string) Event {
	return Event{Type: TypeSummary, Message: message}
}

// SummarySuccess reports a successful summarization attempt.
func SummarySuccess(attempt int, source string) Event {
	return Event{Type: TypeSummarySuccess, Attempt: attempt, Source: source}
}

// SummaryError reports one failed summarization attempt.
func SummaryError(attempt int, source, message string) Event {
	return Event{Type: TypeSummaryError, Attempt: attempt, Source: source, Message: message}
}

// Progress reports a persisted-item checkpoint.
func Progress(progress int, message string) Event {
	return Event{Type: TypeProgress, Progress: intPtr(progress), Message: message}
}

// Done reports run completion with progress pinned at 100.
func Done(message string, summaryCount *int) Event {
	return Event{Type: TypeDone, Progress: intPtr(100), Message: message, SummaryCount: summaryCount}
}

// Heartbeat is the synthetic keep-alive frame injected by the relay.
func Heartbeat(at time.Time) Event {
	return Event{Type: TypeHeartbeat, T: at.UnixMilli()}
}
