package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated session metrics for a time range.
type SummaryRequest struct {
	Range TimeRange `json:"range"`
}

// Summary aggregates finished sessions by outcome and the agent actions
// taken during them. Sessions are attributed to the range their outcome
// was recorded in.
type Summary struct {
	Range TimeRange `json:"range"`

	Dispatched int `json:"dispatched"`
	Finished   int `json:"finished"`

	// by result
	Ended    int `json:"ended"`
	TimedOut int `json:"timed_out"`
	Failed   int `json:"failed"`

	// by final status of ended sessions
	HungUp     int `json:"hung_up"`
	Terminated int `json:"terminated"`
	Voicemail  int `json:"voicemail"`

	CallbacksScheduled int `json:"callbacks_scheduled"`
	TransfersRequested int `json:"transfers_requested"`

	// AnswerRate is Ended / Finished; zero when nothing finished.
	AnswerRate float64 `json:"answer_rate"`
}
