package negotiation

// Status is a negotiation lifecycle state. The set is closed: transitions
// are only legal along the graph below, and every consumer switches
// exhaustively over these constants.
type Status string

const (
	StatusInitiating        Status = "INITIATING"
	StatusSent              Status = "SENT"
	StatusReplied           Status = "REPLIED"
	StatusCountering        Status = "COUNTERING"
	StatusPendingReview     Status = "PENDING_REVIEW"
	StatusWaitingForHuman   Status = "WAITING_FOR_HUMAN"
	StatusClosing           Status = "CLOSING"
	StatusClosedPendingMail Status = "CLOSED_PENDING_EMAIL"
	StatusWon               Status = "WON"
	StatusLost              Status = "LOST"
	StatusManual            Status = "MANUAL"
	StatusRateConReceived   Status = "RATE_CON_RECEIVED"
	StatusRateConSigned     Status = "RATE_CON_SIGNED"
)

// transitions is the legal state graph. A missing entry means the status
// is terminal for that direction.
var transitions = map[Status][]Status{
	StatusInitiating:        {StatusSent, StatusReplied, StatusManual},
	StatusSent:              {StatusReplied, StatusWaitingForHuman, StatusManual},
	StatusReplied:           {StatusCountering, StatusClosing, StatusLost, StatusPendingReview, StatusWaitingForHuman, StatusManual},
	StatusCountering:        {StatusReplied, StatusCountering, StatusClosing, StatusLost, StatusPendingReview, StatusWaitingForHuman, StatusManual},
	StatusPendingReview:     {StatusCountering, StatusClosing, StatusLost, StatusWaitingForHuman, StatusManual},
	StatusWaitingForHuman:   {StatusReplied, StatusCountering, StatusClosing, StatusLost, StatusPendingReview, StatusManual},
	StatusClosing:           {StatusReplied, StatusWon, StatusLost, StatusRateConReceived, StatusClosedPendingMail, StatusManual},
	StatusClosedPendingMail: {StatusClosing, StatusManual},
	StatusWon:               {StatusRateConReceived},
	StatusRateConReceived:   {StatusRateConSigned, StatusWon, StatusManual},
	StatusRateConSigned:     {StatusWon},
}

// canTransition reports whether from → to is a legal edge.
func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// automationBlocked holds the states in which no automated transition may
// start: human-priority and contract-stage states always win.
var automationBlocked = map[Status]bool{
	StatusManual:            true,
	StatusWon:               true,
	StatusLost:              true,
	StatusClosedPendingMail: true,
	StatusRateConReceived:   true,
	StatusRateConSigned:     true,
}

// BlocksAutomation reports whether automated negotiation moves are refused
// in this status.
func BlocksAutomation(s Status) bool {
	return automationBlocked[s]
}

// IsTerminal reports whether no further automated transitions exist at all.
func IsTerminal(s Status) bool {
	switch s {
	case StatusLost, StatusRateConSigned:
		return true
	}
	return false
}
