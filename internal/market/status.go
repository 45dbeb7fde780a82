package market

import "slices"

// RfpStatus is the lifecycle state of an RFP.
type RfpStatus string

const (
	RfpOpen      RfpStatus = "open"
	RfpClosed    RfpStatus = "closed"
	RfpCancelled RfpStatus = "cancelled"
)

var rfpTransitions = map[RfpStatus][]RfpStatus{
	RfpOpen:      {RfpClosed, RfpCancelled},
	RfpClosed:    nil,
	RfpCancelled: nil,
}

// ParseRfpStatus rejects anything outside the closed status set.
func ParseRfpStatus(s string) (RfpStatus, error) {
	st := RfpStatus(s)
	if _, ok := rfpTransitions[st]; !ok {
		return "", InvalidInput("status must be open, closed or cancelled")
	}
	return st, nil
}

// Terminal reports whether no further transition is possible.
func (s RfpStatus) Terminal() bool { return len(rfpTransitions[s]) == 0 }

// CanTransition reports whether s may move to next.
func (s RfpStatus) CanTransition(next RfpStatus) bool {
	return slices.Contains(rfpTransitions[s], next)
}

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalWithdrawn ProposalStatus = "withdrawn"
)

var proposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalPending:   {ProposalAccepted, ProposalRejected, ProposalWithdrawn},
	ProposalAccepted:  nil,
	ProposalRejected:  nil,
	ProposalWithdrawn: nil,
}

// ParseProposalStatus rejects anything outside the closed status set.
func ParseProposalStatus(s string) (ProposalStatus, error) {
	st := ProposalStatus(s)
	if _, ok := proposalTransitions[st]; !ok {
		return "", InvalidInput("status must be pending, accepted, rejected or withdrawn")
	}
	return st, nil
}

func (s ProposalStatus) Terminal() bool { return len(proposalTransitions[s]) == 0 }

func (s ProposalStatus) CanTransition(next ProposalStatus) bool {
	return slices.Contains(proposalTransitions[s], next)
}

// SessionStatus is the state of a negotiation session. Only active exists.
type SessionStatus string

const SessionActive SessionStatus = "active"

// AgentType classifies a registered agent.
type AgentType string

const (
	AgentPublisher AgentType = "publisher"
	AgentStudio    AgentType = "studio"
	AgentOther     AgentType = "other"
)

// ParseAgentType defaults an empty value to publisher.
func ParseAgentType(s string) (AgentType, error) {
	switch AgentType(s) {
	case "":
		return AgentPublisher, nil
	case AgentPublisher, AgentStudio, AgentOther:
		return AgentType(s), nil
	}
	return "", InvalidInput("type must be publisher, studio or other")
}
