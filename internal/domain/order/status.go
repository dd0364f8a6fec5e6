package order

// Status is an internal order status.
type Status string

// Internal statuses.
const (
	StatusNew        Status = "new"
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusAccepted   Status = "accepted"
	StatusInQueue    Status = "in_queue"
	StatusInPrep     Status = "in_prep"
	StatusInProgress Status = "in_progress"
	StatusAssembling Status = "assembling"
	StatusReady      Status = "ready"
	StatusStaged     Status = "staged"
	StatusHandoff    Status = "handoff"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusVoided     Status = "voided"
	StatusRefunded   Status = "refunded"
)

var externalStatus = map[Status]Status{
	StatusNew:        StatusPending,
	StatusPending:    StatusPending,
	StatusAccepted:   StatusInPrep,
	StatusInQueue:    StatusInPrep,
	StatusInPrep:     StatusInPrep,
	StatusInProgress: StatusInProgress,
	StatusAssembling: StatusReady,
	StatusReady:      StatusReady,
	StatusStaged:     StatusReady,
	StatusHandoff:    StatusReady,
	StatusCompleted:  StatusCompleted,
	StatusCancelled:  StatusCancelled,
	StatusVoided:     StatusVoided,
	StatusRefunded:   StatusRefunded,
}

// External maps s onto the client vocabulary. Unknown statuses pass through
// unchanged so new internal states never break existing clients.
func (s Status) External() Status {
	if ext, ok := externalStatus[s]; ok {
		return ext
	}
	return s
}

// MapStatus is External for plain strings.
func MapStatus(s string) string {
	return string(Status(s).External())
}

// Known reports whether s is part of the internal vocabulary.
func (s Status) Known() bool {
	if s == StatusPaid {
		return true
	}
	_, ok := externalStatus[s]
	return ok
}

// Terminal reports whether the order can no longer change and no longer
// counts towards the ledger.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusVoided, StatusRefunded:
		return true
	}
	return false
}
