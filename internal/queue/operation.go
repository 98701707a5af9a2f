package queue

import "time"

// Kind identifies the type of buffered mutation.
type Kind string

const (
	// KindCreate buffers the creation of a new pet record.
	KindCreate Kind = "create"
	// KindUpdate buffers an edit of an existing pet record.
	KindUpdate Kind = "update"
)

// PetRecord holds the pet fields carried by a buffered mutation.
// Photos entries are either durable references (absolute URLs or
// server-relative upload paths) or inline data URIs awaiting upload.
type PetRecord struct {
	Name        string   `json:"name,omitempty"`
	Species     string   `json:"species,omitempty"`
	Breed       string   `json:"breed,omitempty"`
	AgeMonths   int      `json:"ageMonths,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Size        string   `json:"size,omitempty"`
	Description string   `json:"description,omitempty"`
	Photos      []string `json:"photos,omitempty"`
}

// CreatePayload is the payload of a KindCreate operation.
type CreatePayload struct {
	Pet PetRecord `json:"pet"`
}

// UpdatePayload is the payload of a KindUpdate operation.
// Status is kept apart from Fields because the remote API treats field edits
// and status transitions as two independent calls; the status call may
// trigger server-side workflows.
type UpdatePayload struct {
	Fields        PetRecord `json:"fields"`
	StatusChanged bool      `json:"statusChanged,omitempty"`
	Status        string    `json:"status,omitempty"`
}

// Operation is one buffered mutation awaiting replay against the remote API.
// ID and EnqueuedAt are assigned by the Store at enqueue time; an Operation
// is never mutated after that.
type Operation struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	TargetID     string         `json:"targetId,omitempty"`
	ShelterOwner string         `json:"shelterOwner,omitempty"`
	Create       *CreatePayload `json:"create,omitempty"`
	Update       *UpdatePayload `json:"update,omitempty"`
	EnqueuedAt   time.Time      `json:"enqueuedAt"`
}

// NewCreate builds a create operation for the given pet under the given
// shelter context.
func NewCreate(pet PetRecord, shelterOwner string) Operation {
	return Operation{
		Kind:         KindCreate,
		ShelterOwner: shelterOwner,
		Create:       &CreatePayload{Pet: pet},
	}
}

// NewUpdate builds an update operation targeting an existing pet record.
// Pass statusChanged=true with the new status to request the separate
// status-transition call during replay.
func NewUpdate(targetID string, fields PetRecord, statusChanged bool, status string) Operation {
	return Operation{
		Kind:     KindUpdate,
		TargetID: targetID,
		Update: &UpdatePayload{
			Fields:        fields,
			StatusChanged: statusChanged,
			Status:        status,
		},
	}
}
