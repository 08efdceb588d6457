package relay

import "github.com/mahaj/duo-relay/pkg/model"

// Record is the acknowledgement state of one message.
type Record struct {
	Sender    string
	Delivered bool
	Read      bool
}

// Status derives the monotonic delivery state of the record.
func (r Record) Status() model.DeliveryStatus {
	switch {
	case r.Read:
		return model.StatusRead
	case r.Delivered:
		return model.StatusDelivered
	default:
		return model.StatusSent
	}
}

// Tracker is the only writer of delivery state. Records live until the
// process exits.
type Tracker struct {
	records map[string]*Record
}

func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*Record)}
}

// Track creates the record of a newly sent message.
func (t *Tracker) Track(id, sender string) error {
	if _, ok := t.records[id]; ok {
		return ErrDuplicateMessageID
	}
	t.records[id] = &Record{Sender: sender}
	return nil
}

func (t *Tracker) Has(id string) bool {
	_, ok := t.records[id]
	return ok
}

func (t *Tracker) Get(id string) (Record, bool) {
	r, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// MarkDelivered reports true only when the state moved from sent to
// delivered. Unknown ids are ignored.
func (t *Tracker) MarkDelivered(id string) (Record, bool) {
	r, ok := t.records[id]
	if !ok || r.Delivered {
		return Record{}, false
	}
	r.Delivered = true
	return *r, true
}

// MarkRead reports true only when the state moved to read. Read implies
// delivered.
func (t *Tracker) MarkRead(id string) (Record, bool) {
	r, ok := t.records[id]
	if !ok || r.Read {
		return Record{}, false
	}
	r.Delivered = true
	r.Read = true
	return *r, true
}

func (t *Tracker) Len() int {
	return len(t.records)
}
