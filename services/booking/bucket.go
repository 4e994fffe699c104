package booking

import "partnerdesk/models"

// Bucket names one of the three partner-visible categories.
type Bucket string

const (
	BucketNone      Bucket = ""
	BucketAvailable Bucket = "available"
	BucketActive    Bucket = "active"
	BucketCompleted Bucket = "completed"
)

// bucket is an id-keyed list with most recent entries first. Bookings are
// cloned on the way in and out so callers never alias stored state.
type bucket struct {
	items []models.Booking
}

func (b *bucket) index(id string) int {
	for i := range b.items {
		if b.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *bucket) has(id string) bool {
	return b.index(id) >= 0
}

func (b *bucket) get(id string) (models.Booking, bool) {
	if i := b.index(id); i >= 0 {
		return b.items[i].Clone(), true
	}
	return models.Booking{}, false
}

// upsert replaces the entry with the same id, or prepends bk.
func (b *bucket) upsert(bk models.Booking) bool {
	bk = bk.Clone()
	if i := b.index(bk.ID); i >= 0 {
		b.items[i] = bk
		return true
	}
	b.items = append([]models.Booking{bk}, b.items...)
	return true
}

// insert prepends bk unless its id is already present.
func (b *bucket) insert(bk models.Booking) bool {
	if b.has(bk.ID) {
		return false
	}
	b.items = append([]models.Booking{bk.Clone()}, b.items...)
	return true
}

func (b *bucket) remove(id string) bool {
	i := b.index(id)
	if i < 0 {
		return false
	}
	b.items = append(b.items[:i:i], b.items[i+1:]...)
	return true
}

// replace overwrites the whole bucket, keeping the first occurrence of each id.
func (b *bucket) replace(list []models.Booking) {
	items := make([]models.Booking, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, bk := range list {
		if _, dup := seen[bk.ID]; dup || bk.ID == "" {
			continue
		}
		seen[bk.ID] = struct{}{}
		items = append(items, bk.Clone())
	}
	b.items = items
}

func (b *bucket) len() int {
	return len(b.items)
}

func (b *bucket) snapshot() []models.Booking {
	out := make([]models.Booking, len(b.items))
	for i := range b.items {
		out[i] = b.items[i].Clone()
	}
	return out
}
