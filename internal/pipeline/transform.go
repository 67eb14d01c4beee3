package pipeline

import (
	"context"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// RecordTransformer implements Transformer by decoding the JSON record
// envelope carried in the message value.
type RecordTransformer struct{}

// NewTransformer creates a RecordTransformer.
func NewTransformer() *RecordTransformer {
	return &RecordTransformer{}
}

func (t *RecordTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.RawRecord, error) {
	return domain.ParseRawRecord(raw.Value)
}
