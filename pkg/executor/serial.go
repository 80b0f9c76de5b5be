package executor

import (
	"context"

	"github.com/TheEntropyCollective/evogeneva/pkg/individual"
)

// Serial evaluates masked items in order on the caller's goroutine. It
// never produces unprocessed items.
type Serial struct{}

// NewSerial returns a Serial executor.
func NewSerial() *Serial { return &Serial{} }

func (s *Serial) WorkOn(
	ctx context.Context,
	individuals []*individual.Individual,
	mask []bool,
	fns []individual.EvaluateFunc,
	resubmitUnprocessed bool,
	tag string,
) ([]*individual.Individual, error) {
	for i, ind := range individuals {
		if i >= len(mask) || !mask[i] {
			continue
		}
		if err := ind.Evaluate(fns); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
