package application

import "github.com/felixgeelhaar/subtrack/internal/shared/domain"

// StampEvents gives every stampable event one shared metadata value for the
// command issued by userID and returns it.
func StampEvents(events []domain.DomainEvent, userID, correlationID string) domain.EventMetadata {
	metadata := domain.NewEventMetadata(userID, correlationID)
	for _, event := range events {
		if s, ok := event.(domain.Stampable); ok {
			s.Stamp(metadata)
		}
	}
	return metadata
}
