package persistence

import "grid-bot-dashboard/internal/models"

// ConnectionRepository defines the interface for connection persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the registry.
type ConnectionRepository interface {
	// SaveConnections atomically replaces the whole stored list.
	SaveConnections(conns []models.BotConnection) error

	// GetStoredConnections returns the stored list in insertion order.
	// If nothing has been stored yet, it returns (nil, nil).
	GetStoredConnections() ([]models.BotConnection, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
