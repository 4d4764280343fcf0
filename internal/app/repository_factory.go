package app

import (
	"fmt"

	sharedApplication "github.com/felixgeelhaar/subtrack/internal/shared/application"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/infrastructure/persistence"
)

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conn *database.Connection
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn *database.Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

// SubscriptionRepository creates a subscription repository for the configured driver.
func (f *RepositoryFactory) SubscriptionRepository() (subscription.Repository, error) {
	switch f.conn.Driver {
	case database.DriverPostgres:
		if f.conn.Pool == nil {
			return nil, errMissingHandle(f.conn.Driver)
		}
		return persistence.NewPostgresSubscriptionRepository(f.conn.Pool), nil
	case database.DriverSQLite:
		if f.conn.DB == nil {
			return nil, errMissingHandle(f.conn.Driver)
		}
		return persistence.NewSQLiteSubscriptionRepository(f.conn.DB), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.conn.Driver)
	}
}

// OutboxRepository creates an outbox repository for the configured driver.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	switch f.conn.Driver {
	case database.DriverPostgres:
		if f.conn.Pool == nil {
			return nil, errMissingHandle(f.conn.Driver)
		}
		return outbox.NewPostgresRepository(f.conn.Pool), nil
	case database.DriverSQLite:
		if f.conn.DB == nil {
			return nil, errMissingHandle(f.conn.Driver)
		}
		return outbox.NewSQLiteRepository(f.conn.DB), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.conn.Driver)
	}
}

// UnitOfWork creates the transaction scope for the configured driver.
func (f *RepositoryFactory) UnitOfWork() (sharedApplication.UnitOfWork, error) {
	switch f.conn.Driver {
	case database.DriverPostgres:
		if f.conn.Pool == nil {
			return nil, errMissingHandle(f.conn.Driver)
		}
		return sharedPersistence.NewPostgresUnitOfWork(f.conn.Pool), nil
	case database.DriverSQLite:
		if f.conn.DB == nil {
			return nil, errMissingHandle(f.conn.Driver)
		}
		return sharedPersistence.NewSQLiteUnitOfWork(f.conn.DB), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.conn.Driver)
	}
}

func errMissingHandle(driver database.Driver) error {
	return fmt.Errorf("%s connection has no open handle", driver)
}
