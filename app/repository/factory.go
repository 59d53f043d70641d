package repository

import (
	"sync"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Factory builds the repository set once per connection pair.
type Factory struct {
	db    *gorm.DB
	redis *redis.Client

	once  sync.Once
	repos *Repositories
}

// NewFactory takes the gorm handle for business data and the Redis client
// holding job keys. A nil client falls back to the shared cache connection.
func NewFactory(db *gorm.DB, client *redis.Client) *Factory {
	return &Factory{db: db, redis: client}
}

func (f *Factory) Repositories() *Repositories {
	f.once.Do(func() {
		f.repos = &Repositories{
			Business:      NewBusinessRepository(f.db),
			BusinessImage: NewBusinessImageRepository(f.db),
			Queue:         NewQueueRepository(f.redis),
		}
	})
	return f.repos
}
