package dynamo

import (
	"github.com/jacentio/lattice/store"
)

// Store implements store.Store on DynamoDB.
type Store struct {
	client   Client
	config   Config
	registry *registry
}

var _ store.Store = (*Store)(nil)

// New creates a DynamoDB-backed store. The key-table handle cache lives on
// the returned instance; independent stores never share resolution state.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client:   client,
		config:   config,
		registry: newRegistry(client, config),
	}
}
