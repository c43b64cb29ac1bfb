package dynamo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/store"
)

// handle is a resolved, ACTIVE key-table.
type handle struct {
	physicalName string
	keyName      string
	scalarType   types.ScalarAttributeType
}

// registry resolves (table, key) pairs to physical key-tables, creating
// them on demand and caching successful resolutions. The cache is owned by
// one Store instance.
type registry struct {
	client Client
	config Config

	mu      sync.RWMutex
	handles map[string]*handle
}

func newRegistry(client Client, config Config) *registry {
	return &registry{
		client:  client,
		config:  config,
		handles: make(map[string]*handle),
	}
}

// scalarTypeFor maps a key kind to the catalog's attribute type. Integer
// and double keys share scalar type N: the catalog cannot distinguish them,
// so conflict detection for discovered tables is string-vs-number.
func scalarTypeFor(k store.Kind) types.ScalarAttributeType {
	if k == store.KindString {
		return types.ScalarAttributeTypeS
	}
	return types.ScalarAttributeTypeN
}

// resolve returns a ready key-table for (table, key), creating and waiting
// for activation as needed. Concurrent resolvers for the same pair converge
// on the same physical partition; a "being created elsewhere" race is
// benign.
func (r *registry) resolve(ctx context.Context, table string, key store.Key) (*handle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	phys := store.PhysicalTableName(table, key.Name)
	want := scalarTypeFor(key.Kind())

	r.mu.RLock()
	h, ok := r.handles[phys]
	r.mu.RUnlock()
	if ok {
		if h.scalarType != want {
			return nil, store.Errorf(store.StatusConflict,
				"key-table %s is keyed by %s values, not %s", phys, h.scalarType, want)
		}
		return h, nil
	}

	out, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(phys),
	})
	switch {
	case err == nil:
		if out.Table.TableStatus == types.TableStatusActive {
			return r.admit(phys, key.Name, want, out.Table)
		}
		// CREATING, UPDATING or DELETING: wait it out.
		return r.awaitActive(ctx, phys, key.Name, want)
	case isNotFound(err):
		return r.create(ctx, phys, key.Name, want)
	default:
		return nil, mapError(err)
	}
}

func (r *registry) create(ctx context.Context, phys, keyName string, want types.ScalarAttributeType) (*handle, error) {
	r.config.Logger.Info("creating key-table", "table", phys, "keyType", want)
	_, err := r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(phys),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(keyName), AttributeType: want},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(keyName), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return nil, mapError(err)
		}
		// Someone else is creating the same key-table; converge on it.
	}
	return r.awaitActive(ctx, phys, keyName, want)
}

// awaitActive polls the catalog until the key-table is ACTIVE, bounded by
// the configured poll budget.
func (r *registry) awaitActive(ctx context.Context, phys, keyName string, want types.ScalarAttributeType) (*handle, error) {
	for attempt := 0; attempt < r.config.ActivationMaxPolls; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(r.config.ActivationPollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		out, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(phys),
		})
		if err != nil {
			if isNotFound(err) {
				// A DELETING table finished going away; recreate it.
				return r.create(ctx, phys, keyName, want)
			}
			return nil, mapError(err)
		}
		if out.Table.TableStatus == types.TableStatusActive {
			return r.admit(phys, keyName, want, out.Table)
		}
	}
	return nil, store.Errorf(store.StatusTimeout,
		"key-table %s did not become active within %d polls", phys, r.config.ActivationMaxPolls)
}

// admit verifies the existing key schema against the requested key type and
// caches the handle.
func (r *registry) admit(phys, keyName string, want types.ScalarAttributeType, desc *types.TableDescription) (*handle, error) {
	var got types.ScalarAttributeType
	for _, def := range desc.AttributeDefinitions {
		if aws.ToString(def.AttributeName) == keyName {
			got = def.AttributeType
			break
		}
	}
	if got == "" {
		return nil, store.Errorf(store.StatusConflict,
			"table %s exists but is not keyed by attribute %q", phys, keyName)
	}
	if got != want {
		return nil, store.Errorf(store.StatusConflict,
			"key-table %s is keyed by %s values, not %s", phys, got, want)
	}
	h := &handle{physicalName: phys, keyName: keyName, scalarType: got}
	r.mu.Lock()
	r.handles[phys] = h
	r.mu.Unlock()
	return h, nil
}

// evict drops a cached handle, after DropKeyTable.
func (r *registry) evict(phys string) {
	r.mu.Lock()
	delete(r.handles, phys)
	r.mu.Unlock()
}

// listKeyTables enumerates the physical key-tables of a logical table from
// the catalog. Key names never contain "-", so a remainder with a dash
// belongs to a longer logical table name, not to this table.
func (r *registry) listKeyTables(ctx context.Context, table string) ([]string, error) {
	prefix := table + "-"
	var names []string
	var start *string
	for {
		out, err := r.client.ListTables(ctx, &dynamodb.ListTablesInput{
			ExclusiveStartTableName: start,
		})
		if err != nil {
			return nil, mapError(err)
		}
		for _, name := range out.TableNames {
			if strings.HasPrefix(name, prefix) && !strings.Contains(name[len(prefix):], "-") {
				names = append(names, name)
			}
		}
		if out.LastEvaluatedTableName == nil {
			return names, nil
		}
		start = out.LastEvaluatedTableName
	}
}

// DropKeyTable deletes one key-table and all its items.
func (s *Store) DropKeyTable(ctx context.Context, table, keyName string) error {
	phys := store.PhysicalTableName(table, keyName)
	s.registry.evict(phys)
	_, err := s.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(phys),
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}
