package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization.
// Single-byte prefixes keep keys compact and range scans cheap.
const (
	prefixPerson       = byte(0x01) // person:personID -> Person
	prefixRelationship = byte(0x02) // rel:relID -> Relationship
	prefixTree         = byte(0x03) // tree:treeID -> Tree
	prefixTreePersons  = byte(0x04) // treeID 0x00 personID -> empty
	prefixTreeRels     = byte(0x05) // treeID 0x00 relID -> empty
)

// BadgerStore is a persistent Store implementation on BadgerDB.
//
// Features:
//   - ACID transactions for every operation
//   - Secondary indexes for tree-scoped person and relationship listing
//   - Optimistic Person updates: version check inside a serializable txn
//   - Automatic crash recovery (BadgerDB value log)
//
// Key structure:
//   - Persons:       0x01 + personID -> JSON(Person)
//   - Relationships: 0x02 + relID -> JSON(Relationship)
//   - Trees:         0x03 + treeID -> JSON(Tree)
//   - Tree persons:  0x04 + treeID + 0x00 + personID -> empty
//   - Tree rels:     0x05 + treeID + 0x00 + relID -> empty
//
// Example:
//
//	store, err := storage.NewBadgerStore("./data/geneaflow")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex // protects closed
	closed bool
}

// BadgerOptions configures the BadgerStore.
type BadgerOptions struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Useful for tests;
	// nothing is persisted.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but durable.
	SyncWrites bool

	// Logger for BadgerDB internal logging. Nil silences it.
	Logger badger.Logger
}

// NewBadgerStore opens a persistent store in dataDir with default options.
// The directory is created if it does not exist.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreWithOptions opens a store with explicit options.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	if opts.DataDir == "" && !opts.InMemory {
		return nil, fmt.Errorf("%w: data directory required", ErrInvalidData)
	}

	badgerOpts := badger.DefaultOptions(opts.DataDir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(opts.Logger)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreInMemory opens an in-memory store for tests.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

// Key builders.

func personKey(id PersonID) []byte {
	return append([]byte{prefixPerson}, id...)
}

func relationshipKey(id RelationshipID) []byte {
	return append([]byte{prefixRelationship}, id...)
}

func treeKey(id TreeID) []byte {
	return append([]byte{prefixTree}, id...)
}

func treePersonIndexKey(treeID TreeID, personID PersonID) []byte {
	key := append([]byte{prefixTreePersons}, treeID...)
	key = append(key, 0x00)
	return append(key, personID...)
}

func treePersonIndexPrefix(treeID TreeID) []byte {
	key := append([]byte{prefixTreePersons}, treeID...)
	return append(key, 0x00)
}

func treeRelIndexKey(treeID TreeID, relID RelationshipID) []byte {
	key := append([]byte{prefixTreeRels}, treeID...)
	key = append(key, 0x00)
	return append(key, relID...)
}

func treeRelIndexPrefix(treeID TreeID) []byte {
	key := append([]byte{prefixTreeRels}, treeID...)
	return append(key, 0x00)
}

// suffixAfter returns the index-key remainder after the 0x00 separator.
func suffixAfter(key, prefix []byte) []byte {
	return key[len(prefix):]
}

// JSON codec. Records are stored as plain JSON; the struct tags on the
// storage types define the on-disk schema.

func encodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

func decodePerson(data []byte) (*Person, error) {
	var p Person
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding person: %w", err)
	}
	return &p, nil
}

func decodeRelationship(data []byte) (*Relationship, error) {
	var r Relationship
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding relationship: %w", err)
	}
	return &r, nil
}

func decodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	return &t, nil
}

func (b *BadgerStore) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// getValue reads a raw value inside a txn, mapping badger's key-not-found.
func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// CreateTree stores a new tree.
func (b *BadgerStore) CreateTree(tree *Tree) error {
	if tree == nil {
		return ErrInvalidData
	}
	if tree.ID == "" {
		return ErrInvalidID
	}
	if b.isClosed() {
		return ErrStoreClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(treeKey(tree.ID)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := encodeRecord(tree)
		if err != nil {
			return err
		}
		return txn.Set(treeKey(tree.ID), data)
	})
}

// GetTree retrieves a tree by ID.
func (b *BadgerStore) GetTree(id TreeID) (*Tree, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if b.isClosed() {
		return nil, ErrStoreClosed
	}

	var tree *Tree
	err := b.db.View(func(txn *badger.Txn) error {
		data, err := getValue(txn, treeKey(id))
		if err != nil {
			return err
		}
		tree, err = decodeTree(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// UpdateTree replaces an existing tree record.
func (b *BadgerStore) UpdateTree(tree *Tree) error {
	if tree == nil {
		return ErrInvalidData
	}
	if tree.ID == "" {
		return ErrInvalidID
	}
	if b.isClosed() {
		return ErrStoreClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := getValue(txn, treeKey(tree.ID)); err != nil {
			return err
		}
		data, err := encodeRecord(tree)
		if err != nil {
			return err
		}
		return txn.Set(treeKey(tree.ID), data)
	})
}

// DeleteTree removes a tree record; member persons stay (the facade
// soft-deletes them first).
func (b *BadgerStore) DeleteTree(id TreeID) error {
	if id == "" {
		return ErrInvalidID
	}
	if b.isClosed() {
		return ErrStoreClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := getValue(txn, treeKey(id)); err != nil {
			return err
		}
		return txn.Delete(treeKey(id))
	})
}

// TreesForUser scans all trees and returns those the user owns or
// collaborates on. Tree counts are small, so a full prefix scan is fine.
func (b *BadgerStore) TreesForUser(userID UserID) ([]*Tree, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	if b.isClosed() {
		return nil, ErrStoreClosed
	}

	var out []*Tree
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixTree}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				tree, err := decodeTree(val)
				if err != nil {
					return err
				}
				if tree.RoleFor(userID) != "" {
					out = append(out, tree)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePerson stores a new person and its tree index entry.
func (b *BadgerStore) CreatePerson(p *Person) error {
	if p == nil {
		return ErrInvalidData
	}
	if p.ID == "" || p.TreeID == "" {
		return ErrInvalidID
	}
	if b.isClosed() {
		return ErrStoreClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(personKey(p.ID)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := getValue(txn, treeKey(p.TreeID)); err != nil {
			return err
		}
		data, err := encodeRecord(p)
		if err != nil {
			return err
		}
		if err := txn.Set(personKey(p.ID), data); err != nil {
			return err
		}
		return txn.Set(treePersonIndexKey(p.TreeID, p.ID), nil)
	})
}

// GetPerson retrieves a person by ID, including soft-deleted records.
func (b *BadgerStore) GetPerson(id PersonID) (*Person, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if b.isClosed() {
		return nil, ErrStoreClosed
	}

	var p *Person
	err := b.db.View(func(txn *badger.Txn) error {
		data, err := getValue(txn, personKey(id))
		if err != nil {
			return err
		}
		p, err = decodePerson(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePerson writes a person under optimistic concurrency. The version
// check runs inside a serializable Badger transaction, and Badger's own
// commit conflict detection is mapped to ErrConflict as well, so two racing
// writers to the same last-empty parent slot cannot both succeed.
func (b *BadgerStore) UpdatePerson(p *Person) error {
	if p == nil {
		return ErrInvalidData
	}
	if p.ID == "" {
		return ErrInvalidID
	}
	if b.isClosed() {
		return ErrStoreClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		data, err := getValue(txn, personKey(p.ID))
		if err != nil {
			return err
		}
		existing, err := decodePerson(data)
		if err != nil {
			return err
		}
		if existing.Version != p.Version {
			return ErrConflict
		}

		stored := copyPerson(p)
		stored.Version = p.Version + 1
		encoded, err := encodeRecord(stored)
		if err != nil {
			return err
		}
		return txn.Set(personKey(p.ID), encoded)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

// PersonsInTree lists the live persons of a tree via the tree index.
func (b *BadgerStore) PersonsInTree(treeID TreeID) ([]*Person, error) {
	if treeID == "" {
		return nil, ErrInvalidID
	}
	if b.isClosed() {
		return nil, ErrStoreClosed
	}

	prefix := treePersonIndexPrefix(treeID)
	var out []*Person
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			personID := PersonID(suffixAfter(it.Item().KeyCopy(nil), prefix))
			data, err := getValue(txn, personKey(personID))
			if errors.Is(err, ErrNotFound) {
				continue // dangling index entry
			}
			if err != nil {
				return err
			}
			p, err := decodePerson(data)
			if err != nil {
				return err
			}
			if p.SoftDeleted {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRelationship stores a relationship record and its tree index entry.
func (b *BadgerStore) CreateRelationship(r *Relationship) error {
	if r == nil {
		return ErrInvalidData
	}
	if r.ID == "" || r.TreeID == "" {
		return ErrInvalidID
	}
	if b.isClosed() {
		return ErrStoreClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(relationshipKey(r.ID)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := encodeRecord(r)
		if err != nil {
			return err
		}
		if err := txn.Set(relationshipKey(r.ID), data); err != nil {
			return err
		}
		return txn.Set(treeRelIndexKey(r.TreeID, r.ID), nil)
	})
}

// GetRelationship retrieves a relationship record by ID.
func (b *BadgerStore) GetRelationship(id RelationshipID) (*Relationship, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if b.isClosed() {
		return nil, ErrStoreClosed
	}

	var r *Relationship
	err := b.db.View(func(txn *badger.Txn) error {
		data, err := getValue(txn, relationshipKey(id))
		if err != nil {
			return err
		}
		r, err = decodeRelationship(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRelationship removes a relationship record and its index entry.
func (b *BadgerStore) DeleteRelationship(id RelationshipID) error {
	if id == "" {
		return ErrInvalidID
	}
	if b.isClosed() {
		return ErrStoreClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		data, err := getValue(txn, relationshipKey(id))
		if err != nil {
			return err
		}
		r, err := decodeRelationship(data)
		if err != nil {
			return err
		}
		if err := txn.Delete(relationshipKey(id)); err != nil {
			return err
		}
		return txn.Delete(treeRelIndexKey(r.TreeID, id))
	})
}

// RelationshipsInTree lists all relationship records of a tree.
func (b *BadgerStore) RelationshipsInTree(treeID TreeID) ([]*Relationship, error) {
	if treeID == "" {
		return nil, ErrInvalidID
	}
	if b.isClosed() {
		return nil, ErrStoreClosed
	}

	prefix := treeRelIndexPrefix(treeID)
	var out []*Relationship
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			relID := RelationshipID(suffixAfter(it.Item().KeyCopy(nil), prefix))
			data, err := getValue(txn, relationshipKey(relID))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			r, err := decodeRelationship(data)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PersonCount returns the total number of person records.
func (b *BadgerStore) PersonCount() (int64, error) {
	if b.isClosed() {
		return 0, ErrStoreClosed
	}

	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixPerson}
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close shuts down the underlying BadgerDB instance.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
