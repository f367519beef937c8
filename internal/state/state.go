// Package state is the client's durable local cache: a bbolt database
// holding tracked entries namespaced per user and domain, plus the
// current session.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/fittrack/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.fittrack/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket = []byte("app")
	tokenKey  = []byte("token")
	userKey   = []byte("user")
)

// Namespace is the per-user, per-domain partition of the cache.
// Deriving the bucket name from both parts keeps one user's data
// invisible to another session on the same machine.
type Namespace struct {
	UserID string
	Domain models.Domain
}

func (n Namespace) bucket() []byte {
	return []byte("user:" + n.UserID + ":" + string(n.Domain))
}

// State wraps a bbolt database for all persistent client state.
type State struct {
	db *bolt.DB
}

// Load opens the state database at <dir>/state.db, creating it if it
// does not exist.
func Load(dir string) (*State, error) {
	return LoadAt(filepath.Join(dir, "state.db"))
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Token returns the cached session token, or empty string.
func (s *State) Token() string {
	var token string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(tokenKey)
		if v != nil {
			token = string(v)
		}

		return nil
	})

	return token
}

// SetToken persists the session token.
func (s *State) SetToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(tokenKey, []byte(token))
	})
}

// CurrentUser returns the cached user identity, or nil when no session
// is stored.
func (s *State) CurrentUser() (*models.User, error) {
	var user *models.User

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(userKey)
		if v == nil {
			return nil
		}

		user = &models.User{}

		return json.Unmarshal(v, user)
	})

	return user, err
}

// SetSession persists the token and user identity together, as written
// after a successful login.
func (s *State) SetSession(token string, user models.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(appBucket)

		if err := b.Put(tokenKey, []byte(token)); err != nil {
			return err
		}

		data, err := json.Marshal(user)
		if err != nil {
			return err
		}

		return b.Put(userKey, data)
	})
}

// ClearSession removes the stored token and user identity.
func (s *State) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(appBucket)

		if err := b.Delete(tokenKey); err != nil {
			return err
		}

		return b.Delete(userKey)
	})
}

// Entries returns the stored mapping for a namespace. Absence is not an
// error: a namespace that was never written yields an empty mapping.
// Individual values that fail to decode are skipped so one corrupt
// record cannot take the whole namespace down.
func (s *State) Entries(ns Namespace) (map[string]models.Entry, error) {
	result := make(map[string]models.Entry)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(ns.bucket())
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var entry models.Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}

			result[string(k)] = entry

			return nil
		})
	})

	return result, err
}

// SaveEntries fully overwrites the namespace's stored mapping. The
// write happens in a single bolt transaction: callers never observe a
// partially replaced namespace.
func (s *State) SaveEntries(ns Namespace, entries map[string]models.Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		name := ns.bucket()

		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}

		b, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}

		for key, entry := range entries {
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}

			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// Clear removes all entries for a namespace.
func (s *State) Clear(ns Namespace) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(ns.bucket()) == nil {
			return nil
		}

		return tx.DeleteBucket(ns.bucket())
	})
}

// ClearUser removes every domain namespace belonging to a user. Called
// on logout and before switching accounts so the next session cannot
// see the previous user's data.
func (s *State) ClearUser(userID string) error {
	domains := append([]models.Domain{models.DomainWeights}, models.SyncedDomains...)

	return s.db.Update(func(tx *bolt.Tx) error {
		for _, domain := range domains {
			name := Namespace{UserID: userID, Domain: domain}.bucket()
			if tx.Bucket(name) == nil {
				continue
			}

			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}

		return nil
	})
}
