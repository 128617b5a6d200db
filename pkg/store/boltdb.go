// Package store is the document-oriented state store (C1): durable records
// of users, workspaces, sandboxes, teams, memberships, API tokens and
// app templates, each in its own collection with ad-hoc secondary lookups.
package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketUsers        = []byte("users")
	bucketAppTemplates = []byte("app_templates")
	bucketWorkspaces   = []byte("workspaces")
	bucketSandboxes    = []byte("sandboxes")
	bucketTeams        = []byte("teams")
	bucketMemberships  = []byte("memberships")
	bucketAPITokens    = []byte("api_tokens")
)

// BoltStore implements Store over a single bbolt file. bbolt serializes
// writers at the file level, which is how the control plane's
// single-exclusive-writer assumption is satisfied without a separate RPC
// layer.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the state-store database under
// dataDir and ensures every collection bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "controlplane.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketUsers, bucketAppTemplates, bucketWorkspaces,
			bucketSandboxes, bucketTeams, bucketMemberships, bucketAPITokens,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

var _ Store = (*BoltStore)(nil)

func newID() string { return uuid.NewString() }

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// --- Users ---

func (s *BoltStore) CreateUser(u *types.User) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = newID()
	}
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now
	return s.db.Update(func(tx *bolt.Tx) error {
		if existing, _ := findOne[types.User](tx, bucketUsers, func(e *types.User) bool {
			return e.Email == u.Email
		}); existing != nil {
			return apierr.Conflict(fmt.Sprintf("user with email %q already exists", u.Email))
		}
		return put(tx, bucketUsers, u.ID, u)
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	return getOne[types.User](s.db, bucketUsers, id)
}

func (s *BoltStore) GetUserByEmail(email string) (*types.User, error) {
	email = strings.ToLower(email)
	return scanOne[types.User](s.db, bucketUsers, func(u *types.User) bool { return u.Email == email })
}

func (s *BoltStore) GetUserByExternalSub(sub string) (*types.User, error) {
	return scanOne[types.User](s.db, bucketUsers, func(u *types.User) bool { return u.ExternalSub == sub })
}

// UpsertUserFromExternalIdentity merges by stable external subject id and
// refreshes last-login, creating the user on first successful auth.
func (s *BoltStore) UpsertUserFromExternalIdentity(sub, email, displayName string) (*types.User, error) {
	email = strings.ToLower(email)
	var result types.User
	err := s.db.Update(func(tx *bolt.Tx) error {
		existing, err := findOne[types.User](tx, bucketUsers, func(u *types.User) bool {
			return u.ExternalSub == sub
		})
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if existing != nil {
			existing.Email = email
			existing.DisplayName = displayName
			existing.LastLoginAt = now
			existing.UpdatedAt = now
			result = *existing
			return put(tx, bucketUsers, existing.ID, existing)
		}
		u := &types.User{
			ID:          newID(),
			ExternalSub: sub,
			Email:       email,
			DisplayName: displayName,
			LastLoginAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		result = *u
		return put(tx, bucketUsers, u.ID, u)
	})
	return &result, err
}

func (s *BoltStore) UpdateUser(u *types.User) error {
	u.UpdatedAt = time.Now().UTC()
	u.Email = strings.ToLower(u.Email)
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketUsers, u.ID, u) })
}

func (s *BoltStore) DeleteUser(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketUsers).Delete([]byte(id)); err != nil {
			return err
		}
		// Revoke all tokens owned by this user.
		return forEach[types.APIToken](tx, bucketAPITokens, func(t *types.APIToken) error {
			if t.CreatedBy == id && t.Active {
				t.Active = false
				return put(tx, bucketAPITokens, t.ID, t)
			}
			return nil
		})
	})
}

// --- AppTemplates ---

func (s *BoltStore) CreateAppTemplate(t *types.AppTemplate) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAppTemplates, t.ID, t) })
}

func (s *BoltStore) GetAppTemplate(id string) (*types.AppTemplate, error) {
	return getOne[types.AppTemplate](s.db, bucketAppTemplates, id)
}

func (s *BoltStore) GetAppTemplateBySlug(slug string) (*types.AppTemplate, error) {
	return scanOne[types.AppTemplate](s.db, bucketAppTemplates, func(t *types.AppTemplate) bool {
		return t.Slug == slug
	})
}

func (s *BoltStore) ListAppTemplates() ([]*types.AppTemplate, error) {
	return listAll[types.AppTemplate](s.db, bucketAppTemplates)
}

func (s *BoltStore) UpdateAppTemplate(t *types.AppTemplate) error {
	t.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAppTemplates, t.ID, t) })
}

// --- Workspaces ---

func (s *BoltStore) CreateWorkspace(w *types.Workspace) error {
	now := time.Now().UTC()
	if w.ID == "" {
		w.ID = newID()
	}
	w.CreatedAt, w.UpdatedAt = now, now
	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := findOne[types.Workspace](tx, bucketWorkspaces, func(e *types.Workspace) bool {
			return e.Slug == w.Slug
		})
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.Conflict(fmt.Sprintf("workspace slug %q already in use", w.Slug))
		}
		return put(tx, bucketWorkspaces, w.ID, w)
	})
}

func (s *BoltStore) GetWorkspace(id string) (*types.Workspace, error) {
	return getOne[types.Workspace](s.db, bucketWorkspaces, id)
}

func (s *BoltStore) GetWorkspaceBySlug(slug string) (*types.Workspace, error) {
	return scanOne[types.Workspace](s.db, bucketWorkspaces, func(w *types.Workspace) bool {
		return w.Slug == slug
	})
}

func (s *BoltStore) ListWorkspaces() ([]*types.Workspace, error) {
	return listAll[types.Workspace](s.db, bucketWorkspaces)
}

func (s *BoltStore) ListWorkspacesByOwner(userID string) ([]*types.Workspace, error) {
	return filterAll[types.Workspace](s.db, bucketWorkspaces, func(w *types.Workspace) bool {
		return w.OwnerUserID == userID
	})
}

func (s *BoltStore) UpdateWorkspace(w *types.Workspace) error {
	w.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketWorkspaces, w.ID, w) })
}

func (s *BoltStore) DeleteWorkspace(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketWorkspaces).Delete([]byte(id)) })
}

// --- Sandboxes ---

func (s *BoltStore) CreateSandbox(sb *types.Sandbox) error {
	now := time.Now().UTC()
	if sb.ID == "" {
		sb.ID = newID()
	}
	sb.CreatedAt, sb.UpdatedAt = now, now
	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := findOne[types.Sandbox](tx, bucketSandboxes, func(e *types.Sandbox) bool {
			return e.FullSlug == sb.FullSlug
		})
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.Conflict(fmt.Sprintf("sandbox full_slug %q already in use", sb.FullSlug))
		}
		return put(tx, bucketSandboxes, sb.ID, sb)
	})
}

func (s *BoltStore) GetSandbox(id string) (*types.Sandbox, error) {
	return getOne[types.Sandbox](s.db, bucketSandboxes, id)
}

func (s *BoltStore) GetSandboxByFullSlug(fullSlug string) (*types.Sandbox, error) {
	return scanOne[types.Sandbox](s.db, bucketSandboxes, func(sb *types.Sandbox) bool {
		return sb.FullSlug == fullSlug
	})
}

func (s *BoltStore) ListSandboxesByWorkspace(workspaceID string) ([]*types.Sandbox, error) {
	return filterAll[types.Sandbox](s.db, bucketSandboxes, func(sb *types.Sandbox) bool {
		return sb.WorkspaceID == workspaceID
	})
}

func (s *BoltStore) UpdateSandbox(sb *types.Sandbox) error {
	sb.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketSandboxes, sb.ID, sb) })
}

func (s *BoltStore) DeleteSandbox(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketSandboxes).Delete([]byte(id)) })
}

// --- Teams ---

func (s *BoltStore) CreateTeam(t *types.Team) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := findOne[types.Team](tx, bucketTeams, func(e *types.Team) bool {
			return e.Slug == t.Slug
		})
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.Conflict(fmt.Sprintf("team slug %q already in use", t.Slug))
		}
		return put(tx, bucketTeams, t.ID, t)
	})
}

func (s *BoltStore) GetTeam(id string) (*types.Team, error) {
	return getOne[types.Team](s.db, bucketTeams, id)
}

func (s *BoltStore) GetTeamBySlug(slug string) (*types.Team, error) {
	return scanOne[types.Team](s.db, bucketTeams, func(t *types.Team) bool { return t.Slug == slug })
}

func (s *BoltStore) ListTeams() ([]*types.Team, error) {
	return listAll[types.Team](s.db, bucketTeams)
}

func (s *BoltStore) UpdateTeam(t *types.Team) error {
	t.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketTeams, t.ID, t) })
}

func (s *BoltStore) DeleteTeam(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketTeams).Delete([]byte(id)) })
}

// --- Memberships ---

func (s *BoltStore) CreateMembership(m *types.Membership) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := findOne[types.Membership](tx, bucketMemberships, func(e *types.Membership) bool {
			return e.TeamID == m.TeamID && e.UserID == m.UserID
		})
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.Conflict(fmt.Sprintf("user %s is already a member of team %s", m.UserID, m.TeamID))
		}
		return put(tx, bucketMemberships, m.ID, m)
	})
}

func (s *BoltStore) GetMembership(teamID, userID string) (*types.Membership, error) {
	return scanOne[types.Membership](s.db, bucketMemberships, func(m *types.Membership) bool {
		return m.TeamID == teamID && m.UserID == userID
	})
}

func (s *BoltStore) ListMembershipsByTeam(teamID string) ([]*types.Membership, error) {
	return filterAll[types.Membership](s.db, bucketMemberships, func(m *types.Membership) bool {
		return m.TeamID == teamID
	})
}

func (s *BoltStore) ListMembershipsByUser(userID string) ([]*types.Membership, error) {
	return filterAll[types.Membership](s.db, bucketMemberships, func(m *types.Membership) bool {
		return m.UserID == userID
	})
}

func (s *BoltStore) DeleteMembership(teamID, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMemberships)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m types.Membership
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.TeamID == teamID && m.UserID == userID {
				return b.Delete(k)
			}
		}
		return nil
	})
}

// --- API Tokens ---

func (s *BoltStore) CreateAPIToken(t *types.APIToken) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAPITokens, t.ID, t) })
}

func (s *BoltStore) GetAPIToken(id string) (*types.APIToken, error) {
	return getOne[types.APIToken](s.db, bucketAPITokens, id)
}

func (s *BoltStore) GetAPITokenByHash(hash string) (*types.APIToken, error) {
	return scanOne[types.APIToken](s.db, bucketAPITokens, func(t *types.APIToken) bool {
		return t.TokenHash == hash
	})
}

func (s *BoltStore) ListAPITokensByUser(userID string) ([]*types.APIToken, error) {
	return filterAll[types.APIToken](s.db, bucketAPITokens, func(t *types.APIToken) bool {
		return t.CreatedBy == userID
	})
}

func (s *BoltStore) UpdateAPIToken(t *types.APIToken) error {
	t.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAPITokens, t.ID, t) })
}

func (s *BoltStore) DeleteAPIToken(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketAPITokens).Delete([]byte(id)) })
}

// --- generic bucket-scan helpers ---
// bbolt has no secondary indexes; every ad-hoc lookup by a field other
// than id becomes a ForEach scan here.

func getOne[T any](db *bolt.DB, bucket []byte, id string) (*T, error) {
	var v T
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return apierr.Validationf("not found: %s", id)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanOne[T any](db *bolt.DB, bucket []byte, pred func(*T) bool) (*T, error) {
	var result *T
	err := db.View(func(tx *bolt.Tx) error {
		found, err := findOne(tx, bucket, pred)
		result = found
		return err
	})
	return result, err
}

func findOne[T any](tx *bolt.Tx, bucket []byte, pred func(*T) bool) (*T, error) {
	var result *T
	c := tx.Bucket(bucket).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var e T
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, err
		}
		if pred(&e) {
			result = &e
			return result, nil
		}
	}
	return nil, nil
}

func listAll[T any](db *bolt.DB, bucket []byte) ([]*T, error) {
	var out []*T
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
			var e T
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, &e)
			return nil
		})
	})
	return out, err
}

func filterAll[T any](db *bolt.DB, bucket []byte, pred func(*T) bool) ([]*T, error) {
	all, err := listAll[T](db, bucket)
	if err != nil {
		return nil, err
	}
	var out []*T
	for _, e := range all {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func forEach[T any](tx *bolt.Tx, bucket []byte, fn func(*T) error) error {
	c := tx.Bucket(bucket).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var e T
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		if err := fn(&e); err != nil {
			return err
		}
	}
	return nil
}
