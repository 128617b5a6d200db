// Package store is the document-oriented state store (C1): durable records
// of users, workspaces, sandboxes, teams, memberships, API tokens and
// app templates, each in its own collection with ad-hoc secondary lookups.
package store

import (
	"github.com/kanbanhq/controlplane/pkg/types"
)

// Store defines the state-store interface. Implementations are backed by a
// single-writer, file-backed document DB (see BoltStore); operations are
// synchronous and the caller must not assume concurrent writers.
type Store interface {
	CreateUser(u *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByEmail(email string) (*types.User, error)
	GetUserByExternalSub(sub string) (*types.User, error)
	UpsertUserFromExternalIdentity(sub, email, displayName string) (*types.User, error)
	UpdateUser(u *types.User) error
	DeleteUser(id string) error

	CreateAppTemplate(t *types.AppTemplate) error
	GetAppTemplate(id string) (*types.AppTemplate, error)
	GetAppTemplateBySlug(slug string) (*types.AppTemplate, error)
	ListAppTemplates() ([]*types.AppTemplate, error)
	UpdateAppTemplate(t *types.AppTemplate) error

	CreateWorkspace(w *types.Workspace) error
	GetWorkspace(id string) (*types.Workspace, error)
	GetWorkspaceBySlug(slug string) (*types.Workspace, error)
	ListWorkspaces() ([]*types.Workspace, error)
	ListWorkspacesByOwner(userID string) ([]*types.Workspace, error)
	UpdateWorkspace(w *types.Workspace) error
	DeleteWorkspace(id string) error

	CreateSandbox(s *types.Sandbox) error
	GetSandbox(id string) (*types.Sandbox, error)
	GetSandboxByFullSlug(fullSlug string) (*types.Sandbox, error)
	ListSandboxesByWorkspace(workspaceID string) ([]*types.Sandbox, error)
	UpdateSandbox(s *types.Sandbox) error
	DeleteSandbox(id string) error

	CreateTeam(t *types.Team) error
	GetTeam(id string) (*types.Team, error)
	GetTeamBySlug(slug string) (*types.Team, error)
	ListTeams() ([]*types.Team, error)
	UpdateTeam(t *types.Team) error
	DeleteTeam(id string) error

	CreateMembership(m *types.Membership) error
	GetMembership(teamID, userID string) (*types.Membership, error)
	ListMembershipsByTeam(teamID string) ([]*types.Membership, error)
	ListMembershipsByUser(userID string) ([]*types.Membership, error)
	DeleteMembership(teamID, userID string) error

	CreateAPIToken(t *types.APIToken) error
	GetAPIToken(id string) (*types.APIToken, error)
	GetAPITokenByHash(hash string) (*types.APIToken, error)
	ListAPITokensByUser(userID string) ([]*types.APIToken, error)
	UpdateAPIToken(t *types.APIToken) error
	DeleteAPIToken(id string) error

	Close() error
}
