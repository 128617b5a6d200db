// Package repo is the repository adapter (C3): GitHub template-repo
// creation and branch management.
package repo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v66/github"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"golang.org/x/oauth2"
)

// Adapter wraps a GitHub client authenticated with a bearer token.
type Adapter struct {
	client *github.Client
}

// New builds an adapter authenticated with a personal access token / GitHub
// App installation token.
func New(token string) *Adapter {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &Adapter{client: github.NewClient(httpClient)}
}

// CreateFromTemplate creates newOwner/newRepo from templateOwner/templateRepo.
func (a *Adapter) CreateFromTemplate(ctx context.Context, templateOwner, templateRepo, newOwner, newRepo string) error {
	_, resp, err := a.client.Repositories.CreateFromTemplate(ctx, templateOwner, templateRepo, &github.TemplateRepoRequest{
		Name:    github.String(newRepo),
		Owner:   github.String(newOwner),
		Private: github.Bool(true),
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			// Repo already exists from a previous, partially-completed run.
			return nil
		}
		return apierr.Transient(fmt.Sprintf("create repo from template %s/%s", templateOwner, templateRepo), err)
	}
	return nil
}

// Delete removes owner/repo. No-op if already absent.
func (a *Adapter) Delete(ctx context.Context, owner, repoName string) error {
	_, err := a.client.Repositories.Delete(ctx, owner, repoName)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return apierr.Transient(fmt.Sprintf("delete repo %s/%s", owner, repoName), err)
	}
	return nil
}

// BranchCreate creates newBranch off fromBranch. Idempotent: an
// already-existing branch with the same name is treated as success.
func (a *Adapter) BranchCreate(ctx context.Context, owner, repoName, newBranch, fromBranch string) error {
	source, _, err := a.client.Repositories.GetBranch(ctx, owner, repoName, fromBranch, 0)
	if err != nil {
		return apierr.Permanent(fmt.Sprintf("source branch %s not found in %s/%s", fromBranch, owner, repoName), err)
	}

	_, resp, err := a.client.Git.CreateRef(ctx, owner, repoName, &github.Reference{
		Ref:    github.String("refs/heads/" + newBranch),
		Object: &github.GitObject{SHA: source.Commit.SHA},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			return nil // branch already exists
		}
		return apierr.Transient(fmt.Sprintf("create branch %s in %s/%s", newBranch, owner, repoName), err)
	}
	return nil
}

// BranchDelete removes a branch. No-op if already absent.
func (a *Adapter) BranchDelete(ctx context.Context, owner, repoName, branch string) error {
	_, err := a.client.Git.DeleteRef(ctx, owner, repoName, "refs/heads/"+branch)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return apierr.Transient(fmt.Sprintf("delete branch %s in %s/%s", branch, owner, repoName), err)
	}
	return nil
}

func isNotFound(err error) bool {
	if ghErr, ok := err.(*github.ErrorResponse); ok {
		return ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
