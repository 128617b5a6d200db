package repo

import (
	"net/http"
	"testing"

	"github.com/google/go-github/v66/github"
)

func TestIsNotFoundRecognizesGitHubErrorResponse(t *testing.T) {
	notFound := &github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusNotFound},
	}
	if !isNotFound(notFound) {
		t.Fatalf("expected 404 ErrorResponse to be recognized as not found")
	}

	serverErr := &github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusInternalServerError},
	}
	if isNotFound(serverErr) {
		t.Fatalf("expected 500 ErrorResponse to not be treated as not found")
	}

	if isNotFound(nil) {
		t.Fatalf("expected nil error to not be treated as not found")
	}
}
