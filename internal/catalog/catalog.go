// Package catalog holds providers, their reviews and ownership claims, and the
// rules for submitting, searching and aggregating them.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrInvalidClaim  = errors.New("claim is missing required fields")
	ErrInvalidStatus = errors.New("claim status must be approved or rejected")
)

type Provider struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Company   string    `json:"company,omitempty"`
	Claimed   bool      `json:"claimed"`
	CreatedAt time.Time `json:"createdAt"`
}

type Review struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"providerId"`
	Message    string    `json:"message"`
	Rating     int       `json:"rating"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ReviewResult is one row of a review search, flattened with its provider.
type ReviewResult struct {
	ProviderID   string    `json:"providerId"`
	ProviderName string    `json:"providerName"`
	Phone        string    `json:"phone"`
	Message      string    `json:"message"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// Claim asserts that the submitting user represents a provider. Documents are
// links to supporting files uploaded elsewhere.
type Claim struct {
	ID             string      `json:"id"`
	ProviderID     string      `json:"providerId"`
	ProviderName   string      `json:"providerName,omitempty"`
	UserID         string      `json:"userId"`
	UserEmail      string      `json:"userEmail"`
	UserName       string      `json:"userName,omitempty"`
	Representative string      `json:"representative"`
	Role           string      `json:"role,omitempty"`
	Phone          string      `json:"phone"`
	TaxID          string      `json:"taxId"`
	Address        string      `json:"address,omitempty"`
	Message        string      `json:"message,omitempty"`
	Documents      []string    `json:"documents"`
	Status         ClaimStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Repository is the document store behind the catalog. Lookups of missing
// records return ErrNotFound.
type Repository interface {
	CreateProvider(ctx context.Context, p Provider) error
	GetProvider(ctx context.Context, id string) (Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	SetProviderClaimed(ctx context.Context, id string, claimed bool) error

	AddReview(ctx context.Context, r Review) error
	ListReviews(ctx context.Context, providerID string) ([]Review, error)

	AddClaim(ctx context.Context, c Claim) error
	GetClaim(ctx context.Context, id string) (Claim, error)
	ListClaims(ctx context.Context) ([]Claim, error)
	SetClaimStatus(ctx context.Context, id string, status ClaimStatus) error

	Close() error
}
