package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// phoneMatchDigits is how many trailing phone characters identify a provider.
const phoneMatchDigits = 8

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ReviewInput struct {
	Name    string
	Phone   string
	Message string
	Rating  int
}

type Profile struct {
	Provider     Provider    `json:"provider"`
	Reviews      []Review    `json:"reviews"`
	Average      float64     `json:"average"`
	Distribution map[int]int `json:"distribution"`
	Label        string      `json:"label,omitempty"`
}

// SubmitReview attaches a review to the provider matching the phone or name,
// creating the provider when none matches.
func (s *Service) SubmitReview(ctx context.Context, in ReviewInput) (Review, Provider, error) {
	if !validRating(in.Rating) {
		return Review{}, Provider{}, ErrInvalidRating
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)

	provider, found, err := s.findProvider(ctx, in.Name, in.Phone)
	if err != nil {
		return Review{}, Provider{}, err
	}

	if !found {
		provider = Provider{
			ID:        s.newID(),
			Name:      in.Name,
			Phone:     in.Phone,
			CreatedAt: s.now(),
		}
		if err := s.repo.CreateProvider(ctx, provider); err != nil {
			return Review{}, Provider{}, fmt.Errorf("create provider: %w", err)
		}
		s.logger.Info("provider created", "provider", provider.ID)
	}

	review := Review{
		ID:         s.newID(),
		ProviderID: provider.ID,
		Message:    strings.TrimSpace(in.Message),
		Rating:     in.Rating,
		CreatedAt:  s.now(),
	}
	if err := s.repo.AddReview(ctx, review); err != nil {
		return Review{}, Provider{}, fmt.Errorf("add review: %w", err)
	}

	return review, provider, nil
}

// findProvider returns the last listed provider matching phone or name.
func (s *Service) findProvider(ctx context.Context, name, phone string) (Provider, bool, error) {
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		return Provider{}, false, fmt.Errorf("list providers: %w", err)
	}

	var (
		match Provider
		found bool
	)
	suffix := lastRunes(phone, phoneMatchDigits)
	for _, p := range providers {
		phoneMatch := suffix != "" && lastRunes(strings.TrimSpace(p.Phone), phoneMatchDigits) == suffix
		nameMatch := name != "" && strings.EqualFold(strings.TrimSpace(p.Name), name)
		if phoneMatch || nameMatch {
			match, found = p, true
		}
	}

	return match, found, nil
}

// SearchProviders returns up to limit providers whose name or phone contains q.
// A non-positive limit returns every match.
func (s *Service) SearchProviders(ctx context.Context, q string, limit int) ([]Provider, error) {
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	q = strings.ToLower(strings.TrimSpace(q))
	out := []Provider{}
	for _, p := range providers {
		if !matches(p, q) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out, nil
}

// SearchReviews returns every review of every provider matching q, newest first.
func (s *Service) SearchReviews(ctx context.Context, q string) ([]ReviewResult, error) {
	providers, err := s.SearchProviders(ctx, q, 0)
	if err != nil {
		return nil, err
	}

	out := []ReviewResult{}
	for _, p := range providers {
		reviews, err := s.repo.ListReviews(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list reviews for %s: %w", p.ID, err)
		}
		for _, r := range reviews {
			out = append(out, ReviewResult{
				ProviderID:   p.ID,
				ProviderName: p.Name,
				Phone:        p.Phone,
				Message:      r.Message,
				Rating:       r.Rating,
				CreatedAt:    r.CreatedAt,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (s *Service) Profile(ctx context.Context, id string) (Profile, error) {
	provider, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	reviews, err := s.repo.ListReviews(ctx, id)
	if err != nil {
		return Profile{}, fmt.Errorf("list reviews for %s: %w", id, err)
	}
	if reviews == nil {
		reviews = []Review{}
	}

	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})

	profile := Profile{
		Provider:     provider,
		Reviews:      reviews,
		Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}

	if len(reviews) == 0 {
		return profile, nil
	}

	total := 0
	for _, r := range reviews {
		total += r.Rating
		if validRating(r.Rating) {
			profile.Distribution[r.Rating]++
		}
	}
	profile.Average = math.Round(float64(total)/float64(len(reviews))*10) / 10
	profile.Label = RatingLabel(profile.Average)

	return profile, nil
}

// SubmitClaim records a pending claim against an existing provider.
func (s *Service) SubmitClaim(ctx context.Context, c Claim) (Claim, error) {
	if c.ProviderID == "" || c.UserID == "" || c.UserEmail == "" ||
		c.Representative == "" || c.Phone == "" || c.TaxID == "" {
		return Claim{}, ErrInvalidClaim
	}

	provider, err := s.repo.GetProvider(ctx, c.ProviderID)
	if err != nil {
		return Claim{}, err
	}

	c.ID = s.newID()
	c.Status = ClaimPending
	c.CreatedAt = s.now()
	if c.ProviderName == "" {
		c.ProviderName = provider.Name
	}
	if c.Documents == nil {
		c.Documents = []string{}
	}

	if err := s.repo.AddClaim(ctx, c); err != nil {
		return Claim{}, fmt.Errorf("add claim: %w", err)
	}

	s.logger.Info("claim submitted", "claim", c.ID, "provider", c.ProviderID)
	return c, nil
}

func (s *Service) ListClaims(ctx context.Context, status ClaimStatus) ([]Claim, error) {
	claims, err := s.repo.ListClaims(ctx)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	out := []Claim{}
	for _, c := range claims {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}

	return out, nil
}

// ReviewClaim settles a claim. Approving it marks the provider as claimed.
func (s *Service) ReviewClaim(ctx context.Context, id string, status ClaimStatus) (Claim, error) {
	if status != ClaimApproved && status != ClaimRejected {
		return Claim{}, ErrInvalidStatus
	}

	claim, err := s.repo.GetClaim(ctx, id)
	if err != nil {
		return Claim{}, err
	}

	// provider first: any failure below leaves the claim pending
	if status == ClaimApproved {
		if err := s.repo.SetProviderClaimed(ctx, claim.ProviderID, true); err != nil {
			return Claim{}, fmt.Errorf("mark provider claimed: %w", err)
		}
	}

	if err := s.repo.SetClaimStatus(ctx, id, status); err != nil {
		return Claim{}, fmt.Errorf("set claim status: %w", err)
	}
	claim.Status = status

	s.logger.Info("claim reviewed", "claim", id, "status", status)
	return claim, nil
}

func matches(p Provider, q string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Phone), q)
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
