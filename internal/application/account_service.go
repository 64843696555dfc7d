package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-service/internal/domain/entity"
	repo "github.com/oksasatya/account-service/internal/domain/repository"
	"github.com/oksasatya/account-service/pkg/helpers"
	"github.com/oksasatya/account-service/pkg/metrics"
)

// Username and password constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxPasswordBytes  = 72 // bcrypt input limit

	defaultSearchSize = 10
	maxSearchSize     = 50
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// AccountCache caches sanitized accounts by id. Set must drop a copy older
// than the last Invalidate for the id, and every copy after Delete, so a read
// racing a write cannot put a stale account back.
type AccountCache interface {
	Get(ctx context.Context, id string) (*entity.Account, bool)
	Set(ctx context.Context, a *entity.Account)
	Invalidate(ctx context.Context, a *entity.Account)
	Delete(ctx context.Context, id string)
}

// SearchIndex keeps a searchable copy of sanitized accounts.
type SearchIndex interface {
	Index(ctx context.Context, a *entity.Account) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, q string, size int) ([]*entity.Account, error)
}

// EventPublisher publishes account lifecycle events.
type EventPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// AvatarStore uploads avatar images and returns their public URL.
type AvatarStore interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// Service enforces the account rules on top of an AccountRepository.
// It keeps no state between calls.
type Service struct {
	repo    repo.AccountRepository
	hasher  helpers.PasswordHasher
	logger  *logrus.Logger
	cache   AccountCache
	search  SearchIndex
	events  EventPublisher
	avatars AvatarStore
	now     func() time.Time

	// dummyHash is verified against when the username is unknown so the
	// response time does not reveal whether the account exists.
	dummyHash string
}

// Option configures optional Service collaborators.
type Option func(*Service)

func WithLogger(l *logrus.Logger) Option   { return func(s *Service) { s.logger = l } }
func WithCache(c AccountCache) Option      { return func(s *Service) { s.cache = c } }
func WithSearch(idx SearchIndex) Option    { return func(s *Service) { s.search = idx } }
func WithEvents(p EventPublisher) Option   { return func(s *Service) { s.events = p } }
func WithAvatarStore(a AvatarStore) Option { return func(s *Service) { s.avatars = a } }
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the service. The repository and hasher are required.
func NewService(r repo.AccountRepository, hasher helpers.PasswordHasher, opts ...Option) (*Service, error) {
	if r == nil {
		return nil, errors.New("account repository is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	s := &Service{repo: r, hasher: hasher, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetOutput(io.Discard)
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// RegisterInput is a candidate account with a plaintext password.
type RegisterInput struct {
	Username    string
	Password    string
	Email       string
	DisplayName string
	Phone       string
	AvatarURL   string
}

// ValidateUsername checks length and character rules on a trimmed username.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return invalid("username", "is required")
	case len(username) < MinUsernameLength:
		return invalid("username", fmt.Sprintf("must be at least %d characters", MinUsernameLength))
	case len(username) > MaxUsernameLength:
		return invalid("username", fmt.Sprintf("must be at most %d characters", MaxUsernameLength))
	case !usernameRegex.MatchString(username):
		return invalid("username", "must start with a letter and contain only letters, numbers and underscores")
	}
	return nil
}

// ValidatePassword checks a plaintext password before hashing.
func ValidatePassword(password string) error {
	if password == "" {
		return invalid("password", "is required")
	}
	if len(password) > MaxPasswordBytes {
		return invalid("password", fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}

// Authenticate verifies a username/password pair and returns the account.
// Unknown usernames and wrong passwords yield the same ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*entity.Account, error) {
	username = entity.NormalizeUsername(username)
	log := s.logger.WithFields(logrus.Fields{"event": "account.authenticate", "username": username})

	var (
		target = s.dummyHash
		found  *entity.Account
	)
	if username != "" {
		a, err := s.repo.FindByUsername(ctx, username)
		switch {
		case err == nil:
			found = a
			target = a.PasswordHash
		case errors.Is(err, repo.ErrNotFound):
		default:
			metrics.RecordAuthAttempt("error")
			log.WithError(err).Error("account lookup failed")
			return nil, repoErr("find by username", err)
		}
	}

	ok, err := s.hasher.Verify(password, target)
	if err != nil && found != nil {
		log.WithError(err).WithField("account_id", found.ID).Error("stored credential is unreadable")
	}
	if found == nil || password == "" || !ok || err != nil {
		metrics.RecordAuthAttempt("failure")
		log.Info("authentication failed")
		return nil, ErrInvalidCredentials
	}

	metrics.RecordAuthAttempt("success")
	log.WithField("account_id", found.ID).Info("authentication succeeded")
	return found.Sanitized(), nil
}

// Register creates a new account. The pre-check gives a fast conflict; the
// repository insert is the authoritative uniqueness check.
func (s *Service) Register(ctx context.Context, in RegisterInput) (out *entity.Account, err error) {
	defer func() { observe("register", err) }()

	username := entity.NormalizeUsername(in.Username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, repoErr("find by username", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.timestamp()
	a := &entity.Account{
		Username:     username,
		PasswordHash: hash,
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		Phone:        in.Phone,
		AvatarURL:    in.AvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := s.repo.Insert(ctx, a)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateUsername) {
			s.logger.WithField("username", username).Info("username taken at insert")
			return nil, ErrConflict
		}
		return nil, repoErr("insert", err)
	}
	a.ID = id

	out = a.Sanitized()
	s.logger.WithFields(logrus.Fields{"account_id": out.ID, "username": out.Username}).Info("account registered")
	s.index(ctx, out)
	s.publish(ctx, entity.NewAccountEvent(entity.EventAccountRegistered, out, nil))
	return out, nil
}

// GetByID returns the account with the given id.
func (s *Service) GetByID(ctx context.Context, id string) (out *entity.Account, err error) {
	defer func() { observe("get_by_id", err) }()

	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	if s.cache != nil {
		if a, ok := s.cache.Get(ctx, id); ok {
			return a.Sanitized(), nil
		}
	}
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr("find by id", err)
	}
	out = a.Sanitized()
	if s.cache != nil {
		s.cache.Set(ctx, out)
	}
	return out, nil
}

// GetByUsername returns the account owning username (case-insensitive).
func (s *Service) GetByUsername(ctx context.Context, username string) (out *entity.Account, err error) {
	defer func() { observe("get_by_username", err) }()

	username = entity.NormalizeUsername(username)
	if username == "" {
		return nil, ErrNotFound
	}
	a, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, lookupErr("find by username", err)
	}
	return a.Sanitized(), nil
}

// Update merges patch into the account identified by id. The id argument is
// authoritative and CreatedAt never changes.
func (s *Service) Update(ctx context.Context, id string, patch entity.AccountPatch) (out *entity.Account, err error) {
	defer func() { observe("update", err) }()

	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr("find by id", err)
	}

	next := *cur
	var changes []string

	if patch.Username != nil {
		username := entity.NormalizeUsername(*patch.Username)
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
		if entity.UsernameKey(username) != entity.UsernameKey(cur.Username) {
			other, err := s.repo.FindByUsername(ctx, username)
			switch {
			case err == nil && other.ID != cur.ID:
				return nil, ErrConflict
			case err != nil && !errors.Is(err, repo.ErrNotFound):
				return nil, repoErr("find by username", err)
			}
		}
		if username != cur.Username {
			next.Username = username
			changes = append(changes, "username")
		}
	}

	if patch.Password != nil {
		if err := ValidatePassword(*patch.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		next.PasswordHash = hash
		changes = append(changes, "password")
	}

	apply := func(name string, dst *string, v *string) {
		if v != nil && *v != *dst {
			*dst = *v
			changes = append(changes, name)
		}
	}
	apply("email", &next.Email, patch.Email)
	apply("display_name", &next.DisplayName, patch.DisplayName)
	apply("phone", &next.Phone, patch.Phone)
	apply("avatar_url", &next.AvatarURL, patch.AvatarURL)

	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.nextUpdatedAt(cur.UpdatedAt)

	if err := s.repo.Update(ctx, &next); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicateUsername):
			return nil, ErrConflict
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrNotFound
		default:
			return nil, repoErr("update", err)
		}
	}

	out = next.Sanitized()
	s.logger.WithFields(logrus.Fields{"account_id": out.ID, "changes": changes}).Info("account updated")
	if s.cache != nil {
		s.cache.Invalidate(ctx, out)
	}
	s.index(ctx, out)
	// an empty patch only touches UpdatedAt; there is nothing to notify about
	if !patch.IsEmpty() {
		s.publish(ctx, entity.NewAccountEvent(entity.EventAccountUpdated, out, changes))
	}
	return out, nil
}

// Delete removes the account. Deleting an absent account returns ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer func() { observe("delete", err) }()

	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupErr("find by id", err)
	}
	if err := s.repo.DeleteByID(ctx, cur.ID); err != nil {
		return lookupErr("delete by id", err)
	}

	gone := cur.Sanitized()
	s.logger.WithFields(logrus.Fields{"account_id": gone.ID, "username": gone.Username}).Info("account deleted")
	if s.cache != nil {
		s.cache.Delete(ctx, gone.ID)
	}
	if s.search != nil {
		if err := s.search.Remove(ctx, gone.ID); err != nil {
			s.logger.WithError(err).WithField("account_id", gone.ID).Warn("search remove failed")
		}
	}
	s.publish(ctx, entity.NewAccountEvent(entity.EventAccountDeleted, gone, nil))
	return nil
}

// ListAll returns every account, sanitized.
func (s *Service) ListAll(ctx context.Context) (out []*entity.Account, err error) {
	defer func() { observe("list_all", err) }()

	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, repoErr("find all", err)
	}
	out = make([]*entity.Account, 0, len(all))
	for _, a := range all {
		out = append(out, a.Sanitized())
	}
	return out, nil
}

// SearchAccounts runs a full-text query against the search index. Without an
// index it returns an empty result.
func (s *Service) SearchAccounts(ctx context.Context, q string, size int) ([]*entity.Account, error) {
	if s.search == nil || strings.TrimSpace(q) == "" {
		return []*entity.Account{}, nil
	}
	if size <= 0 {
		size = defaultSearchSize
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}
	hits, err := s.search.Search(ctx, q, size)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	out := make([]*entity.Account, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Sanitized())
	}
	return out, nil
}

// UploadAvatar stores an image and points the account's AvatarURL at it.
func (s *Service) UploadAvatar(ctx context.Context, id string, r io.Reader, filename, contentType string) (*entity.Account, error) {
	if s.avatars == nil {
		return nil, ErrUnavailable
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, invalid("file", "must be an image")
	}
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr("find by id", err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := path.Join("avatars", cur.ID, uuid.NewString()+ext)
	url, err := s.avatars.Upload(ctx, objectPath, contentType, r)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	return s.Update(ctx, cur.ID, entity.AccountPatch{AvatarURL: &url})
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// nextUpdatedAt is strictly after prev even when the clock has not moved.
func (s *Service) nextUpdatedAt(prev time.Time) time.Time {
	now := s.timestamp()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (s *Service) index(ctx context.Context, a *entity.Account) {
	if s.search == nil {
		return
	}
	if err := s.search.Index(ctx, a); err != nil {
		s.logger.WithError(err).WithField("account_id", a.ID).Warn("search index failed")
	}
}

func (s *Service) publish(ctx context.Context, ev entity.AccountEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(ctx, ev); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"event": ev.Type, "account_id": ev.AccountID}).Warn("publish account event failed")
	}
}

func lookupErr(op string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return repoErr(op, err)
}

func observe(op string, err error) {
	metrics.RecordOperation(op, Outcome(err))
}

// Outcome maps an error returned by the service to a short label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrInvalidCredentials):
		return "unauthorized"
	default:
		return "error"
	}
}
