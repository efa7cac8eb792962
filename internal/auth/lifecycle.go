package auth

import (
	"context"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/credentials"
	"codeberg.org/mutker/ecobee-exporter/internal/ecobee"
	"codeberg.org/mutker/ecobee-exporter/internal/errors"
	"codeberg.org/mutker/ecobee-exporter/internal/logger"
	"github.com/jonboulle/clockwork"
)

// Lifecycle drives a token bundle towards the Valid state. It persists the
// bundle after every successful remote call and never retries.
type Lifecycle struct {
	client ecobee.Client
	store  credentials.Store
	clock  clockwork.Clock
	cfg    Config
	log    logger.Logger
}

func NewLifecycle(cfg Config, client ecobee.Client, store credentials.Store, clock clockwork.Clock, log logger.Logger) (*Lifecycle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Lifecycle{
		client: client,
		store:  store,
		clock:  clock,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Device returns the credential record name this lifecycle manages.
func (l *Lifecycle) Device() string {
	return l.cfg.Device
}

// Load checks the bundle out of the store. A missing or unreadable record
// yields a fresh, unauthorized bundle.
func (l *Lifecycle) Load(ctx context.Context) *credentials.TokenBundle {
	bundle, err := l.store.Load(ctx, l.cfg.Device)
	if err != nil {
		l.log.Info().
			Str("device", l.cfg.Device).
			Str("reason", err.Error()).
			Msg("No stored credentials, starting unauthorized")
		return &credentials.TokenBundle{}
	}

	return bundle
}

// EnsureValid runs the state machine for bundle at now and mutates it in
// place. On error the bundle holds whatever was last persisted.
func (l *Lifecycle) EnsureValid(ctx context.Context, bundle *credentials.TokenBundle, now time.Time) error {
	state := StateOf(bundle, now)

	l.log.Debug().
		Str("device", l.cfg.Device).
		Str("state", state.String()).
		Time("now", now).
		Interface("access_expires", bundle.AccessTokenExpiresAt).
		Interface("refresh_expires", bundle.RefreshTokenExpiresAt).
		Msg("Evaluating token state")

	switch state {
	case Unauthorized, RefreshExpired:
		if state == RefreshExpired {
			l.log.Info().Str("device", l.cfg.Device).Msg("Refresh token expired, authorizing again")
		}
		return l.Authorize(ctx, bundle)
	case AuthorizedPendingToken:
		return l.requestTokens(ctx, bundle)
	case AccessExpired:
		return l.refresh(ctx, bundle)
	default:
		return nil
	}
}

// Authorize runs the full device flow: request a pin, persist the
// authorization code, wait for approval, then request tokens. It is used
// both inline from EnsureValid and by the out-of-band authorize command.
func (l *Lifecycle) Authorize(ctx context.Context, bundle *credentials.TokenBundle) error {
	if err := l.authorize(ctx, bundle); err != nil {
		return err
	}

	if err := l.waitForApproval(ctx); err != nil {
		return err
	}

	return l.requestTokens(ctx, bundle)
}

func (l *Lifecycle) authorize(ctx context.Context, bundle *credentials.TokenBundle) error {
	errFactory := errors.New()

	resp, err := l.client.Authorize(ctx)
	if err != nil {
		return errFactory.Wrap(errors.ErrAuthFailed, err).WithMessage("authorize failed")
	}

	bundle.AuthorizationToken = resp.Code
	bundle.AccessToken = ""
	bundle.AccessTokenExpiresAt = nil
	bundle.RefreshToken = ""
	bundle.RefreshTokenExpiresAt = nil

	if err := l.save(ctx, bundle); err != nil {
		return err
	}

	l.log.Warn().
		Str("device", l.cfg.Device).
		Str("pin", resp.Pin).
		Str("portal", ecobee.PortalURL).
		Time("pin_expires", resp.ExpiresAt).
		Msgf("Please authorize this app at %s with pin code %s", ecobee.PortalURL, resp.Pin)

	return nil
}

// waitForApproval blocks for the configured interval. Unsuitable for
// steady-state scrapes; only reached on first run or after the refresh
// token expired.
func (l *Lifecycle) waitForApproval(ctx context.Context) error {
	if l.cfg.ApprovalWait <= 0 {
		return nil
	}

	l.log.Info().
		Dur("wait", l.cfg.ApprovalWait).
		Msg("Waiting for pin approval")

	select {
	case <-l.clock.After(l.cfg.ApprovalWait):
		return nil
	case <-ctx.Done():
		return errors.New().Wrap(errors.ErrAuthFailed, ctx.Err()).WithMessage("approval wait interrupted")
	}
}

func (l *Lifecycle) requestTokens(ctx context.Context, bundle *credentials.TokenBundle) error {
	tokens, err := l.client.RequestTokens(ctx, bundle.AuthorizationToken)
	if err != nil {
		return errors.New().Wrap(errors.ErrAuthFailed, err).WithMessage("token request failed")
	}

	bundle.AuthorizationToken = ""
	applyTokens(bundle, tokens)

	if err := l.save(ctx, bundle); err != nil {
		return err
	}

	l.log.Info().
		Str("device", l.cfg.Device).
		Str("access_token", logger.Redact(bundle.AccessToken)).
		Time("access_expires", tokens.AccessTokenExpiresAt).
		Msg("Tokens issued")

	return nil
}

func (l *Lifecycle) refresh(ctx context.Context, bundle *credentials.TokenBundle) error {
	tokens, err := l.client.Refresh(ctx, bundle.RefreshToken)
	if err != nil {
		return errors.New().Wrap(errors.ErrAuthFailed, err).WithMessage("token refresh failed")
	}

	applyTokens(bundle, tokens)

	if err := l.save(ctx, bundle); err != nil {
		return err
	}

	l.log.Debug().
		Str("device", l.cfg.Device).
		Time("access_expires", tokens.AccessTokenExpiresAt).
		Msg("Access token refreshed")

	return nil
}

func (l *Lifecycle) save(ctx context.Context, bundle *credentials.TokenBundle) error {
	if err := l.store.Save(ctx, l.cfg.Device, bundle); err != nil {
		return errors.New().Wrap(credentials.ErrStorageWrite, err).WithMessage("persist credentials")
	}
	return nil
}

func applyTokens(bundle *credentials.TokenBundle, tokens *ecobee.Tokens) {
	accessExpires := tokens.AccessTokenExpiresAt
	refreshExpires := tokens.RefreshTokenExpiresAt

	bundle.AccessToken = tokens.AccessToken
	bundle.AccessTokenExpiresAt = &accessExpires
	bundle.RefreshToken = tokens.RefreshToken
	bundle.RefreshTokenExpiresAt = &refreshExpires
}
