package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// ProvisionCredentialMessage creates a credential and sets its roles.
type ProvisionCredentialMessage struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	State    CredentialState `json:"state"`
	Roles    []string        `json:"roles"`
}

func (e ProvisionCredentialMessage) Type() string { return "credential.provision" }

// Validate will run validation rules
func (e ProvisionCredentialMessage) Validate() *goerrors.Error {
	return goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Username, validation.Required, validation.Length(1, 255)),
			validation.Field(&e.Password, validation.Required),
			validation.Field(&e.State, validation.In(CredentialState(""), CredentialActive, CredentialDisabled)),
		)
	}, "invalid credential provisioning payload")
}

// ProvisionCredentialHandler runs ProvisionCredentialMessage against a
// credential store and an authorization store.
type ProvisionCredentialHandler struct {
	credentials CredentialStore
	roles       AuthorizationStore
	timeout     time.Duration
	logger      Logger
}

// NewProvisionCredentialHandler returns a handler over the given stores.
func NewProvisionCredentialHandler(credentials CredentialStore, roles AuthorizationStore) *ProvisionCredentialHandler {
	return &ProvisionCredentialHandler{
		credentials: credentials,
		roles:       roles,
		timeout:     10 * time.Second,
		logger:      defLogger(),
	}
}

// WithLogger sets the logger
func (h *ProvisionCredentialHandler) WithLogger(logger Logger) *ProvisionCredentialHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *ProvisionCredentialHandler) Execute(ctx context.Context, event ProvisionCredentialMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during credential provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProvisionCredentialHandler) execute(ctx context.Context, event ProvisionCredentialMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cred, err := h.credentials.Create(ctx, event.Username, event.Password, event.State)
	if err != nil {
		return err
	}

	if len(event.Roles) == 0 {
		h.logger.Info("credential provisioned", "username", cred.Username)
		return nil
	}

	// the stores may not share a transaction, so undo the create when the
	// role set is rejected
	if _, err := h.roles.Update(ctx, event.Username, event.Roles); err != nil {
		if _, derr := h.credentials.Delete(ctx, cred.ID); derr != nil {
			h.logger.Error("failed to remove credential after role update failure",
				"username", cred.Username, "error", derr)
		}
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "credential provisioning failed")
	}

	h.logger.Info("credential provisioned", "username", cred.Username, "roles", event.Roles)
	return nil
}
