package credentials

import (
	"context"
	"errors"

	"github.com/skydriftlabs/skydrift-setup/internal/logger"
)

// ErrAccountNotConfirmed indicates the operator has no skydrift account yet;
// the workflow aborts before any prompt or mutation.
var ErrAccountNotConfirmed = errors.New("account creation not confirmed")

// Credentials is the email/password pair the agent authenticates with. It
// lives only in the service unit's environment block; there is no other
// persistence.
type Credentials struct {
	Email    string
	Password string
}

// Prompter is the interactive console capability the negotiator depends on.
// Supplying a scripted implementation keeps the negotiation logic testable.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string) (bool, error)
	// ReadLine asks for visible input.
	ReadLine(ctx context.Context, question string) (string, error)
	// ReadSecret asks for input without echoing it.
	ReadSecret(ctx context.Context, question string) (string, error)
}

// Negotiate determines the desired credentials.
//
// With no existing service (existing == nil) the operator must confirm an
// account was created out-of-band, then both fields are prompted fresh. With
// an existing service the previously configured values are offered, and each
// field is substituted independently only when the operator asks to change it.
func Negotiate(ctx context.Context, prompter Prompter, existing *Credentials) (Credentials, error) {
	if existing == nil {
		return negotiateFresh(ctx, prompter)
	}

	return negotiateExisting(ctx, prompter, *existing)
}

func negotiateFresh(ctx context.Context, prompter Prompter) (Credentials, error) {
	confirmed, err := prompter.Confirm(ctx, "Have you already created a skydrift account?")
	if err != nil {
		return Credentials{}, err
	}

	if !confirmed {
		return Credentials{}, ErrAccountNotConfirmed
	}

	email, err := prompter.ReadLine(ctx, "Account email")
	if err != nil {
		return Credentials{}, err
	}

	password, err := prompter.ReadSecret(ctx, "Account password")
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{Email: email, Password: password}, nil
}

func negotiateExisting(ctx context.Context, prompter Prompter, current Credentials) (Credentials, error) {
	logger.InfoKV(ctx, "Service already configured", "email", current.Email)

	changeEmail, err := prompter.Confirm(ctx, "Change the configured email?")
	if err != nil {
		return Credentials{}, err
	}

	if changeEmail {
		current.Email, err = prompter.ReadLine(ctx, "New account email")
		if err != nil {
			return Credentials{}, err
		}
	}

	changePassword, err := prompter.Confirm(ctx, "Change the configured password?")
	if err != nil {
		return Credentials{}, err
	}

	if changePassword {
		current.Password, err = prompter.ReadSecret(ctx, "New account password")
		if err != nil {
			return Credentials{}, err
		}
	}

	return current, nil
}
