// Package wallet abstracts the user's crypto wallet as an EIP-1193 style
// provider that can return its account and sign a text message.
package wallet

import (
	"context"
	"io"

	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

// RejectedCode is the EIP-1193 error code a wallet answers with when the user declines.
const RejectedCode = 4001

var (
	// ErrNoProvider means no wallet is reachable for this page.
	ErrNoProvider = errors.New("no wallet provider available")
	// ErrUserRejected means the user declined the request in the wallet.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrNotConnected is returned by SignMessage before RequestAccounts succeeded.
	ErrNotConnected = errors.New("wallet not connected")
)

type Provider interface {
	// RequestAccounts asks the wallet for its account and returns the selected address.
	RequestAccounts(ctx context.Context) (string, error)
	// SignMessage signs text with the account returned by RequestAccounts (personal_sign).
	SignMessage(ctx context.Context, text string) (string, error)
}

// Pairer is implemented by providers the user pairs with out of band, by
// scanning a QR code with a phone wallet.
type Pairer interface {
	PairingURI() string
	QRCode() ([]byte, error)
}

// Locator performs the capability check: it returns the wallet available right
// now, or ErrNoProvider.
type Locator interface {
	Locate(ctx context.Context) (Provider, error)
}

// PairingLocator is a Locator whose providers the user pairs with out of
// band. Locators that do not implement it never hand out a Pairer.
type PairingLocator interface {
	Locator
	Pairs() bool
}

// Pairs reports whether l hands out providers that implement Pairer.
func Pairs(l Locator) bool {
	pl, ok := l.(PairingLocator)
	return ok && pl.Pairs()
}

type LocatorFunc func(ctx context.Context) (Provider, error)

func (f LocatorFunc) Locate(ctx context.Context) (Provider, error) {
	return f(ctx)
}

// None is the locator of a deployment without a wallet.
func None() Locator {
	return LocatorFunc(func(context.Context) (Provider, error) {
		return nil, ErrNoProvider
	})
}

// Close releases p when it holds resources.
func Close(p Provider) {
	c, ok := p.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warnf("close wallet provider:%v", err)
	}
}
