// Package admin holds the single admin principal of an election ledger.
package admin

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNotAdmin = errors.New("only admin can call this")

// Authority is fixed at construction; there is no transfer operation.
type Authority struct {
	admin common.Address
}

func New(admin common.Address) *Authority {
	return &Authority{admin: admin}
}

func (a *Authority) Admin() common.Address {
	return a.admin
}

// RequireAdmin fails with ErrNotAdmin unless caller is the admin.
func (a *Authority) RequireAdmin(caller common.Address) error {
	if caller != a.admin {
		return ErrNotAdmin
	}
	return nil
}
